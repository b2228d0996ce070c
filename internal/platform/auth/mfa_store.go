package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryCodeStore keeps challenges in process memory.
type MemoryCodeStore struct {
	mu    sync.Mutex
	items map[string]memoryChallenge
	now   func() time.Time
}

type memoryChallenge struct {
	ch      Challenge
	evictAt time.Time
}

func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{items: make(map[string]memoryChallenge), now: time.Now}
}

func (s *MemoryCodeStore) Put(_ context.Context, id string, ch Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.items[id] = memoryChallenge{ch: ch, evictAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryCodeStore) Get(_ context.Context, id string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok || !s.now().Before(item.evictAt) {
		delete(s.items, id)
		return nil, ErrChallengeNotFound
	}
	ch := item.ch
	return &ch, nil
}

func (s *MemoryCodeStore) IncrementAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return 0, ErrChallengeNotFound
	}
	item.ch.Attempts++
	s.items[id] = item
	return item.ch.Attempts, nil
}

func (s *MemoryCodeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

// sweep drops expired entries. Callers hold mu.
func (s *MemoryCodeStore) sweep() {
	now := s.now()
	for id, item := range s.items {
		if !now.Before(item.evictAt) {
			delete(s.items, id)
		}
	}
}

// RedisCodeStore keeps each challenge in a hash that expires with the code,
// so every API instance sees the same attempt counter.
type RedisCodeStore struct {
	client *redis.Client
	prefix string
}

func NewRedisCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client, prefix: "carelink:mfa:"}
}

func (s *RedisCodeStore) key(id string) string { return s.prefix + id }

func (s *RedisCodeStore) Put(ctx context.Context, id string, ch Challenge, ttl time.Duration) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	key := s.key(id)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "challenge", payload, "attempts", ch.Attempts)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	return err
}

func (s *RedisCodeStore) Get(ctx context.Context, id string) (*Challenge, error) {
	vals, err := s.client.HMGet(ctx, s.key(id), "challenge", "attempts").Result()
	if err != nil {
		return nil, err
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, ErrChallengeNotFound
	}
	var ch Challenge
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		return nil, err
	}
	if attempts, ok := vals[1].(string); ok {
		if n, err := strconv.Atoi(attempts); err == nil {
			ch.Attempts = n
		}
	}
	return &ch, nil
}

func (s *RedisCodeStore) IncrementAttempts(ctx context.Context, id string) (int, error) {
	key := s.key(id)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, ErrChallengeNotFound
	}
	n, err := s.client.HIncrBy(ctx, key, "attempts", 1).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrChallengeNotFound
	}
	return int(n), err
}

func (s *RedisCodeStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}
