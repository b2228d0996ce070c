package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each queue as a list. Pop atomically moves the job to
// a per-queue processing list and Ack removes it from there, so jobs held by
// a crashed worker can be put back with Recover.
type RedisBackend struct {
	client      *redis.Client
	prefix      string
	pollTimeout time.Duration
}

func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "carelink:queue:"
	}
	return &RedisBackend{client: client, prefix: prefix, pollTimeout: 5 * time.Second}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) key(queue string) string        { return b.prefix + queue }
func (b *RedisBackend) processing(queue string) string { return b.prefix + queue + ":processing" }

func (b *RedisBackend) Push(ctx context.Context, queue string, body []byte) error {
	return b.client.LPush(ctx, b.key(queue), body).Err()
}

func (b *RedisBackend) Pop(ctx context.Context, queue string) (*Delivery, error) {
	body, err := b.client.BLMove(ctx, b.key(queue), b.processing(queue), "RIGHT", "LEFT", b.pollTimeout).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	processing := b.processing(queue)
	return NewDelivery(body, func(ctx context.Context) error {
		return b.client.LRem(ctx, processing, 1, body).Err()
	}), nil
}

// Recover moves every job left in the processing list back onto the queue
// and returns how many were moved.
func (b *RedisBackend) Recover(ctx context.Context, queue string) (int, error) {
	n := 0
	for {
		err := b.client.LMove(ctx, b.processing(queue), b.key(queue), "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (b *RedisBackend) Close() error { return nil }
