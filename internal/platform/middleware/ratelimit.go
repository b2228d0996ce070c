package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// KeyFunc derives the bucket key for a request.
type KeyFunc func(c echo.Context) string

// ByUserOrIP keys on the authenticated user id, falling back to the client IP.
func ByUserOrIP(c echo.Context) string {
	if uid, ok := c.Get("user_id").(string); ok && uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.RealIP()
}

// ByIP keys on the client IP only.
func ByIP(c echo.Context) string {
	return "ip:" + c.RealIP()
}

// Policy is a named quota applied per key over a fixed window.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
	Key    KeyFunc
}

// DefaultPolicies returns the named throttles. Production quotas are much
// tighter than the development ones.
func DefaultPolicies(production bool) []Policy {
	pick := func(prod, dev int) int {
		if production {
			return prod
		}
		return dev
	}
	return []Policy{
		{Name: "api", Limit: pick(60, 1000), Window: time.Minute, Key: ByUserOrIP},
		{Name: "mobile", Limit: pick(120, 1000), Window: time.Minute, Key: ByUserOrIP},
		{Name: "auth", Limit: pick(5, 60), Window: time.Minute, Key: ByIP},
		{Name: "public", Limit: pick(30, 300), Window: time.Minute, Key: ByIP},
		{Name: "export", Limit: pick(10, 100), Window: time.Minute, Key: ByUserOrIP},
		{Name: "bulk", Limit: pick(5, 50), Window: time.Minute, Key: ByUserOrIP},
	}
}

// LimiterStore counts hits per key within a window. Hit returns the count
// including this hit and the time until the window resets.
type LimiterStore interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimiter applies named policies backed by a shared store.
type RateLimiter struct {
	store    LimiterStore
	policies map[string]Policy
	logger   zerolog.Logger
}

func NewRateLimiter(store LimiterStore, production bool, logger zerolog.Logger) *RateLimiter {
	rl := &RateLimiter{
		store:    store,
		policies: make(map[string]Policy),
		logger:   logger,
	}
	for _, p := range DefaultPolicies(production) {
		rl.policies[p.Name] = p
	}
	return rl
}

// SetPolicy adds or replaces a policy.
func (rl *RateLimiter) SetPolicy(p Policy) {
	if p.Key == nil {
		p.Key = ByUserOrIP
	}
	rl.policies[p.Name] = p
}

func (rl *RateLimiter) Policy(name string) (Policy, bool) {
	p, ok := rl.policies[name]
	return p, ok
}

// Throttle returns middleware enforcing the named policy. It panics on an
// unknown name since that is a wiring mistake. Store failures let the request
// through.
func (rl *RateLimiter) Throttle(name string) echo.MiddlewareFunc {
	p, ok := rl.policies[name]
	if !ok {
		panic(fmt.Sprintf("middleware: unknown rate limit policy %q", name))
	}
	limit := strconv.Itoa(p.Limit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ratelimit:" + p.Name + ":" + p.Key(c)

			count, resetIn, err := rl.store.Hit(c.Request().Context(), key, p.Window)
			if err != nil {
				rl.logger.Warn().Err(err).Str("policy", p.Name).Msg("rate limit store unavailable")
				return next(c)
			}

			remaining := int64(p.Limit) - count
			if remaining < 0 {
				remaining = 0
			}
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(p.Limit) {
				retryAfter := int(math.Ceil(resetIn.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests, map[string]interface{}{
					"error":       "RATE_LIMIT_EXCEEDED",
					"message":     "Too many requests. Please try again later.",
					"retry_after": retryAfter,
				})
			}
			return next(c)
		}
	}
}

// MemoryLimiterStore is a per-process fixed-window counter.
type MemoryLimiterStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	count   int64
	resetAt time.Time
}

func NewMemoryLimiterStore() *MemoryLimiterStore {
	return &MemoryLimiterStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (s *MemoryLimiterStore) Hit(_ context.Context, key string, win time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(win)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt.Sub(now), nil
}

// Sweep drops expired windows.
func (s *MemoryLimiterStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, k)
		}
	}
}

// RedisLimiterStore shares counters across instances.
type RedisLimiterStore struct {
	client redis.UniversalClient
}

func NewRedisLimiterStore(client redis.UniversalClient) *RedisLimiterStore {
	return &RedisLimiterStore{client: client}
}

func (s *RedisLimiterStore) Hit(ctx context.Context, key string, win time.Duration) (int64, time.Duration, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := s.client.PExpire(ctx, key, win).Err(); err != nil {
			return 0, 0, fmt.Errorf("rate limit expire: %w", err)
		}
		return count, win, nil
	}

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit ttl: %w", err)
	}
	if ttl < 0 {
		// Expiry lost (e.g. a crash between INCR and PEXPIRE); restore it.
		if err := s.client.PExpire(ctx, key, win).Err(); err != nil {
			return 0, 0, fmt.Errorf("rate limit expire: %w", err)
		}
		ttl = win
	}
	return count, ttl, nil
}
