package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// newEcho resolves client IPs from the socket peer, as the server does
// without TRUSTED_PROXIES.
func newEcho() *echo.Echo {
	e := echo.New()
	e.IPExtractor = echo.ExtractIPDirect()
	return e
}

func serveThrottled(e *echo.Echo, h echo.HandlerFunc, ip, userID string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = ip + ":40100"
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		c.Set("user_id", userID)
	}
	return rec, h(c)
}

func TestDefaultPolicies(t *testing.T) {
	tests := []struct {
		name string
		prod int
		dev  int
	}{
		{"api", 60, 1000},
		{"mobile", 120, 1000},
		{"auth", 5, 60},
		{"public", 30, 300},
		{"export", 10, 100},
		{"bulk", 5, 50},
	}

	prod := NewRateLimiter(NewMemoryLimiterStore(), true, zerolog.Nop())
	dev := NewRateLimiter(NewMemoryLimiterStore(), false, zerolog.Nop())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := prod.Policy(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.prod, p.Limit)
			assert.Equal(t, time.Minute, p.Window)

			d, ok := dev.Policy(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.dev, d.Limit)
		})
	}
}

func TestThrottle_AuthPolicyInProduction(t *testing.T) {
	e := newEcho()
	rl := NewRateLimiter(NewMemoryLimiterStore(), true, zerolog.Nop())
	h := rl.Throttle("auth")(okHandler)

	for i := 0; i < 5; i++ {
		rec, err := serveThrottled(e, h, "203.0.113.7", "")
		require.NoError(t, err, "request %d", i+1)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec, err := serveThrottled(e, h, "203.0.113.7", "")
	require.Error(t, err)

	var httpErr *echo.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Code)

	body, ok := httpErr.Message.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["error"])
	assert.Greater(t, body["retry_after"].(int), 0)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestThrottle_RendersThroughErrorHandler(t *testing.T) {
	e := newEcho()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	rl := NewRateLimiter(NewMemoryLimiterStore(), true, zerolog.Nop())
	e.POST("/login", okHandler, rl.Throttle("auth"))

	var rec *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "198.51.100.1:40100"
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
	}

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"RATE_LIMIT_EXCEEDED"`)
	assert.Contains(t, rec.Body.String(), `"retry_after"`)
}

func TestThrottle_ForwardedHeaderRotationStillLimited(t *testing.T) {
	e := newEcho()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	rl := NewRateLimiter(NewMemoryLimiterStore(), true, zerolog.Nop())
	e.POST("/login", okHandler, rl.Throttle("auth"))

	limited := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "203.0.113.50:40100"
		req.Header.Set(echo.HeaderXForwardedFor, fmt.Sprintf("10.0.0.%d", i))
		req.Header.Set(echo.HeaderXRealIP, fmt.Sprintf("10.0.1.%d", i))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 45, limited)
}

func TestThrottle_KeysAreIndependent(t *testing.T) {
	e := newEcho()
	rl := NewRateLimiter(NewMemoryLimiterStore(), true, zerolog.Nop())
	rl.SetPolicy(Policy{Name: "tiny", Limit: 1, Window: time.Minute})
	h := rl.Throttle("tiny")(okHandler)

	_, err := serveThrottled(e, h, "10.0.0.1", "user-a")
	require.NoError(t, err)
	_, err = serveThrottled(e, h, "10.0.0.1", "user-a")
	require.Error(t, err, "second request for user-a should be limited")

	// Same IP, different user.
	_, err = serveThrottled(e, h, "10.0.0.1", "user-b")
	require.NoError(t, err)
}

func TestThrottle_UnknownPolicyPanics(t *testing.T) {
	rl := NewRateLimiter(NewMemoryLimiterStore(), false, zerolog.Nop())
	assert.Panics(t, func() { rl.Throttle("nope") })
}

type failingStore struct{}

func (failingStore) Hit(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("store down")
}

func TestThrottle_FailsOpen(t *testing.T) {
	e := newEcho()
	rl := NewRateLimiter(failingStore{}, true, zerolog.Nop())
	h := rl.Throttle("auth")(okHandler)

	for i := 0; i < 10; i++ {
		_, err := serveThrottled(e, h, "10.0.0.2", "")
		require.NoError(t, err)
	}
}

func TestMemoryLimiterStore_WindowResets(t *testing.T) {
	s := NewMemoryLimiterStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	n, reset, _ := s.Hit(ctx, "k", time.Minute)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, reset)

	now = now.Add(30 * time.Second)
	n, reset, _ = s.Hit(ctx, "k", time.Minute)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 30*time.Second, reset)

	now = now.Add(31 * time.Second)
	n, _, _ = s.Hit(ctx, "k", time.Minute)
	assert.Equal(t, int64(1), n)

	now = now.Add(2 * time.Minute)
	s.Sweep()
	assert.Empty(t, s.windows)
}

func TestRedisLimiterStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := NewRedisLimiterStore(client)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, reset, err := s.Hit(ctx, "ratelimit:auth:ip:1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
		assert.Greater(t, reset, time.Duration(0))
		assert.LessOrEqual(t, reset, time.Minute)
	}

	mr.FastForward(61 * time.Second)

	n, _, err := s.Hit(ctx, "ratelimit:auth:ip:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestThrottle_SharedRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	e := newEcho()
	// Two limiters stand in for two server instances.
	a := NewRateLimiter(NewRedisLimiterStore(client), true, zerolog.Nop()).Throttle("bulk")(okHandler)
	b := NewRateLimiter(NewRedisLimiterStore(client), true, zerolog.Nop()).Throttle("bulk")(okHandler)

	for i := 0; i < 5; i++ {
		h := a
		if i%2 == 1 {
			h = b
		}
		_, err := serveThrottled(e, h, "10.0.0.3", "user-x")
		require.NoError(t, err)
	}
	_, err := serveThrottled(e, b, "10.0.0.3", "user-x")
	require.Error(t, err)
}
