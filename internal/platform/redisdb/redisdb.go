// Package redisdb connects to the Redis instance shared by the rate limiter,
// the MFA code store and the redis queue backend.
package redisdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

var (
	ErrEmptyURL = errors.New("empty redis connection URL")
	ErrNotReady = errors.New("redis did not become ready in time")
)

type Options struct {
	RetryAttempts  int
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		RetryAttempts:  3,
		RetryInterval:  2 * time.Second,
		ConnectTimeout: 15 * time.Second,
	}
}

// Connect parses url and pings until the server answers or the attempts
// run out.
func Connect(ctx context.Context, url string, opts Options) (*redis.Client, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < opts.RetryAttempts; attempt++ {
		client := redis.NewClient(o)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotReady, ctx.Err())
		case <-time.After(opts.RetryInterval):
		}
	}
	return nil, errors.Join(ErrNotReady, lastErr)
}

// HealthHandler reports redis reachability in the same shape as the
// database health check.
func HealthHandler(client redis.UniversalClient) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "redis unreachable",
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	}
}
