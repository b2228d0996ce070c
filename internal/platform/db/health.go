package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const pingTimeout = 5 * time.Second

// PoolStats is the pool snapshot reported by /health/db.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// HealthReport is the /health/db body.
type HealthReport struct {
	Status    string     `json:"status"`
	Service   string     `json:"service"`
	Version   string     `json:"version"`
	Error     string     `json:"error,omitempty"`
	PingMS    int64      `json:"ping_ms"`
	Pool      *PoolStats `json:"pool"`
	CheckedAt time.Time  `json:"checked_at"`
}

// Pinger is the part of *pgxpool.Pool the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckHealth pings p and returns the report along with the HTTP status to
// answer with. stats may be nil when no pool snapshot is available.
func CheckHealth(ctx context.Context, p Pinger, stats *PoolStats, version string) (*HealthReport, int) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	report := &HealthReport{
		Status:    "healthy",
		Service:   "carelink",
		Version:   version,
		PingMS:    time.Since(start).Milliseconds(),
		Pool:      stats,
		CheckedAt: start.UTC(),
	}
	if err != nil {
		report.Status = "unhealthy"
		report.Error = "database unreachable"
		if stats != nil {
			stats.Healthy = false
		}
		return report, http.StatusServiceUnavailable
	}
	return report, http.StatusOK
}

// HealthHandler serves /health/db for pool.
func HealthHandler(pool *pgxpool.Pool, version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		report, status := CheckHealth(c.Request().Context(), pool, GetPoolStats(pool), version)
		return c.JSON(status, report)
	}
}
