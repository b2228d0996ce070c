package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/carelink/carelink/internal/config"
	"github.com/carelink/carelink/internal/domain/assessment"
	"github.com/carelink/carelink/internal/domain/emergency"
	"github.com/carelink/carelink/internal/domain/facility"
	"github.com/carelink/carelink/internal/domain/identity"
	"github.com/carelink/carelink/internal/domain/inbox"
	"github.com/carelink/carelink/internal/domain/referral"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/internal/platform/middleware"
	"github.com/carelink/carelink/internal/platform/queue"
	"github.com/carelink/carelink/internal/platform/redisdb"
	"github.com/carelink/carelink/internal/platform/websocket"
)

const (
	version         = "0.1.0"
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	sweepInterval   = time.Minute
)

// newRouter mounts every route. Each domain owns a prefixed group carrying
// only authentication; throttles and permissions are attached per route, so
// unknown paths under /api/v1 fall through to a plain 404.
func newRouter(a *app, svcs *services) *echo.Echo {
	cfg := a.cfg
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(a.logger)

	extractor, err := middleware.ClientIPExtractor(cfg.TrustedProxies)
	if err != nil {
		a.logger.Error().Err(err).Msg("invalid TRUSTED_PROXIES; using the socket peer address")
		extractor = echo.ExtractIPDirect()
	}
	e.IPExtractor = extractor

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.CORS(cfg.CORSOrigins, cfg.CORSOriginPatterns))
	e.Use(middleware.BodyLimit("1M", "5M"))
	e.Use(middleware.RequestTimeout(requestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool, version))
	}
	if a.redis != nil {
		e.GET("/health/redis", redisdb.HealthHandler(a.redis))
	}

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: a.signingKey,
		QueryParam: "token",
	}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	}

	grants := auth.NewClaimGrants()
	v1 := e.Group("/api/v1")

	identity.NewHandler(svcs.identity, grants, a.limiter).RegisterRoutes(v1, authMW)
	assessment.NewHandler(svcs.assessment, grants, a.limiter).RegisterRoutes(v1, authMW)
	referral.NewHandler(svcs.referral, grants, a.limiter).RegisterRoutes(v1, authMW)
	facility.NewHandler(svcs.facility, grants, a.limiter).RegisterRoutes(v1, authMW)
	emergency.NewHandler(svcs.emergency, grants, a.limiter).RegisterRoutes(v1, authMW)
	inbox.NewHandler(svcs.inbox, a.limiter).RegisterRoutes(v1, authMW)

	exact := make(map[string]struct{}, len(cfg.CORSOrigins))
	for _, o := range cfg.CORSOrigins {
		exact[strings.TrimRight(o, "/")] = struct{}{}
	}
	checkOrigin := func(origin string) bool {
		return middleware.OriginAllowed(origin, exact, cfg.CORSOriginPatterns)
	}
	websocket.NewHandler(a.hub, checkOrigin, a.logger).RegisterRoutes(v1, authMW, a.limiter.Throttle("api"))

	return e
}

func loadApp(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg)

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	logger.Info().Msg("connected to database")

	a, err := newApp(ctx, cfg, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return a, func() {
		a.close()
		pool.Close()
	}, nil
}

func runServer(withWorker bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	svcs, err := a.newServices(ctx)
	if err != nil {
		return err
	}
	e := newRouter(a, svcs)
	cfg := a.cfg

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		a.logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})

	// The sync backend lives in process memory, so nothing else can drain it.
	if withWorker || a.backend.Name() == "sync" {
		w := a.newWorker()
		g.Go(func() error { return w.Run(gctx) })
	}
	if a.limitStore != nil {
		g.Go(func() error {
			t := time.NewTicker(sweepInterval)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
					a.limitStore.Sweep()
				}
			}
		})
	}

	err = g.Wait()
	a.logger.Info().Msg("server stopped")
	return err
}

func runWorker() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if a.backend.Name() == "sync" {
		return fmt.Errorf("QUEUE_CONNECTION=sync is drained by `serve`; a separate worker needs redis, sqs or kafka")
	}
	if rb, ok := a.backend.(*queue.RedisBackend); ok {
		for _, q := range []string{a.cfg.QueueHighPriorityName, a.cfg.QueueName} {
			n, err := rb.Recover(ctx, q)
			if err != nil {
				return fmt.Errorf("recover %s: %w", q, err)
			}
			if n > 0 {
				a.logger.Warn().Str("queue", q).Int("jobs", n).Msg("requeued unacknowledged jobs")
			}
		}
	}
	return a.newWorker().Run(ctx)
}
