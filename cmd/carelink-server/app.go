package main

import (
	"context"
	"crypto/rand"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/config"
	"github.com/carelink/carelink/internal/domain/assessment"
	"github.com/carelink/carelink/internal/domain/emergency"
	"github.com/carelink/carelink/internal/domain/facility"
	"github.com/carelink/carelink/internal/domain/identity"
	"github.com/carelink/carelink/internal/domain/inbox"
	"github.com/carelink/carelink/internal/domain/referral"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/middleware"
	"github.com/carelink/carelink/internal/platform/notification"
	"github.com/carelink/carelink/internal/platform/queue"
	"github.com/carelink/carelink/internal/platform/redisdb"
	"github.com/carelink/carelink/internal/platform/websocket"
)

const (
	queueKeyPrefix = "carelink:queue:"
	kafkaGroupID   = "carelink-notifications"
	syncQueueDepth = 1024
)

// app holds the infrastructure shared by the server and the worker.
type app struct {
	cfg        *config.Config
	logger     zerolog.Logger
	pool       *pgxpool.Pool
	redis      *redis.Client
	backend    queue.Backend
	store      notification.Store
	hub        *websocket.Hub
	dispatcher *notification.Dispatcher
	limiter    *middleware.RateLimiter
	limitStore *middleware.MemoryLimiterStore
	mfa        *auth.MFA
	signingKey []byte
}

type services struct {
	identity   *identity.Service
	assessment *assessment.Service
	referral   *referral.Service
	facility   *facility.Service
	emergency  *emergency.Service
	inbox      *inbox.Service
}

// needsRedis reports whether any configured component is redis-backed.
func needsRedis(cfg *config.Config) bool {
	return cfg.RateLimitStore == "redis" || cfg.MFAStore == "redis" || cfg.QueueConnection == "redis"
}

// newCodec registers every notification that may travel through a queue.
func newCodec() *notification.Codec {
	c := notification.NewCodec()
	notification.RegisterType[identity.MFACodeNotification](c)
	notification.RegisterType[assessment.AssessmentValidated](c)
	notification.RegisterType[assessment.AssessmentRejected](c)
	notification.RegisterType[referral.ReferralAssigned](c)
	notification.RegisterType[referral.AppointmentConfirmation](c)
	notification.RegisterType[emergency.EmergencyAlertNotification](c)
	return c
}

func newQueueBackend(ctx context.Context, cfg *config.Config, rdb *redis.Client) (queue.Backend, error) {
	switch cfg.QueueConnection {
	case "", "sync":
		return queue.NewSyncBackend(syncQueueDepth), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis queue requires REDIS_URL")
		}
		return queue.NewRedisBackend(rdb, queueKeyPrefix), nil
	case "sqs":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return queue.NewSQSBackend(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURLPrefix), nil
	case "kafka":
		return queue.NewKafkaBackend(cfg.KafkaBrokers, kafkaGroupID), nil
	default:
		return nil, fmt.Errorf("unknown queue connection %q", cfg.QueueConnection)
	}
}

// resolveSigningKey returns the configured HS256 key, or a random one in
// development. The second return value is true when the key was generated.
// A nil key outside development means tokens come from AUTH_ISSUER and are
// verified against its JWKS; local login cannot issue tokens then.
func resolveSigningKey(cfg *config.Config) ([]byte, bool, error) {
	if cfg.AuthSigningKey != "" {
		return []byte(cfg.AuthSigningKey), false, nil
	}
	if !cfg.IsDev() {
		if cfg.AuthIssuer != "" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("AUTH_SIGNING_KEY or AUTH_ISSUER is required outside development")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate signing key: %w", err)
	}
	return key, true, nil
}

func driverConfig(cfg *config.Config) notification.DriverConfig {
	return notification.DriverConfig{
		MailDriver: cfg.NotifyMailDriver,
		SMSDriver:  cfg.NotifySMSDriver,
		PushDriver: cfg.NotifyPushDriver,
		LogEnabled: cfg.NotifyLogEnabled,
		Postmark: notification.PostmarkConfig{
			ServerToken:  cfg.PostmarkServerToken,
			AccountToken: cfg.PostmarkAccountToken,
			From:         cfg.MailFrom,
			ReplyTo:      cfg.MailReplyTo,
		},
		Twilio: notification.TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioFrom,
		},
		FCM: notification.FCMConfig{
			ServerKey: cfg.FCMServerKey,
			Endpoint:  cfg.FCMEndpoint,
		},
	}
}

// newApp connects to redis and the queue backend and builds the
// notification pipeline. The caller owns pool.
func newApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, pool: pool, hub: websocket.NewHub(logger)}

	if needsRedis(cfg) {
		rdb, err := redisdb.Connect(ctx, cfg.RedisURL, redisdb.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = rdb
		logger.Info().Msg("connected to redis")
	}

	var limitStore middleware.LimiterStore
	if cfg.RateLimitStore == "redis" {
		limitStore = middleware.NewRedisLimiterStore(a.redis)
	} else {
		a.limitStore = middleware.NewMemoryLimiterStore()
		limitStore = a.limitStore
	}
	a.limiter = middleware.NewRateLimiter(limitStore, !cfg.IsDev(), logger)

	var codes auth.CodeStore
	if cfg.MFAStore == "redis" {
		codes = auth.NewRedisCodeStore(a.redis)
	} else {
		codes = auth.NewMemoryCodeStore()
	}
	a.mfa = auth.NewMFA(codes, cfg.MFACodeTTL, cfg.MFAMaxAttempts)

	key, generated, err := resolveSigningKey(cfg)
	if err != nil {
		return nil, err
	}
	switch {
	case generated:
		logger.Warn().Msg("AUTH_SIGNING_KEY not set; using a random key, tokens will not survive a restart")
	case key == nil:
		logger.Warn().Str("issuer", cfg.AuthIssuer).Msg("no signing key; verifying external tokens only, local login disabled")
	}
	a.signingKey = key

	backend, err := newQueueBackend(ctx, cfg, a.redis)
	if err != nil {
		return nil, err
	}
	a.backend = backend

	if pool != nil {
		a.store = notification.NewStorePG(pool)
	} else {
		a.store = notification.NewMemoryStore()
	}
	registry, err := notification.NewRegistryFromConfig(driverConfig(cfg), a.store, a.hub, logger)
	if err != nil {
		return nil, err
	}
	a.dispatcher = notification.NewDispatcher(registry, logger,
		notification.WithQueue(queue.NewProducer(backend, logger), cfg.QueueName),
		notification.WithCodec(newCodec()),
	)
	return a, nil
}

func (a *app) newServices(ctx context.Context) (*services, error) {
	cfg := a.cfg
	tokens := auth.NewTokenIssuer(a.signingKey, cfg.AuthIssuer, cfg.AuthAudience, cfg.AuthTokenTTL)

	identitySvc := identity.NewService(identity.NewUserRepoPG(a.pool), identity.NewDeviceRepoPG(a.pool),
		a.mfa, tokens, a.dispatcher, a.logger)
	assessmentSvc := assessment.NewService(assessment.NewRepoPG(a.pool), identitySvc, a.dispatcher, cfg.AppURL, a.logger)
	facilitySvc := facility.NewService(facility.NewRepoPG(a.pool))

	if cfg.ExportS3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		assessmentSvc.SetArchiver(assessment.NewS3Archiver(s3.NewFromConfig(awsCfg), cfg.ExportS3Bucket))
	}

	return &services{
		identity:   identitySvc,
		assessment: assessmentSvc,
		facility:   facilitySvc,
		referral: referral.NewService(referral.NewRepoPG(a.pool), assessmentSvc, facilitySvc, identitySvc,
			a.dispatcher, cfg.AppURL, a.logger),
		emergency: emergency.NewService(emergency.NewRepoPG(a.pool), identitySvc, a.dispatcher, a.hub,
			cfg.QueueHighPriorityName, a.logger),
		inbox: inbox.NewService(a.store, a.hub, a.logger),
	}, nil
}

// newWorker consumes the high-priority queue ahead of the default one.
func (a *app) newWorker() *queue.Worker {
	queues := []string{a.cfg.QueueHighPriorityName, a.cfg.QueueName}
	return queue.NewWorker(a.backend, queues, a.cfg.QueueWorkers, a.dispatcher.HandleJob, a.logger)
}

func (a *app) close() {
	if err := a.backend.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close queue backend")
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
