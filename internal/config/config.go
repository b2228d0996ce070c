package config

import (
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	AppURL      string `mapstructure:"APP_URL"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthTokenTTL   time.Duration `mapstructure:"AUTH_TOKEN_TTL"`

	CORSOrigins        []string `mapstructure:"CORS_ORIGINS"`
	CORSOriginPatterns []string `mapstructure:"CORS_ORIGIN_PATTERNS"`

	// TrustedProxies lists the CIDRs or addresses whose X-Forwarded-For is
	// believed. Empty means the socket peer is the client.
	TrustedProxies []string `mapstructure:"TRUSTED_PROXIES"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`

	RateLimitStore string `mapstructure:"RATE_LIMIT_STORE"`

	MFACodeTTL     time.Duration `mapstructure:"MFA_CODE_TTL"`
	MFAMaxAttempts int           `mapstructure:"MFA_MAX_ATTEMPTS"`
	MFAStore       string        `mapstructure:"MFA_STORE"`

	NotifyMailDriver string `mapstructure:"NOTIFY_MAIL_DRIVER"`
	NotifySMSDriver  string `mapstructure:"NOTIFY_SMS_DRIVER"`
	NotifyPushDriver string `mapstructure:"NOTIFY_PUSH_DRIVER"`
	NotifyLogEnabled bool   `mapstructure:"NOTIFY_LOG_ENABLED"`

	PostmarkServerToken  string `mapstructure:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `mapstructure:"POSTMARK_ACCOUNT_TOKEN"`
	MailFrom             string `mapstructure:"MAIL_FROM"`
	MailReplyTo          string `mapstructure:"MAIL_REPLY_TO"`

	TwilioAccountSID string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFrom       string `mapstructure:"TWILIO_FROM"`

	FCMServerKey string `mapstructure:"FCM_SERVER_KEY"`
	FCMEndpoint  string `mapstructure:"FCM_ENDPOINT"`

	QueueConnection       string   `mapstructure:"QUEUE_CONNECTION"`
	QueueName             string   `mapstructure:"QUEUE_NAME"`
	QueueHighPriorityName string   `mapstructure:"QUEUE_HIGH_PRIORITY_NAME"`
	QueueWorkers          int      `mapstructure:"QUEUE_WORKERS"`
	SQSQueueURLPrefix     string   `mapstructure:"SQS_QUEUE_URL_PREFIX"`
	KafkaBrokers          []string `mapstructure:"KAFKA_BROKERS"`

	ExportS3Bucket string `mapstructure:"EXPORT_S3_BUCKET"`
}

var envKeys = []string{
	"PORT", "ENV", "APP_URL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_TOKEN_TTL",
	"CORS_ORIGINS", "CORS_ORIGIN_PATTERNS", "TRUSTED_PROXIES",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
	"RATE_LIMIT_STORE",
	"MFA_CODE_TTL", "MFA_MAX_ATTEMPTS", "MFA_STORE",
	"NOTIFY_MAIL_DRIVER", "NOTIFY_SMS_DRIVER", "NOTIFY_PUSH_DRIVER", "NOTIFY_LOG_ENABLED",
	"POSTMARK_SERVER_TOKEN", "POSTMARK_ACCOUNT_TOKEN", "MAIL_FROM", "MAIL_REPLY_TO",
	"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM",
	"FCM_SERVER_KEY", "FCM_ENDPOINT",
	"QUEUE_CONNECTION", "QUEUE_NAME", "QUEUE_HIGH_PRIORITY_NAME", "QUEUE_WORKERS",
	"SQS_QUEUE_URL_PREFIX", "KAFKA_BROKERS",
	"EXPORT_S3_BUCKET",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("APP_URL", "http://localhost:3000")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("AUTH_TOKEN_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("CORS_ORIGIN_PATTERNS", "capacitor://*,ionic://*")
	v.SetDefault("RATE_LIMIT_STORE", "memory")
	v.SetDefault("MFA_CODE_TTL", "5m")
	v.SetDefault("MFA_MAX_ATTEMPTS", 5)
	v.SetDefault("MFA_STORE", "memory")
	v.SetDefault("NOTIFY_MAIL_DRIVER", "mock")
	v.SetDefault("NOTIFY_SMS_DRIVER", "mock")
	v.SetDefault("NOTIFY_PUSH_DRIVER", "mock")
	v.SetDefault("NOTIFY_LOG_ENABLED", true)
	v.SetDefault("FCM_ENDPOINT", "https://fcm.googleapis.com/fcm/send")
	v.SetDefault("QUEUE_CONNECTION", "sync")
	v.SetDefault("QUEUE_NAME", "notifications")
	v.SetDefault("QUEUE_HIGH_PRIORITY_NAME", "notifications-high")
	v.SetDefault("QUEUE_WORKERS", 4)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.CORSOriginPatterns = splitList(cfg.CORSOriginPatterns, v.GetString("CORS_ORIGIN_PATTERNS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))
	cfg.TrustedProxies = splitList(cfg.TrustedProxies, v.GetString("TRUSTED_PROXIES"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Relaxed rate limits and mock notification drivers are active.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

// splitList normalises comma separated env values. viper leaves a single
// element slice holding the raw string when the value comes from the
// environment.
func splitList(current []string, raw string) []string {
	if len(current) > 1 {
		return current
	}
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Production needs a
// way to verify bearer tokens, and every real notification driver must carry
// its provider credentials.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AuthSigningKey == "" && c.AuthIssuer == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_ISSUER is required in production")
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters, got %d", len(c.AuthSigningKey))
	}

	for _, p := range c.TrustedProxies {
		if !validProxy(p) {
			return fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP address or CIDR", p)
		}
	}

	if err := oneOf("RATE_LIMIT_STORE", c.RateLimitStore, "memory", "redis"); err != nil {
		return err
	}
	if err := oneOf("MFA_STORE", c.MFAStore, "memory", "redis"); err != nil {
		return err
	}
	if (c.RateLimitStore == "redis" || c.MFAStore == "redis" || c.QueueConnection == "redis") && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when a redis store or queue is selected")
	}
	if c.MFACodeTTL <= 0 {
		return fmt.Errorf("MFA_CODE_TTL must be positive")
	}
	if c.MFAMaxAttempts <= 0 {
		return fmt.Errorf("MFA_MAX_ATTEMPTS must be positive")
	}

	if err := oneOf("NOTIFY_MAIL_DRIVER", c.NotifyMailDriver, "mock", "postmark"); err != nil {
		return err
	}
	if c.NotifyMailDriver == "postmark" && (c.PostmarkServerToken == "" || c.MailFrom == "") {
		return fmt.Errorf("POSTMARK_SERVER_TOKEN and MAIL_FROM are required for the postmark mail driver")
	}
	if err := oneOf("NOTIFY_SMS_DRIVER", c.NotifySMSDriver, "mock", "twilio"); err != nil {
		return err
	}
	if c.NotifySMSDriver == "twilio" && (c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioFrom == "") {
		return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM are required for the twilio sms driver")
	}
	if err := oneOf("NOTIFY_PUSH_DRIVER", c.NotifyPushDriver, "mock", "fcm"); err != nil {
		return err
	}
	if c.NotifyPushDriver == "fcm" && c.FCMServerKey == "" {
		return fmt.Errorf("FCM_SERVER_KEY is required for the fcm push driver")
	}

	if err := oneOf("QUEUE_CONNECTION", c.QueueConnection, "sync", "redis", "sqs", "kafka"); err != nil {
		return err
	}
	if c.QueueConnection == "sqs" && c.SQSQueueURLPrefix == "" {
		return fmt.Errorf("SQS_QUEUE_URL_PREFIX is required when QUEUE_CONNECTION is sqs")
	}
	if c.QueueConnection == "kafka" && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when QUEUE_CONNECTION is kafka")
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}

func validProxy(p string) bool {
	if strings.Contains(p, "/") {
		_, _, err := net.ParseCIDR(p)
		return err == nil
	}
	return net.ParseIP(p) != nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %q, got %q", key, allowed, value)
}
