// Package config loads application settings from the environment (and an
// optional .env file) with defaults and validation.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// SMTPConfig holds outgoing mail settings. An empty Host logs mail instead of sending it.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// PaymentConfig selects and configures the payment gateway.
type PaymentConfig struct {
	Provider      string // stripe|mock
	Currency      string
	StripeKey     string
	WebhookSecret string
	DevSecret     string // X-Dev-Secret for the mock completion endpoint
}

// OutboxConfig tunes the notification worker.
type OutboxConfig struct {
	Interval    time.Duration
	Batch       int
	MaxAttempts int
}

// StorageConfig points at Supabase Storage. Empty URL disables document upload.
type StorageConfig struct {
	URL    string
	Key    string
	Bucket string
}

type Config struct {
	AppEnv string
	Port   string

	// Database
	DBDriver    string // postgres|sqlite
	DatabaseURL string
	DBPath      string

	// Auth
	JWTSecret         string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	PrincipalCacheTTL time.Duration
	AuthRateRPS       float64
	AuthRateBurst     int

	// Logging / docs
	LogLevel       string // debug|info|warn|error
	LogFormat      string // json|console
	SwaggerEnabled bool

	DefaultRegistrationFee decimal.Decimal

	Payment PaymentConfig
	SMTP    SMTPConfig
	Outbox  OutboxConfig
	Storage StorageConfig
}

// IsDev reports whether the app runs in the dev environment.
func (c Config) IsDev() bool { return c.AppEnv == "dev" }

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	fee, err := decimal.NewFromString(getenv("DEFAULT_REGISTRATION_FEE", "500.00"))
	if err != nil {
		return Config{}, errors.New("DEFAULT_REGISTRATION_FEE must be a decimal")
	}

	cfg := Config{
		AppEnv: strings.ToLower(getenv("APP_ENV", "prod")),
		Port:   getenv("PORT", "3000"),

		DBDriver:    strings.ToLower(getenv("DB_DRIVER", "postgres")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBPath:      getenv("DB_PATH", "lawsuit.db"),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		AccessTokenTTL:    getdur("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:   getdur("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		PrincipalCacheTTL: getdur("PRINCIPAL_CACHE_TTL", 5*time.Minute),
		AuthRateRPS:       getfloat("AUTH_RATE_RPS", 2),
		AuthRateBurst:     getint("AUTH_RATE_BURST", 10),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getenv("LOG_FORMAT", "json")),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", true),

		DefaultRegistrationFee: fee,

		Payment: PaymentConfig{
			Provider:      strings.ToLower(getenv("PAYMENT_PROVIDER", "mock")),
			Currency:      strings.ToLower(getenv("PAYMENT_CURRENCY", "inr")),
			StripeKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			DevSecret:     os.Getenv("DEV_PAYMENT_SECRET"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getint("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getenv("MAIL_FROM", "no-reply@lawsuit.local"),
		},
		Outbox: OutboxConfig{
			Interval:    getdur("OUTBOX_INTERVAL", 5*time.Second),
			Batch:       getint("OUTBOX_BATCH", 20),
			MaxAttempts: getint("OUTBOX_MAX_ATTEMPTS", 8),
		},
		Storage: StorageConfig{
			URL:    os.Getenv("SUPABASE_URL"),
			Key:    os.Getenv("SUPABASE_SERVICE_KEY"),
			Bucket: getenv("SUPABASE_BUCKET", "case-documents"),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	switch c.DBDriver {
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	case "sqlite":
		if strings.TrimSpace(c.DBPath) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	default:
		return errors.New("DB_DRIVER must be postgres or sqlite")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive durations")
	}
	if c.DefaultRegistrationFee.IsNegative() {
		return errors.New("DEFAULT_REGISTRATION_FEE must be >= 0")
	}
	switch c.Payment.Provider {
	case "mock":
	case "stripe":
		if c.Payment.StripeKey == "" {
			return errors.New("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	default:
		return errors.New("PAYMENT_PROVIDER must be stripe or mock")
	}
	if c.Outbox.Interval <= 0 || c.Outbox.Batch < 1 || c.Outbox.MaxAttempts < 1 {
		return errors.New("OUTBOX_INTERVAL, OUTBOX_BATCH and OUTBOX_MAX_ATTEMPTS must be positive")
	}
	if c.AuthRateRPS < 0 || c.AuthRateBurst < 1 {
		return errors.New("AUTH_RATE_RPS must be >= 0 and AUTH_RATE_BURST >= 1")
	}
	return nil
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
