package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", "test.db")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PAYMENT_PROVIDER", "mock")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "3000" {
		t.Fatalf("want default port 3000, got %s", cfg.Port)
	}
	if !cfg.DefaultRegistrationFee.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("want default fee 500, got %s", cfg.DefaultRegistrationFee)
	}
	if cfg.Payment.Currency != "inr" {
		t.Fatalf("want inr, got %s", cfg.Payment.Currency)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl %v", cfg.AccessTokenTTL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DEFAULT_REGISTRATION_FEE", "750.50")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("OUTBOX_INTERVAL", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultRegistrationFee.String() != "750.5" {
		t.Fatalf("fee override not applied: %s", cfg.DefaultRegistrationFee)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("warning should normalize to warn, got %s", cfg.LogLevel)
	}
	if cfg.Outbox.Interval != 2*time.Second {
		t.Fatalf("outbox interval override not applied: %v", cfg.Outbox.Interval)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing jwt secret":  {"JWT_SECRET": ""},
		"bad driver":          {"DB_DRIVER": "mysql"},
		"postgres needs dsn":  {"DB_DRIVER": "postgres", "DATABASE_URL": ""},
		"stripe needs key":    {"PAYMENT_PROVIDER": "stripe", "STRIPE_SECRET_KEY": ""},
		"negative fee":        {"DEFAULT_REGISTRATION_FEE": "-1"},
		"non decimal fee":     {"DEFAULT_REGISTRATION_FEE": "abc"},
		"unknown log level":   {"LOG_LEVEL": "trace"},
		"zero outbox batch":   {"OUTBOX_BATCH": "0"},
		"unknown pay gateway": {"PAYMENT_PROVIDER": "paypal"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
