// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	NotifyInProcess = "gochannel"
	NotifyRedis     = "redis"
)

type Config struct {
	Port int `env:"PORT" envDefault:"8080"`

	// StorageBackend is memory or postgres.
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"memory"`
	DatabaseURL    string `env:"DATABASE_URL"`

	// NotifyBackend is gochannel or redis.
	NotifyBackend string `env:"NOTIFY_BACKEND" envDefault:"gochannel"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	CreditRefundExpiryDays int     `env:"CREDIT_REFUND_EXPIRY_DAYS" envDefault:"30"`
	ReserveRatePerSecond   float64 `env:"RESERVE_RATE_PER_SECOND" envDefault:"50"`
	ReserveBurst           int     `env:"RESERVE_BURST" envDefault:"100"`

	// OTLPEndpoint enables tracing when set, e.g. http://localhost:4318.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StorageBackend {
	case StorageMemory:
	case StoragePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=%s", StoragePostgres)
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (want %s or %s)", c.StorageBackend, StorageMemory, StoragePostgres)
	}
	switch c.NotifyBackend {
	case NotifyInProcess, NotifyRedis:
	default:
		return fmt.Errorf("unknown NOTIFY_BACKEND %q (want %s or %s)", c.NotifyBackend, NotifyInProcess, NotifyRedis)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.CreditRefundExpiryDays < 0 {
		return fmt.Errorf("CREDIT_REFUND_EXPIRY_DAYS must be >= 0, got %d", c.CreditRefundExpiryDays)
	}
	if c.ReserveRatePerSecond < 0 || c.ReserveBurst < 0 {
		return fmt.Errorf("RESERVE_RATE_PER_SECOND and RESERVE_BURST must be >= 0")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// Level is the parsed LOG_LEVEL. Validate has already rejected unknown levels.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
