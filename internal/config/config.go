package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN       string        `env:"DATABASE_DSN,required=true"`
	RabbitMQURL       string        `env:"RABBITMQ_URL,required=true"`
	RedisURL          string        `env:"REDIS_URL,required=true"`
	IdentityURL       string        `env:"IDENTITY_URL,required=true"`
	APIPort           int           `env:"API_PORT,default=8080"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
	ShiftWidthFactor  float64       `env:"SHIFT_WIDTH_FACTOR,default=1.0"`
	StoreTimeout      time.Duration `env:"STORE_TIMEOUT,default=5s"`
	StoreRetries      int           `env:"STORE_RETRIES,default=1"`
	BatchLockTTL      time.Duration `env:"BATCH_LOCK_TTL,default=10s"`
	ClockTickInterval time.Duration `env:"CLOCK_TICK_INTERVAL,default=1s"`
	CatalogSeedFile   string        `env:"CATALOG_SEED_FILE"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY,default=2"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"DATABASE_DSN", c.DatabaseDSN},
		{"RABBITMQ_URL", c.RabbitMQURL},
		{"REDIS_URL", c.RedisURL},
		{"IDENTITY_URL", c.IdentityURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s must not be empty", r.name)
		}
	}

	switch {
	case c.ShiftWidthFactor <= 0:
		return fmt.Errorf("SHIFT_WIDTH_FACTOR must be positive (got %v)", c.ShiftWidthFactor)
	case c.StoreTimeout <= 0:
		return fmt.Errorf("STORE_TIMEOUT must be positive (got %s)", c.StoreTimeout)
	case c.StoreRetries < 0:
		return fmt.Errorf("STORE_RETRIES must not be negative (got %d)", c.StoreRetries)
	case c.BatchLockTTL <= 0:
		return fmt.Errorf("BATCH_LOCK_TTL must be positive (got %s)", c.BatchLockTTL)
	case c.ClockTickInterval <= 0:
		return fmt.Errorf("CLOCK_TICK_INTERVAL must be positive (got %s)", c.ClockTickInterval)
	}
	return nil
}
