package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment configuration for the service.
type Config struct {
	HTTPAddr string `env:"SSE_HTTP_ADDR" envDefault:":8080"`
	DataDir  string `env:"SSE_DATA_DIR"`

	// Strategy selects the delivery strategy: direct | replay-log | poll.
	Strategy string `env:"SSE_STRATEGY" envDefault:"replay-log"`
	// BufferSize bounds each subscriber's backpressure buffer.
	BufferSize int `env:"SSE_BUFFER_SIZE" envDefault:"1000"`
	// PollInterval is the store query period for the poll strategy.
	PollInterval time.Duration `env:"SSE_POLL_INTERVAL" envDefault:"2s"`

	// RetryShape selects the save-retry policy: exp | fixed.
	RetryShape         string        `env:"SSE_RETRY_SHAPE" envDefault:"exp"`
	RetryMaxAttempts   int           `env:"SSE_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay     time.Duration `env:"SSE_RETRY_BASE_DELAY" envDefault:"1s"`
	FixedRetryAttempts int           `env:"SSE_FIXED_RETRY_ATTEMPTS" envDefault:"5"`
	FixedRetryDelay    time.Duration `env:"SSE_FIXED_RETRY_DELAY" envDefault:"3s"`

	// StoreBackend selects the record store: pebble | postgres.
	StoreBackend string `env:"SSE_STORE_BACKEND" envDefault:"pebble"`
	DatabaseURL  string `env:"DATABASE_URL"`

	// RedisAddr enables the Redis Streams relay when non-empty.
	RedisAddr   string `env:"REDIS_ADDR"`
	RedisStream string `env:"REDIS_STREAM" envDefault:"transactions:events"`

	LogLevel  string `env:"SSE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"SSE_LOG_FORMAT" envDefault:"text"`

	// Fsync controls pebble WAL durability: always | interval | never.
	Fsync         string        `env:"SSE_FSYNC" envDefault:"always"`
	FsyncInterval time.Duration `env:"SSE_FSYNC_INTERVAL" envDefault:"5ms"`
}

// Load parses the environment into a Config. A .env file in the working
// directory is overlaid first when present; real environment variables win.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the rest of the process cannot act on.
func (c *Config) Validate() error {
	switch c.Strategy {
	case "direct", "replay-log", "poll":
	default:
		return fmt.Errorf("invalid strategy %q; use direct|replay-log|poll", c.Strategy)
	}
	switch c.RetryShape {
	case "exp", "fixed":
	default:
		return fmt.Errorf("invalid retry shape %q; use exp|fixed", c.RetryShape)
	}
	switch c.StoreBackend {
	case "pebble":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("postgres store requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("invalid store backend %q; use pebble|postgres", c.StoreBackend)
	}
	switch c.Fsync {
	case "always", "interval", "never":
	default:
		return fmt.Errorf("invalid fsync mode %q; use always|interval|never", c.Fsync)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive, got %d", c.BufferSize)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	return nil
}
