// Package config loads service configuration from TUNA_-prefixed
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime knob of the API process.
type Config struct {
	Addr            string        `env:"TUNA_ADDR"              envDefault:":8080"`
	PGDSN           string        `env:"TUNA_PG_DSN"`
	ReadTimeout     time.Duration `env:"TUNA_READ_TIMEOUT"      envDefault:"15s"`
	WriteTimeout    time.Duration `env:"TUNA_WRITE_TIMEOUT"     envDefault:"15s"`
	IdleTimeout     time.Duration `env:"TUNA_IDLE_TIMEOUT"      envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"TUNA_SHUTDOWN_TIMEOUT"  envDefault:"10s"`
	MaxBodyBytes    int64         `env:"TUNA_MAX_BODY_BYTES"    envDefault:"1048576"`
	RateBurst       int           `env:"TUNA_RATE_BURST"        envDefault:"20"`
	RatePerSecond   int           `env:"TUNA_RATE_PER_SECOND"   envDefault:"10"`
	MigrationsDir   string        `env:"TUNA_MIGRATIONS_DIR"    envDefault:"ops/migrations/sql"`
	MigrateOnBoot   bool          `env:"TUNA_MIGRATE_ON_BOOT"   envDefault:"false"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
