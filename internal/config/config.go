// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the runtime configuration shared by every command.
//
// Conditions must be identical across restarts that read the same database;
// the store refuses to open with a different count.
type Config struct {
	DB            string        `env:"COUNTERBALANCE_DB"             envDefault:"./conditions.db"`
	Addr          string        `env:"COUNTERBALANCE_ADDR"           envDefault:"localhost:3001"`
	Conditions    int           `env:"COUNTERBALANCE_CONDITIONS"     envDefault:"12"`
	PendingWeight float64       `env:"COUNTERBALANCE_PENDING_WEIGHT" envDefault:"0.95"`
	MaxAttempts   int           `env:"COUNTERBALANCE_MAX_ATTEMPTS"   envDefault:"3"`
	RetryBackoff  time.Duration `env:"COUNTERBALANCE_RETRY_BACKOFF"  envDefault:"100ms"`
	BusyTimeout   time.Duration `env:"COUNTERBALANCE_BUSY_TIMEOUT"   envDefault:"5s"`
	TraceFile     string        `env:"COUNTERBALANCE_TRACE_FILE"`
	AllowedOrigin string        `env:"COUNTERBALANCE_ALLOWED_ORIGIN" envDefault:"*"`
}

// Load parses the environment into a Config and validates it.
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

// Default returns the configuration used when no environment is set.
func Default() Config {
	var cfg Config
	// Defaults come from envDefault tags; an empty environment cannot fail.
	_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

// Validate rejects values the balancer cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.DB == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if c.Conditions < 1 {
		errs = append(errs, fmt.Errorf("conditions must be >= 1, got %d", c.Conditions))
	}
	if c.PendingWeight < 0 || c.PendingWeight > 1 {
		errs = append(errs, fmt.Errorf("pending weight must be in [0, 1], got %g", c.PendingWeight))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be >= 1, got %d", c.MaxAttempts))
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("retry backoff must not be negative, got %s", c.RetryBackoff))
	}
	if c.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("busy timeout must not be negative, got %s", c.BusyTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
