/*
Package config loads server configuration from the environment.

Flags in cmd/server override whatever the environment supplies; see
cmd/server/main.go for precedence.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the reconciliation server needs at startup.
type Config struct {
	Port   int    `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"./data/recon.db"`

	// TIMDSN is the connection string for the external time-tracking
	// database. Empty disables reconciliation (import-only mode).
	TIMDSN          string        `env:"TIM_DSN"`
	TIMQueryTimeout time.Duration `env:"TIM_QUERY_TIMEOUT" envDefault:"30s"`

	ReconcileEnabled  bool          `env:"RECONCILE_ENABLED" envDefault:"false"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"6h"`
	// ReconcileWindowDays is how many days back a scheduled pass covers.
	ReconcileWindowDays int `env:"RECONCILE_WINDOW_DAYS" envDefault:"7"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.ReconcileWindowDays < 1 {
		return Config{}, fmt.Errorf("RECONCILE_WINDOW_DAYS must be at least 1, got %d", cfg.ReconcileWindowDays)
	}
	return cfg, nil
}
