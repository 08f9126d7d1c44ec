// Package config defines process configuration and its loading hooks.
//
// Conventions:
// - Provide New(ctx) initializer to build a Config with defaults.
// - Functions accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: json or text.
	LogFormat string `koanf:"log_format"`

	// MetricsAddr is the /metrics listen address; empty disables it.
	MetricsAddr string `koanf:"metrics_addr"`

	// StoreDriver is one of memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`

	// StoreDSN is the SQLite path or Postgres connection string.
	StoreDSN string `koanf:"store_dsn"`

	// GamesPath points at the JSON array of skater game rows to score.
	GamesPath string `koanf:"games_path"`

	// SeasonID is the target season, e.g. 20242025.
	SeasonID int `koanf:"season_id"`

	// ScoringConfigPath is an optional YAML scoring config. When set it is
	// watched and a change triggers a re-run.
	ScoringConfigPath string `koanf:"scoring_config_path"`

	// RunInterval re-runs the pipeline periodically; zero runs once.
	RunInterval time.Duration `koanf:"run_interval"`

	// WorkerCount bounds the per-player fan-out.
	WorkerCount int `koanf:"worker_count"`

	// RetroWorkers is the number of retro-recompute workers.
	RetroWorkers int `koanf:"retro_workers"`

	// RetroQueueSize bounds the retro task queue.
	RetroQueueSize int `koanf:"retro_queue_size"`

	Persist       bool          `koanf:"persist"`
	UseLock       bool          `koanf:"use_lock"`
	LockTimeout   time.Duration `koanf:"lock_timeout"`
	Incremental   bool          `koanf:"incremental"`
	BuildSnapshot bool          `koanf:"build_snapshot"`
	AssignTiers   bool          `koanf:"assign_tiers"`
	WriteRunLog   bool          `koanf:"write_run_log"`

	// Tracing installs the stdout span exporter.
	Tracing bool `koanf:"tracing"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "json",
		MetricsAddr:    ":9090",
		StoreDriver:    StoreMemory,
		GamesPath:      "games.json",
		SeasonID:       20242025,
		WorkerCount:    runtime.NumCPU(),
		RetroWorkers:   1,
		RetroQueueSize: 1024,
		Persist:        true,
		UseLock:        true,
		BuildSnapshot:  true,
		AssignTiers:    true,
		WriteRunLog:    true,
	}
}

// Validate checks field combinations Load cannot express in types.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if c.StoreDSN == "" {
			return fmt.Errorf("%w: store_dsn required for %s", ErrInvalidConfig, c.StoreDriver)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.SeasonID <= 0 {
		return fmt.Errorf("%w: season_id must be positive", ErrInvalidConfig)
	}
	if c.GamesPath == "" {
		return fmt.Errorf("%w: games_path must not be empty", ErrInvalidConfig)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("%w: worker_count must be at least 1", ErrInvalidConfig)
	}
	if c.RunInterval < 0 || c.LockTimeout < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	return nil
}
