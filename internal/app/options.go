package service

import (
	"time"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/adapters/repository"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/posterior"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/scoringconfig"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/logger"
)

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithStore sets the persistence sink. Without one every persistence phase
// is skipped.
func WithStore(store repository.Store) Option {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithConfigLoader sets the loader used when a run supplies no config.
func WithConfigLoader(l *scoringconfig.Loader) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.loader = l
		}
	}
}

// WithAggregateSource reads league aggregates and player history from src
// instead of deriving them from the run's games.
func WithAggregateSource(src repository.AggregateSource) Option {
	return func(o *Orchestrator) {
		o.aggregates = src
	}
}

// WithWorkers bounds the per-player fan-out.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithBlendWeights overrides the posterior season blend weights.
func WithBlendWeights(w [posterior.Seasons]float64) Option {
	return func(o *Orchestrator) {
		o.blend = w
	}
}

// WithClock sets the clock used for run and snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets a custom logger for the orchestrator.
func WithLogger(log logger.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.logger = log
		}
	}
}
