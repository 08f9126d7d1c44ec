// Package repository defines the persistence contract of the scoring pipeline
// and an in-memory implementation.
package repository

import (
	"context"
	"time"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/scoringconfig"
)

// Operation names used in errors, logs and metrics.
const (
	OpUpsertRows       = "upsert_rows"
	OpUpsertSnapshot   = "upsert_snapshot"
	OpFetchSnapshot    = "fetch_snapshot"
	OpFetchWatermark   = "fetch_watermark"
	OpInsertRunLog     = "insert_run_log"
	OpEnqueueRetro     = "enqueue_retro"
	OpTryLock          = "try_lock"
	OpLock             = "lock"
	OpUnlock           = "unlock"
	OpFetchConfig      = "fetch_config"
	OpUpsertConfig     = "upsert_config"
	OpLeagueAggregates = "league_aggregates"
	OpPlayerHistory    = "player_history"
	OpUpsertTotals     = "upsert_season_totals"
)

// Store is the persistence sink of the orchestrator. Every method may fail
// with an error wrapping ErrStoreUnavailable; callers decide how to degrade.
type Store interface {
	// UpsertScoredRows writes rows keyed by (player, game date, window type,
	// model version) and returns the number written.
	UpsertScoredRows(ctx context.Context, rows []model.EnrichedWindowRow) (int, error)
	// UpsertSnapshot stores a distribution snapshot. It reports whether the
	// snapshot was written.
	UpsertSnapshot(ctx context.Context, snap model.DistributionSnapshot) (bool, error)
	// FetchLatestSnapshot returns the newest snapshot for the key, or nil.
	FetchLatestSnapshot(ctx context.Context, windowType model.WindowType, modelVersion int, configHash string) (*model.DistributionSnapshot, error)
	// FetchMaxProcessedDate returns the latest persisted game date, or nil.
	FetchMaxProcessedDate(ctx context.Context, modelVersion int, windowType model.WindowType) (*time.Time, error)
	// InsertRunLog appends a run record.
	InsertRunLog(ctx context.Context, rec model.RunRecord) error
	// EnqueueRetroTask records a request to recompute scope.
	EnqueueRetroTask(ctx context.Context, reason string, scope model.RetroScope) error

	// TryLock attempts the pipeline advisory lock without waiting.
	TryLock(ctx context.Context) (bool, error)
	// Lock waits up to timeout for the pipeline advisory lock.
	Lock(ctx context.Context, timeout time.Duration) (bool, error)
	// Unlock releases the pipeline advisory lock.
	Unlock(ctx context.Context) error
}

// AggregateSource provides league and player counts when they are kept in the
// store rather than derived from the run's games.
type AggregateSource interface {
	LeagueAggregates(ctx context.Context, seasonID int) ([]model.LeagueAggregate, error)
	PlayerHistory(ctx context.Context, seasonIDs []int) ([]model.PlayerSeasonTotals, error)
}

// Backend is everything a full store implements.
type Backend interface {
	Store
	AggregateSource
	scoringconfig.Source
	scoringconfig.VersionWriter
	UpsertSeasonTotals(ctx context.Context, totals []model.PlayerSeasonTotals) (int, error)
}

// RetroSink receives retro tasks for asynchronous handling.
type RetroSink interface {
	Enqueue(ctx context.Context, task model.RetroTask) error
}
