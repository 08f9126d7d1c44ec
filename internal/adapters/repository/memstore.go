package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/scoringconfig"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/logger"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/metrics"
)

const defaultLockPoll = 10 * time.Millisecond

type rowKey struct {
	player       int64
	date         time.Time
	window       model.WindowType
	modelVersion int
}

type snapshotKey struct {
	window       model.WindowType
	modelVersion int
	configHash   string
}

type totalsKey struct {
	player int64
	season int
}

// MemoryStore implements Backend in process memory. The advisory lock is
// shared by every caller of the same instance.
type MemoryStore struct {
	mu        sync.RWMutex
	rows      map[rowKey]model.EnrichedWindowRow
	snapshots map[snapshotKey]model.DistributionSnapshot
	runs      []model.RunRecord
	retro     []model.RetroTask
	configs   []scoringconfig.Row
	totals    map[totalsKey]model.PlayerSeasonTotals

	lock      sync.Mutex
	lockPoll  time.Duration
	retroSink RetroSink
	now       func() time.Time
	logger    logger.Logger
}

// NewMemoryStore constructs an empty memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		rows:      make(map[rowKey]model.EnrichedWindowRow),
		snapshots: make(map[snapshotKey]model.DistributionSnapshot),
		totals:    make(map[totalsKey]model.PlayerSeasonTotals),
		lockPoll:  defaultLockPoll,
		now:       time.Now,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertScoredRows implements Store.UpsertScoredRows.
func (s *MemoryStore) UpsertScoredRows(ctx context.Context, rows []model.EnrichedWindowRow) (int, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryWriteLatency(float64(time.Since(start).Milliseconds()))
	}()
	if err := ctx.Err(); err != nil {
		return 0, Unavailable(OpUpsertRows, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		k := rowKey{player: r.PlayerID, date: model.DateOnly(r.GameDate), window: r.WindowType, modelVersion: r.ModelVersion}
		s.rows[k] = r
	}
	return len(rows), nil
}

// UpsertSnapshot implements Store.UpsertSnapshot.
func (s *MemoryStore) UpsertSnapshot(ctx context.Context, snap model.DistributionSnapshot) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, Unavailable(OpUpsertSnapshot, err)
	}
	if err := snap.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshotKey{window: snap.WindowType, modelVersion: snap.ModelVersion, configHash: snap.ConfigHash}] = snap
	return true, nil
}

// FetchLatestSnapshot implements Store.FetchLatestSnapshot.
func (s *MemoryStore) FetchLatestSnapshot(ctx context.Context, windowType model.WindowType, modelVersion int, configHash string) (*model.DistributionSnapshot, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()
	if err := ctx.Err(); err != nil {
		return nil, Unavailable(OpFetchSnapshot, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[snapshotKey{window: windowType, modelVersion: modelVersion, configHash: configHash}]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// FetchMaxProcessedDate implements Store.FetchMaxProcessedDate.
func (s *MemoryStore) FetchMaxProcessedDate(ctx context.Context, modelVersion int, windowType model.WindowType) (*time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, Unavailable(OpFetchWatermark, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *time.Time
	for k := range s.rows {
		if k.modelVersion != modelVersion || k.window != windowType {
			continue
		}
		if latest == nil || k.date.After(*latest) {
			d := k.date
			latest = &d
		}
	}
	return latest, nil
}

// InsertRunLog implements Store.InsertRunLog.
func (s *MemoryStore) InsertRunLog(ctx context.Context, rec model.RunRecord) error {
	if err := ctx.Err(); err != nil {
		return Unavailable(OpInsertRunLog, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, rec)
	return nil
}

// EnqueueRetroTask implements Store.EnqueueRetroTask. When a sink is set the
// task is forwarded to it as well.
func (s *MemoryStore) EnqueueRetroTask(ctx context.Context, reason string, scope model.RetroScope) error {
	if err := ctx.Err(); err != nil {
		return Unavailable(OpEnqueueRetro, err)
	}
	task := model.RetroTask{ID: uuid.NewString(), Reason: reason, Scope: scope, CreatedAt: s.now().UTC()}
	s.mu.Lock()
	s.retro = append(s.retro, task)
	s.mu.Unlock()

	if s.retroSink != nil {
		if err := s.retroSink.Enqueue(ctx, task); err != nil {
			return Unavailable(OpEnqueueRetro, err)
		}
	}
	s.logger.Debug(ctx, "retro task recorded", logger.String("task_id", task.ID), logger.String("scope", scope.Key()))
	return nil
}

// TryLock implements Store.TryLock.
func (s *MemoryStore) TryLock(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, Unavailable(OpTryLock, err)
	}
	return s.lock.TryLock(), nil
}

// Lock implements Store.Lock by polling TryLock until timeout.
func (s *MemoryStore) Lock(ctx context.Context, timeout time.Duration) (bool, error) {
	if s.lock.TryLock() {
		return true, nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.lockPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false, Unavailable(OpLock, ctx.Err())
		case <-deadline.C:
			return false, nil
		case <-ticker.C:
			if s.lock.TryLock() {
				return true, nil
			}
		}
	}
}

// Unlock implements Store.Unlock.
func (s *MemoryStore) Unlock(_ context.Context) error {
	if s.lock.TryLock() {
		s.lock.Unlock()
		return ErrLockNotHeld
	}
	s.lock.Unlock()
	return nil
}

// FetchActive implements scoringconfig.Source.
func (s *MemoryStore) FetchActive(ctx context.Context) (*scoringconfig.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, Unavailable(OpFetchConfig, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *scoringconfig.Row
	for i := range s.configs {
		r := s.configs[i]
		if r.Active && (best == nil || r.ModelVersion > best.ModelVersion) {
			best = &r
		}
	}
	return best, nil
}

// UpsertVersion implements scoringconfig.VersionWriter. Rows are keyed by
// model version.
func (s *MemoryStore) UpsertVersion(ctx context.Context, row scoringconfig.Row) error {
	if err := ctx.Err(); err != nil {
		return Unavailable(OpUpsertConfig, err)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.configs {
		if s.configs[i].ModelVersion == row.ModelVersion {
			s.configs[i] = row
			return nil
		}
	}
	s.configs = append(s.configs, row)
	return nil
}

// UpsertSeasonTotals stores per-player season totals.
func (s *MemoryStore) UpsertSeasonTotals(ctx context.Context, totals []model.PlayerSeasonTotals) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, Unavailable(OpUpsertTotals, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range totals {
		s.totals[totalsKey{player: t.PlayerID, season: t.SeasonID}] = t
	}
	return len(totals), nil
}

// LeagueAggregates implements AggregateSource by summing stored season totals
// per position group.
func (s *MemoryStore) LeagueAggregates(ctx context.Context, seasonID int) ([]model.LeagueAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, Unavailable(OpLeagueAggregates, err)
	}
	s.mu.RLock()
	rows := make([]model.PlayerSeasonTotals, 0, len(s.totals))
	for k, t := range s.totals {
		if k.season == seasonID {
			rows = append(rows, t)
		}
	}
	s.mu.RUnlock()
	return LeagueAggregatesFromTotals(rows), nil
}

// PlayerHistory implements AggregateSource.
func (s *MemoryStore) PlayerHistory(ctx context.Context, seasonIDs []int) ([]model.PlayerSeasonTotals, error) {
	if err := ctx.Err(); err != nil {
		return nil, Unavailable(OpPlayerHistory, err)
	}
	want := make(map[int]bool, len(seasonIDs))
	for _, id := range seasonIDs {
		want[id] = true
	}
	s.mu.RLock()
	out := make([]model.PlayerSeasonTotals, 0, len(s.totals))
	for k, t := range s.totals {
		if want[k.season] {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()
	SortTotals(out)
	return out, nil
}

// ScoredRows returns the stored rows ordered by player, date and window type.
func (s *MemoryStore) ScoredRows() []model.EnrichedWindowRow {
	s.mu.RLock()
	out := make([]model.EnrichedWindowRow, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PlayerID != b.PlayerID {
			return a.PlayerID < b.PlayerID
		}
		if !a.GameDate.Equal(b.GameDate) {
			return a.GameDate.Before(b.GameDate)
		}
		return a.WindowType.Ordinal() < b.WindowType.Ordinal()
	})
	return out
}

// RunLogs returns a copy of the appended run records.
func (s *MemoryStore) RunLogs() []model.RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.RunRecord(nil), s.runs...)
}

// RetroTasks returns a copy of the recorded retro tasks.
func (s *MemoryStore) RetroTasks() []model.RetroTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.RetroTask(nil), s.retro...)
}
