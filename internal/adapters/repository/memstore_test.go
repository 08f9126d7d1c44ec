package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/scoringconfig"
)

type recordingSink struct {
	mu    sync.Mutex
	tasks []model.RetroTask
	err   error
}

func (r *recordingSink) Enqueue(_ context.Context, task model.RetroTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.tasks = append(r.tasks, task)
	return nil
}

func scoredRow(player int64, day int, wt model.WindowType, version int) model.EnrichedWindowRow {
	r := model.EnrichedWindowRow{ModelVersion: version}
	r.PlayerID = player
	r.WindowType = wt
	r.GameDate = time.Date(2024, 11, day, 0, 0, 0, 0, time.UTC)
	r.Score = model.Float(float64(day))
	return r
}

func TestMemoryStore_ScoredRows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if w, err := store.FetchMaxProcessedDate(ctx, 1, model.WindowGame); err != nil || w != nil {
		t.Fatalf("expected no watermark on empty store, got %v, %v", w, err)
	}

	rows := []model.EnrichedWindowRow{
		scoredRow(1, 3, model.WindowGame, 1),
		scoredRow(1, 5, model.WindowGame, 1),
		scoredRow(1, 9, model.WindowSTD, 1),
		scoredRow(2, 7, model.WindowGame, 2),
	}
	n, err := store.UpsertScoredRows(ctx, rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 rows written, got %d", n)
	}

	// Upserting the same key replaces the row.
	replaced := scoredRow(1, 3, model.WindowGame, 1)
	replaced.Score = model.Float(99)
	if _, err := store.UpsertScoredRows(ctx, []model.EnrichedWindowRow{replaced}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored := store.ScoredRows()
	if len(stored) != 4 {
		t.Fatalf("expected 4 stored rows, got %d", len(stored))
	}
	if *stored[0].Score != 99 {
		t.Errorf("expected replaced score 99, got %v", *stored[0].Score)
	}

	w, err := store.FetchMaxProcessedDate(ctx, 1, model.WindowGame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w == nil || w.Day() != 5 {
		t.Errorf("expected watermark on day 5, got %v", w)
	}
}

func TestMemoryStore_Snapshots(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	snap := model.DistributionSnapshot{WindowType: model.WindowGame, ModelVersion: 1, ConfigHash: "h", N: 10, T20: 1, T40: 2, T60: 3, T80: 4}
	ok, err := store.UpsertSnapshot(ctx, snap)
	if err != nil || !ok {
		t.Fatalf("expected snapshot stored, got %v, %v", ok, err)
	}

	got, err := store.FetchLatestSnapshot(ctx, model.WindowGame, 1, "h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.T80 != 4 {
		t.Errorf("expected stored snapshot, got %+v", got)
	}

	missing, err := store.FetchLatestSnapshot(ctx, model.WindowGame, 1, "other")
	if err != nil || missing != nil {
		t.Errorf("expected no snapshot for another hash, got %+v, %v", missing, err)
	}

	bad := snap
	bad.T20 = 10
	if _, err := store.UpsertSnapshot(ctx, bad); !errors.Is(err, model.ErrInvalidSnapshot) {
		t.Errorf("expected invalid snapshot error, got %v", err)
	}
}

func TestMemoryStore_Lock(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithLockPollInterval(time.Millisecond))

	ok, err := store.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first TryLock to succeed, got %v, %v", ok, err)
	}
	ok, err = store.TryLock(ctx)
	if err != nil || ok {
		t.Fatalf("expected contended TryLock to fail, got %v, %v", ok, err)
	}

	start := time.Now()
	ok, err = store.Lock(ctx, 20*time.Millisecond)
	if err != nil || ok {
		t.Fatalf("expected Lock to time out, got %v, %v", ok, err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Errorf("expected Lock to wait for the timeout")
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = store.Unlock(ctx)
	}()
	ok, err = store.Lock(ctx, time.Second)
	if err != nil || !ok {
		t.Fatalf("expected Lock to acquire after release, got %v, %v", ok, err)
	}
	if err := store.Unlock(ctx); err != nil {
		t.Fatalf("unexpected unlock error: %v", err)
	}
	if err := store.Unlock(ctx); !errors.Is(err, ErrLockNotHeld) {
		t.Errorf("expected ErrLockNotHeld, got %v", err)
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewMemoryStore()

	if _, err := store.UpsertScoredRows(ctx, nil); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := store.InsertRunLog(ctx, model.RunRecord{}); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := store.TryLock(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestMemoryStore_RetroTasks(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	store := NewMemoryStore(WithRetroSink(sink))
	scope := model.RetroScope{SeasonID: 20242025, ModelVersion: 1, WindowType: model.WindowGame, PrevConfigHash: "a", ConfigHash: "b"}

	if err := store.EnqueueRetroTask(ctx, "config_changed", scope); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tasks := store.RetroTasks()
	if len(tasks) != 1 || tasks[0].ID == "" || tasks[0].Scope != scope {
		t.Fatalf("expected one recorded task, got %+v", tasks)
	}
	if len(sink.tasks) != 1 || sink.tasks[0].ID != tasks[0].ID {
		t.Errorf("expected task forwarded to sink, got %+v", sink.tasks)
	}

	sink.err = errors.New("full")
	if err := store.EnqueueRetroTask(ctx, "config_changed", scope); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected sink failure to surface as ErrStoreUnavailable, got %v", err)
	}
}

func TestMemoryStore_ConfigVersions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if row, err := store.FetchActive(ctx); err != nil || row != nil {
		t.Fatalf("expected no active row, got %+v, %v", row, err)
	}
	for _, r := range []scoringconfig.Row{
		{ModelVersion: 1, Active: true, Payload: map[string]any{"v": 1}},
		{ModelVersion: 3, Active: false},
		{ModelVersion: 2, Active: true, Payload: map[string]any{"v": 2}},
	} {
		if err := store.UpsertVersion(ctx, r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	row, err := store.FetchActive(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row == nil || row.ModelVersion != 2 {
		t.Errorf("expected highest active version 2, got %+v", row)
	}
	if row.CreatedAt.IsZero() {
		t.Errorf("expected created-at to be stamped")
	}
}

func TestMemoryStore_Aggregates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	mk := func(player int64, season int, pos string, goals, shots float64) model.PlayerSeasonTotals {
		t := model.PlayerSeasonTotals{PlayerID: player, SeasonID: season, PositionCode: pos}
		t.Successes[model.MetricShPct] = goals
		t.Trials[model.MetricShPct] = shots
		return t
	}
	_, err := store.UpsertSeasonTotals(ctx, []model.PlayerSeasonTotals{
		mk(1, 20242025, "C", 10, 100),
		mk(2, 20242025, "LW", 5, 50),
		mk(3, 20242025, "D", 2, 80),
		mk(1, 20232024, "C", 8, 90),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	aggs, err := store.LeagueAggregates(ctx, 20242025)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(aggs) != 6 {
		t.Fatalf("expected 6 aggregates, got %d", len(aggs))
	}
	fwd := aggs[3]
	if fwd.PositionCode != model.PositionForward || fwd.Metric != model.MetricShPct || fwd.Successes != 15 || fwd.Trials != 150 {
		t.Errorf("unexpected forward sh%% aggregate: %+v", fwd)
	}

	hist, err := store.PlayerHistory(ctx, []int{20242025, 20232024})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hist) != 4 || hist[0].PlayerID != 1 || hist[0].SeasonID != 20232024 {
		t.Errorf("unexpected history order: %+v", hist)
	}
}

func TestLeagueAggregatesFromTotals_KeepsInputOrder(t *testing.T) {
	in := []model.PlayerSeasonTotals{
		{PlayerID: 3, SeasonID: 20242025, PositionCode: "D"},
		{PlayerID: 1, SeasonID: 20242025, PositionCode: "C"},
		{PlayerID: 2, SeasonID: 20232024, PositionCode: "LW"},
	}
	in[0].Trials[model.MetricShPct] = 80
	in[1].Trials[model.MetricShPct] = 100

	aggs := LeagueAggregatesFromTotals(in)
	if len(aggs) != 9 {
		t.Fatalf("expected 9 aggregates, got %d", len(aggs))
	}
	if in[0].PlayerID != 3 || in[1].PlayerID != 1 || in[2].PlayerID != 2 {
		t.Errorf("input reordered: %+v", in)
	}
}
