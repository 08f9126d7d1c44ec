package sqlstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/adapters/repository"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/adapters/repository/sqlstore"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/scoringconfig"
)

type sinkFunc func(ctx context.Context, task model.RetroTask) error

func (f sinkFunc) Enqueue(ctx context.Context, task model.RetroTask) error { return f(ctx, task) }

func openSQLite(t *testing.T, path string, opts ...sqlstore.Option) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, path, opts...)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func scored(player int64, day int, wt model.WindowType, score float64) model.EnrichedWindowRow {
	r := model.EnrichedWindowRow{ModelVersion: 1, ConfigHash: "abc"}
	r.PlayerID = player
	r.SeasonID = 20242025
	r.PositionCode = "F"
	r.WindowType = wt
	r.GameDate = time.Date(2024, 11, day, 0, 0, 0, 0, time.UTC)
	r.Shots = 4
	r.Goals = 1
	r.ShPct = model.Float(0.25)
	r.Score = model.Float(score)
	r.Metrics[model.MetricShPct] = model.MetricStats{Observed: model.Float(0.25)}
	r.ComponentsJSON = []byte(`[{"metric":"sh_pct"}]`)
	return r
}

func TestSQLStore(t *testing.T) {
	Convey("Given a SQLite backed store", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		store := openSQLite(t, filepath.Join(dir, "scores.db"))

		Convey("An unknown driver is rejected", func() {
			_, err := sqlstore.Open(ctx, "oracle", "dsn")
			So(errors.Is(err, sqlstore.ErrUnknownDriver), ShouldBeTrue)
		})

		Convey("Scored rows upsert on their natural key", func() {
			w, err := store.FetchMaxProcessedDate(ctx, 1, model.WindowGame)
			So(err, ShouldBeNil)
			So(w, ShouldBeNil)

			n, err := store.UpsertScoredRows(ctx, []model.EnrichedWindowRow{
				scored(1, 3, model.WindowGame, 40),
				scored(1, 5, model.WindowGame, 50),
				scored(2, 9, model.WindowSTD, 60),
			})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)

			n, err = store.UpsertScoredRows(ctx, []model.EnrichedWindowRow{scored(1, 5, model.WindowGame, 55)})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			rows, err := store.FetchScoredRows(ctx, 1, model.WindowGame)
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 2)
			So(*rows[1].Score, ShouldEqual, 55)
			So(*rows[1].ShPct, ShouldEqual, 0.25)
			So(rows[1].Metrics[model.MetricShPct].Observed, ShouldNotBeNil)
			So(string(rows[1].ComponentsJSON), ShouldContainSubstring, "sh_pct")

			w, err = store.FetchMaxProcessedDate(ctx, 1, model.WindowGame)
			So(err, ShouldBeNil)
			So(w, ShouldNotBeNil)
			So(w.Equal(time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
		})

		Convey("An empty batch writes nothing", func() {
			n, err := store.UpsertScoredRows(ctx, nil)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("The newest snapshot for a key is returned", func() {
			snap, err := store.FetchLatestSnapshot(ctx, model.WindowGame, 1, "abc")
			So(err, ShouldBeNil)
			So(snap, ShouldBeNil)

			older := model.DistributionSnapshot{WindowType: model.WindowGame, ModelVersion: 1, ConfigHash: "abc", N: 5, T20: 10, T40: 20, T60: 30, T80: 40, CreatedAt: time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)}
			newer := older
			newer.N = 10
			newer.T80 = 45
			newer.CreatedAt = older.CreatedAt.Add(time.Hour)
			for _, s := range []model.DistributionSnapshot{older, newer} {
				ok, err := store.UpsertSnapshot(ctx, s)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
			}

			got, err := store.FetchLatestSnapshot(ctx, model.WindowGame, 1, "abc")
			So(err, ShouldBeNil)
			So(got, ShouldNotBeNil)
			So(got.N, ShouldEqual, 10)
			So(got.T80, ShouldEqual, 45)

			other, err := store.FetchLatestSnapshot(ctx, model.WindowGame, 1, "def")
			So(err, ShouldBeNil)
			So(other, ShouldBeNil)
		})

		Convey("An invalid snapshot is refused", func() {
			bad := model.DistributionSnapshot{WindowType: model.WindowGame, ModelVersion: 1, ConfigHash: "abc", N: 3, T20: 50, T40: 20, T60: 30, T80: 40}
			ok, err := store.UpsertSnapshot(ctx, bad)
			So(ok, ShouldBeFalse)
			So(errors.Is(err, model.ErrInvalidSnapshot), ShouldBeTrue)
		})

		Convey("Run logs keep their diagnostics", func() {
			start := time.Date(2024, 11, 2, 8, 0, 0, 0, time.UTC)
			rec := model.RunRecord{
				RunID:        "run-1",
				SeasonID:     20242025,
				ModelVersion: 1,
				ConfigHash:   "abc",
				ConfigSource: scoringconfig.SourceDefault,
				StartedAt:    start,
				FinishedAt:   start.Add(time.Second),
				RowsIn:       12,
				Status:       model.RunStatusDegraded,
				Diagnostics: map[string]model.PhaseReport{
					"lock": {Status: model.PhaseFailOpen, Error: "contended"},
				},
			}
			So(store.InsertRunLog(ctx, rec), ShouldBeNil)

			logs, err := store.RunLogs(ctx, 10)
			So(err, ShouldBeNil)
			So(logs, ShouldHaveLength, 1)
			So(logs[0].Status, ShouldEqual, model.RunStatusDegraded)
			So(logs[0].Diagnostics["lock"].Status, ShouldEqual, model.PhaseFailOpen)
		})

		Convey("Config versions resolve to the highest active row", func() {
			row, err := store.FetchActive(ctx)
			So(err, ShouldBeNil)
			So(row, ShouldBeNil)

			So(store.UpsertVersion(ctx, scoringconfig.Row{ModelVersion: 1, Active: true, Payload: map[string]any{"a": 1.0}}), ShouldBeNil)
			So(store.UpsertVersion(ctx, scoringconfig.Row{ModelVersion: 2, Active: true, Payload: map[string]any{"a": 2.0}}), ShouldBeNil)
			So(store.UpsertVersion(ctx, scoringconfig.Row{ModelVersion: 3, Active: false, Payload: map[string]any{"a": 3.0}}), ShouldBeNil)

			row, err = store.FetchActive(ctx)
			So(err, ShouldBeNil)
			So(row.ModelVersion, ShouldEqual, 2)
			So(row.Payload["a"], ShouldEqual, 2.0)
		})

		Convey("Season totals feed league aggregates and history", func() {
			var a, b model.PlayerSeasonTotals
			a.PlayerID, a.SeasonID, a.PositionCode = 1, 20242025, "C"
			a.Successes[model.MetricShPct], a.Trials[model.MetricShPct] = 10, 100
			b.PlayerID, b.SeasonID, b.PositionCode = 2, 20242025, "LW"
			b.Successes[model.MetricShPct], b.Trials[model.MetricShPct] = 5, 50
			n, err := store.UpsertSeasonTotals(ctx, []model.PlayerSeasonTotals{a, b})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			aggs, err := store.LeagueAggregates(ctx, 20242025)
			So(err, ShouldBeNil)
			var found bool
			for _, agg := range aggs {
				if agg.PositionCode == "F" && agg.Metric == model.MetricShPct {
					found = true
					So(agg.Successes, ShouldEqual, 15)
					So(agg.Trials, ShouldEqual, 150)
				}
			}
			So(found, ShouldBeTrue)

			hist, err := store.PlayerHistory(ctx, []int{20232024, 20242025})
			So(err, ShouldBeNil)
			So(hist, ShouldHaveLength, 2)
			So(hist[0].PlayerID, ShouldEqual, 1)
		})
	})
}

func TestSQLStoreRetroTasks(t *testing.T) {
	Convey("Given a store forwarding retro tasks", t, func() {
		ctx := context.Background()
		var forwarded []model.RetroTask
		sink := sinkFunc(func(_ context.Context, task model.RetroTask) error {
			forwarded = append(forwarded, task)
			return nil
		})
		store := openSQLite(t, filepath.Join(t.TempDir(), "retro.db"), sqlstore.WithRetroSink(sink))
		scope := model.RetroScope{SeasonID: 20242025, ModelVersion: 1, WindowType: model.WindowGame, PrevConfigHash: "old", ConfigHash: "new"}

		Convey("A pending scope is stored and forwarded once", func() {
			So(store.EnqueueRetroTask(ctx, "config_hash_changed", scope), ShouldBeNil)
			So(store.EnqueueRetroTask(ctx, "config_hash_changed", scope), ShouldBeNil)
			So(forwarded, ShouldHaveLength, 1)

			pending, err := store.PendingRetroTasks(ctx)
			So(err, ShouldBeNil)
			So(pending, ShouldHaveLength, 1)
			So(pending[0].Scope, ShouldResemble, scope)

			Convey("Completing it allows the scope to be queued again", func() {
				So(store.CompleteRetroTask(ctx, pending[0].ID), ShouldBeNil)
				pending, err := store.PendingRetroTasks(ctx)
				So(err, ShouldBeNil)
				So(pending, ShouldBeEmpty)

				So(store.EnqueueRetroTask(ctx, "config_hash_changed", scope), ShouldBeNil)
				So(forwarded, ShouldHaveLength, 2)
			})
		})
	})
}

func TestSQLStoreLock(t *testing.T) {
	Convey("Given two stores on the same database file", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "lock.db")
		first := openSQLite(t, path, sqlstore.WithLockPollInterval(5*time.Millisecond))
		second := openSQLite(t, path, sqlstore.WithLockPollInterval(5*time.Millisecond))

		Convey("Only one holds the pipeline lock", func() {
			ok, err := first.TryLock(ctx)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			ok, err = second.TryLock(ctx)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)

			ok, err = second.Lock(ctx, 20*time.Millisecond)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)

			So(errors.Is(second.Unlock(ctx), repository.ErrLockNotHeld), ShouldBeTrue)
			So(first.Unlock(ctx), ShouldBeNil)

			ok, err = second.Lock(ctx, 50*time.Millisecond)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(second.Unlock(ctx), ShouldBeNil)
		})
	})
}

func TestSQLStoreLockLease(t *testing.T) {
	Convey("Given a holder that exits without unlocking", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "lease.db")
		acquired := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
		at := func(d time.Duration) sqlstore.Option {
			return sqlstore.WithClock(func() time.Time { return acquired.Add(d) })
		}

		crashed, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, path, at(0), sqlstore.WithLockLease(time.Minute))
		So(err, ShouldBeNil)
		ok, err := crashed.TryLock(ctx)
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(crashed.Close(), ShouldBeNil)

		Convey("The lock stays held within the lease", func() {
			next := openSQLite(t, path, at(30*time.Second), sqlstore.WithLockLease(time.Minute))
			ok, err := next.TryLock(ctx)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("A reopened store takes it once the lease has passed", func() {
			next := openSQLite(t, path, at(2*time.Minute), sqlstore.WithLockLease(time.Minute))
			ok, err := next.TryLock(ctx)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(next.Unlock(ctx), ShouldBeNil)
		})
	})
}
