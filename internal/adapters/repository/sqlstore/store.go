// Package sqlstore implements the pipeline store on gorm, against Postgres or
// an embedded SQLite file.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/glebarez/go-sqlite" // pure-Go "sqlite" database/sql driver
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/adapters/repository"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/scoringconfig"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/logger"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/metrics"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	defaultWriteAttempts = 3
	defaultRetryDelay    = 50 * time.Millisecond
	defaultBatchSize     = 500
	defaultLockPoll      = 100 * time.Millisecond
	defaultLockLease     = 10 * time.Minute
	retroStatusPending   = "pending"
	retroStatusDone      = "done"
)

var _ repository.Backend = (*Store)(nil)

// Store implements repository.Backend on a gorm database.
type Store struct {
	db     *gorm.DB
	driver string
	locker locker

	writeAttempts int
	retryDelay    time.Duration
	batchSize     int
	lockPoll      time.Duration
	lockLease     time.Duration
	retroSink     repository.RetroSink
	logger        logger.Logger
	now           func() time.Time
}

// Open connects to driver at dsn and migrates the schema.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		conn, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// One writer keeps SQLite from returning "database is locked".
		conn.SetMaxOpenConns(1)
		dialector = sqlite.Dialector{Conn: conn}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	return New(ctx, db, driver, opts...)
}

// New wraps an open gorm handle and migrates the schema.
func New(ctx context.Context, db *gorm.DB, driver string, opts ...Option) (*Store, error) {
	s := &Store{
		db:            db,
		driver:        driver,
		writeAttempts: defaultWriteAttempts,
		retryDelay:    defaultRetryDelay,
		batchSize:     defaultBatchSize,
		lockPoll:      defaultLockPoll,
		lockLease:     defaultLockLease,
		logger:        logger.Nop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if driver == DriverPostgres {
		s.locker = &pgLocker{db: db, key: model.PipelineLockKey}
	} else {
		s.locker = newTableLocker(db, model.PipelineLockKey, s.lockPoll, s.lockLease, s.now)
	}
	if err := db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertScoredRows implements repository.Store.UpsertScoredRows.
func (s *Store) UpsertScoredRows(ctx context.Context, rows []model.EnrichedWindowRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryWriteLatency(float64(time.Since(start).Milliseconds()))
	}()

	now := s.now().UTC()
	batch := make([]scoreRow, 0, len(rows))
	for _, r := range rows {
		sr, err := toScoreRow(r, now)
		if err != nil {
			return 0, repository.Unavailable(repository.OpUpsertRows, err)
		}
		batch = append(batch, sr)
	}
	err := s.withRetry(ctx, repository.OpUpsertRows, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "player_id"}, {Name: "game_date"}, {Name: "window_code"}, {Name: "model_version"}},
				UpdateAll: true,
			}).CreateInBatches(&batch, s.batchSize).Error
		})
	})
	if err != nil {
		return 0, err
	}
	return len(batch), nil
}

// UpsertSnapshot implements repository.Store.UpsertSnapshot. Snapshots are
// appended; the newest one per key wins on lookup.
func (s *Store) UpsertSnapshot(ctx context.Context, snap model.DistributionSnapshot) (bool, error) {
	if err := snap.Validate(); err != nil {
		return false, err
	}
	row := toSnapshotRow(snap)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now().UTC()
	}
	err := s.withRetry(ctx, repository.OpUpsertSnapshot, func() error {
		row.ID = 0
		return s.db.WithContext(ctx).Create(&row).Error
	})
	return err == nil, err
}

// FetchLatestSnapshot implements repository.Store.FetchLatestSnapshot.
func (s *Store) FetchLatestSnapshot(ctx context.Context, windowType model.WindowType, modelVersion int, configHash string) (*model.DistributionSnapshot, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()
	var rows []snapshotRow
	err := s.db.WithContext(ctx).
		Where("window_code = ? AND model_version = ? AND config_hash = ?", string(windowType), modelVersion, configHash).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, repository.Unavailable(repository.OpFetchSnapshot, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	snap, err := rows[0].toModel()
	if err != nil {
		return nil, repository.Unavailable(repository.OpFetchSnapshot, err)
	}
	return snap, nil
}

// FetchMaxProcessedDate implements repository.Store.FetchMaxProcessedDate.
func (s *Store) FetchMaxProcessedDate(ctx context.Context, modelVersion int, windowType model.WindowType) (*time.Time, error) {
	var rows []scoreRow
	err := s.db.WithContext(ctx).
		Select("game_date").
		Where("model_version = ? AND window_code = ?", modelVersion, string(windowType)).
		Order("game_date DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, repository.Unavailable(repository.OpFetchWatermark, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	d := rows[0].GameDate.UTC()
	return &d, nil
}

// InsertRunLog implements repository.Store.InsertRunLog.
func (s *Store) InsertRunLog(ctx context.Context, rec model.RunRecord) error {
	row, err := toRunLogRow(rec)
	if err != nil {
		return repository.Unavailable(repository.OpInsertRunLog, err)
	}
	return s.withRetry(ctx, repository.OpInsertRunLog, func() error {
		return s.db.WithContext(ctx).Create(&row).Error
	})
}

// EnqueueRetroTask implements repository.Store.EnqueueRetroTask. A scope that
// already has a pending task is not enqueued twice.
func (s *Store) EnqueueRetroTask(ctx context.Context, reason string, scope model.RetroScope) error {
	var pending int64
	if err := s.db.WithContext(ctx).Model(&retroTaskRow{}).
		Where("scope_key = ? AND status = ?", scope.Key(), retroStatusPending).
		Count(&pending).Error; err != nil {
		return repository.Unavailable(repository.OpEnqueueRetro, err)
	}
	if pending > 0 {
		s.logger.Debug(ctx, "retro task already pending", logger.String("scope", scope.Key()))
		return nil
	}
	task := model.RetroTask{ID: uuid.NewString(), Reason: reason, Scope: scope, CreatedAt: s.now().UTC()}
	row := retroTaskRow{
		ID:             task.ID,
		Reason:         reason,
		ScopeKey:       scope.Key(),
		SeasonID:       scope.SeasonID,
		ModelVersion:   scope.ModelVersion,
		WindowCode:     string(scope.WindowType),
		PrevConfigHash: scope.PrevConfigHash,
		ConfigHash:     scope.ConfigHash,
		Status:         retroStatusPending,
		CreatedAt:      task.CreatedAt,
	}
	if err := s.withRetry(ctx, repository.OpEnqueueRetro, func() error {
		return s.db.WithContext(ctx).Create(&row).Error
	}); err != nil {
		return err
	}
	if s.retroSink != nil {
		if err := s.retroSink.Enqueue(ctx, task); err != nil {
			return repository.Unavailable(repository.OpEnqueueRetro, err)
		}
	}
	return nil
}

// CompleteRetroTask marks a stored retro task as done.
func (s *Store) CompleteRetroTask(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Model(&retroTaskRow{}).Where("id = ?", id).Update("status", retroStatusDone).Error
	return repository.Unavailable(repository.OpEnqueueRetro, err)
}

// PendingRetroTasks lists stored tasks that have not been completed.
func (s *Store) PendingRetroTasks(ctx context.Context) ([]model.RetroTask, error) {
	var rows []retroTaskRow
	if err := s.db.WithContext(ctx).Where("status = ?", retroStatusPending).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, repository.Unavailable(repository.OpEnqueueRetro, err)
	}
	out := make([]model.RetroTask, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.RetroTask{
			ID:     r.ID,
			Reason: r.Reason,
			Scope: model.RetroScope{
				SeasonID:       r.SeasonID,
				ModelVersion:   r.ModelVersion,
				WindowType:     model.WindowType(r.WindowCode),
				PrevConfigHash: r.PrevConfigHash,
				ConfigHash:     r.ConfigHash,
			},
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// TryLock implements repository.Store.TryLock.
func (s *Store) TryLock(ctx context.Context) (bool, error) {
	ok, err := s.locker.tryLock(ctx)
	if err != nil {
		return false, repository.Unavailable(repository.OpTryLock, err)
	}
	return ok, nil
}

// Lock implements repository.Store.Lock.
func (s *Store) Lock(ctx context.Context, timeout time.Duration) (bool, error) {
	ok, err := s.locker.lock(ctx, timeout)
	if err != nil {
		return false, repository.Unavailable(repository.OpLock, err)
	}
	return ok, nil
}

// Unlock implements repository.Store.Unlock.
func (s *Store) Unlock(ctx context.Context) error {
	err := s.locker.unlock(ctx)
	if err == nil || errors.Is(err, repository.ErrLockNotHeld) {
		return err
	}
	return repository.Unavailable(repository.OpUnlock, err)
}

// FetchActive implements scoringconfig.Source.
func (s *Store) FetchActive(ctx context.Context) (*scoringconfig.Row, error) {
	var rows []configRow
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("model_version DESC").Limit(1).Find(&rows).Error; err != nil {
		return nil, repository.Unavailable(repository.OpFetchConfig, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row, err := rows[0].toModel()
	if err != nil {
		return nil, repository.Unavailable(repository.OpFetchConfig, err)
	}
	return row, nil
}

// UpsertVersion implements scoringconfig.VersionWriter.
func (s *Store) UpsertVersion(ctx context.Context, row scoringconfig.Row) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	cr, err := toConfigRow(row)
	if err != nil {
		return repository.Unavailable(repository.OpUpsertConfig, err)
	}
	return s.withRetry(ctx, repository.OpUpsertConfig, func() error {
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "model_version"}},
			UpdateAll: true,
		}).Create(&cr).Error
	})
}

// UpsertSeasonTotals stores per-player season totals.
func (s *Store) UpsertSeasonTotals(ctx context.Context, totals []model.PlayerSeasonTotals) (int, error) {
	if len(totals) == 0 {
		return 0, nil
	}
	now := s.now().UTC()
	batch := make([]seasonTotalsRow, 0, len(totals))
	for _, t := range totals {
		batch = append(batch, toSeasonTotalsRow(t, now))
	}
	err := s.withRetry(ctx, repository.OpUpsertTotals, func() error {
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "player_id"}, {Name: "season_id"}},
			UpdateAll: true,
		}).CreateInBatches(&batch, s.batchSize).Error
	})
	if err != nil {
		return 0, err
	}
	return len(batch), nil
}

// LeagueAggregates implements repository.AggregateSource.
func (s *Store) LeagueAggregates(ctx context.Context, seasonID int) ([]model.LeagueAggregate, error) {
	var rows []seasonTotalsRow
	if err := s.db.WithContext(ctx).Where("season_id = ?", seasonID).Find(&rows).Error; err != nil {
		return nil, repository.Unavailable(repository.OpLeagueAggregates, err)
	}
	totals := make([]model.PlayerSeasonTotals, 0, len(rows))
	for _, r := range rows {
		totals = append(totals, r.toModel())
	}
	return repository.LeagueAggregatesFromTotals(totals), nil
}

// PlayerHistory implements repository.AggregateSource.
func (s *Store) PlayerHistory(ctx context.Context, seasonIDs []int) ([]model.PlayerSeasonTotals, error) {
	var rows []seasonTotalsRow
	if err := s.db.WithContext(ctx).Where("season_id IN ?", seasonIDs).Order("player_id, season_id").Find(&rows).Error; err != nil {
		return nil, repository.Unavailable(repository.OpPlayerHistory, err)
	}
	out := make([]model.PlayerSeasonTotals, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// FetchScoredRows returns stored rows of a model version and window type
// ordered by player and date.
func (s *Store) FetchScoredRows(ctx context.Context, modelVersion int, windowType model.WindowType) ([]model.EnrichedWindowRow, error) {
	var rows []scoreRow
	err := s.db.WithContext(ctx).
		Where("model_version = ? AND window_code = ?", modelVersion, string(windowType)).
		Order("player_id, game_date").
		Find(&rows).Error
	if err != nil {
		return nil, repository.Unavailable(repository.OpFetchWatermark, err)
	}
	out := make([]model.EnrichedWindowRow, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, repository.Unavailable(repository.OpFetchWatermark, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// RunLogs returns the newest run records first, up to limit.
func (s *Store) RunLogs(ctx context.Context, limit int) ([]model.RunRecord, error) {
	var rows []runLogRow
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, repository.Unavailable(repository.OpInsertRunLog, err)
	}
	out := make([]model.RunRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toModel()
		if err != nil {
			return nil, repository.Unavailable(repository.OpInsertRunLog, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
