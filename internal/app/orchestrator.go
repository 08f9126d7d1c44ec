// Package service sequences the sustainability scoring stages into runs and
// owns every side effect of a run.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/adapters/repository"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/distribution"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/posterior"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/priors"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/scoring"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/scoringconfig"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/standardize"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/window"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/logger"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/metrics"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/tracing"
)

// Phase names, in execution order.
const (
	PhaseConfig           = "config"
	PhaseIncremental      = "incremental"
	PhaseLeaguePriors     = "league_priors"
	PhasePlayerPosteriors = "player_posteriors"
	PhaseWindows          = "windows"
	PhaseStandardize      = "standardize"
	PhaseScore            = "score"
	PhaseSnapshot         = "snapshot"
	PhaseTiers            = "tiers"
	PhaseLock             = "lock"
	PhasePersistRows      = "persist_rows"
	PhasePersistSnapshot  = "persist_snapshot"
	PhaseUnlock           = "unlock"
	PhaseRetro            = "retro"
	PhaseRunLog           = "run_log"
)

// RetroReasonConfigChanged labels tasks enqueued on a config hash change.
const RetroReasonConfigChanged = "config_hash_changed"

// RunOptions controls one orchestrated run.
type RunOptions struct {
	// Config is used as-is when set; otherwise the loader resolves one.
	Config *scoringconfig.ScoringConfig
	// Priors and Posteriors skip their computation when non-nil.
	Priors     []model.LeaguePrior
	Posteriors []model.PlayerPosterior

	Persist       bool
	UseLock       bool
	LockTimeout   time.Duration
	Incremental   bool
	BuildSnapshot bool
	AssignTiers   bool
	WriteRunLog   bool

	// IncludeMissing keeps components without a contribution in the payload.
	IncludeMissing bool

	// PrevConfigHash is the hash of the previous run's config. A different
	// current hash enqueues retro-recompute tasks.
	PrevConfigHash string
}

// DefaultRunOptions persists with a non-blocking lock, builds a snapshot and
// assigns tiers.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		Persist:       true,
		UseLock:       true,
		BuildSnapshot: true,
		AssignTiers:   true,
		WriteRunLog:   true,
	}
}

// RunResult is everything a run produced, including per-phase diagnostics.
type RunResult struct {
	RunID        string
	SeasonID     int
	ModelVersion int
	ConfigHash   string
	ConfigSource string

	Priors     []model.LeaguePrior
	Posteriors []model.PlayerPosterior
	Rows       []model.EnrichedWindowRow
	Snapshot   *model.DistributionSnapshot
	Watermark  *time.Time

	RowsIn        int
	RowsScored    int
	RowsPersisted int
	LockAcquired  bool

	Status      string
	Diagnostics map[string]model.PhaseReport
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Orchestrator runs the scoring pipeline.
type Orchestrator struct {
	store      repository.Store
	aggregates repository.AggregateSource
	loader     *scoringconfig.Loader
	workers    int
	blend      [posterior.Seasons]float64
	now        func() time.Time
	logger     logger.Logger
	tracer     trace.Tracer
}

// NewOrchestrator creates an orchestrator. Without WithConfigLoader, a store
// that is also a scoringconfig.Source provides the active config.
func NewOrchestrator(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		workers: runtime.NumCPU(),
		blend:   posterior.DefaultBlendWeights,
		now:     time.Now,
		logger:  logger.GetOrNop(),
		tracer:  tracing.Tracer("github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/app"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.loader == nil {
		var src scoringconfig.Source
		if s, ok := o.store.(scoringconfig.Source); ok {
			src = s
		}
		o.loader = scoringconfig.NewLoader(src, scoringconfig.WithLogger(o.logger))
	}
	return o
}

// run carries the state of one Orchestrate call between phases.
type run struct {
	o        *Orchestrator
	ctx      context.Context
	seasonID int
	games    []model.GameRow
	opts     RunOptions
	res      *RunResult
	degraded bool

	cfg        *scoringconfig.ScoringConfig
	priorIndex map[model.PriorKey]model.LeaguePrior
	windows    []model.WindowRow
}

// Orchestrate scores games for seasonID. Store failures never fail the run;
// they are logged, recorded in the diagnostics and degrade the run status.
// Only an unusable config or a cancelled context returns an error.
func (o *Orchestrator) Orchestrate(ctx context.Context, seasonID int, games []model.GameRow, opts RunOptions) (*RunResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrate", trace.WithAttributes(
		attribute.Int("season_id", seasonID),
		attribute.Int("games", len(games)),
	))
	defer span.End()

	r := &run{
		o:        o,
		ctx:      ctx,
		seasonID: seasonID,
		games:    games,
		opts:     opts,
		res: &RunResult{
			RunID:       uuid.NewString(),
			SeasonID:    seasonID,
			RowsIn:      len(games),
			Diagnostics: make(map[string]model.PhaseReport, 15),
			StartedAt:   o.now().UTC(),
		},
	}
	log := o.logger.Named("orchestrator")
	log.Info(ctx, "run started",
		logger.String("run_id", r.res.RunID),
		logger.Int("season_id", seasonID),
		logger.Int("games", len(games)),
	)

	steps := []struct {
		name string
		fn   func(context.Context) (string, map[string]any, error)
	}{
		{PhaseConfig, r.config},
		{PhaseIncremental, r.incremental},
		{PhaseLeaguePriors, r.leaguePriors},
		{PhasePlayerPosteriors, r.playerPosteriors},
		{PhaseWindows, r.buildWindows},
		{PhaseStandardize, r.standardize},
		{PhaseScore, r.score},
		{PhaseSnapshot, r.snapshot},
		{PhaseTiers, r.tiers},
	}
	for _, s := range steps {
		if err := r.step(s.name, s.fn); err != nil {
			return r.fail(span, err)
		}
	}

	// Persistence phases are all fail-open.
	_ = r.step(PhaseLock, r.lock)
	_ = r.step(PhasePersistRows, r.persistRows)
	_ = r.step(PhasePersistSnapshot, r.persistSnapshot)
	_ = r.step(PhaseUnlock, r.unlock)
	_ = r.step(PhaseRetro, r.retro)

	r.res.Status = model.RunStatusOK
	if r.degraded {
		r.res.Status = model.RunStatusDegraded
	}
	_ = r.step(PhaseRunLog, r.runLog)
	if r.degraded {
		r.res.Status = model.RunStatusDegraded
	}
	r.res.FinishedAt = o.now().UTC()

	metrics.RecordRun(r.res.Status)
	span.SetAttributes(attribute.String("status", r.res.Status))
	log.Info(ctx, "run finished",
		logger.String("run_id", r.res.RunID),
		logger.String("status", r.res.Status),
		logger.Int("rows_scored", r.res.RowsScored),
		logger.Int("rows_persisted", r.res.RowsPersisted),
	)
	return r.res, nil
}

func (r *run) fail(span trace.Span, err error) (*RunResult, error) {
	r.res.Status = model.RunStatusFailed
	r.res.FinishedAt = r.o.now().UTC()
	metrics.RecordRun(r.res.Status)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.o.logger.Error(r.ctx, "run aborted", logger.String("run_id", r.res.RunID), logger.Error(err))
	return r.res, err
}

// step times fn, records its report and reports a failed phase as an error.
func (r *run) step(name string, fn func(context.Context) (string, map[string]any, error)) error {
	ctx, span := r.o.tracer.Start(r.ctx, "phase."+name)
	defer span.End()

	start := time.Now()
	status, detail, err := fn(ctx)
	ms := float64(time.Since(start).Microseconds()) / 1000

	rep := model.PhaseReport{Status: status, DurationMS: ms, Detail: detail}
	if err != nil {
		rep.Error = err.Error()
		span.RecordError(err)
	}
	span.SetAttributes(attribute.String("status", status))
	r.res.Diagnostics[name] = rep
	metrics.RecordPhase(name, status, ms)

	switch status {
	case model.PhaseFailOpen:
		r.degraded = true
		r.o.logger.Warn(ctx, "phase failed open",
			logger.String("phase", name),
			logger.String("run_id", r.res.RunID),
			logger.Error(err),
		)
	case model.PhaseFailed:
		span.SetStatus(codes.Error, rep.Error)
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// storeFailure records a store error and returns the fail-open status.
func storeFailure(op string, err error) (string, map[string]any, error) {
	metrics.RecordStoreError(op)
	metrics.RecordErrorByComponent("store", op)
	return model.PhaseFailOpen, map[string]any{"op": op}, err
}

func (r *run) persisting() bool {
	return r.opts.Persist && r.o.store != nil
}

func (r *run) config(ctx context.Context) (string, map[string]any, error) {
	cfg := r.opts.Config
	if cfg != nil {
		if err := cfg.ValidateStructure(); err != nil {
			return model.PhaseFailed, nil, err
		}
		if cfg.ConfigHash == "" {
			c := *cfg
			hash, err := scoringconfig.ComputeHash(&c)
			if err != nil {
				return model.PhaseFailed, nil, err
			}
			c.ConfigHash = hash
			cfg = &c
		}
	} else {
		loaded, err := r.o.loader.Load(ctx)
		if err != nil {
			return model.PhaseFailed, nil, err
		}
		cfg = loaded
		if cfg.Source == scoringconfig.SourceDefault {
			metrics.RecordConfigFallback()
		}
	}
	if err := checkTuning(cfg); err != nil {
		return model.PhaseFailed, nil, err
	}

	r.cfg = cfg
	r.res.ModelVersion = cfg.ModelVersion
	r.res.ConfigHash = cfg.ConfigHash
	r.res.ConfigSource = cfg.Source
	return model.PhaseOK, map[string]any{
		"model_version": cfg.ModelVersion,
		"config_hash":   cfg.ConfigHash,
		"source":        cfg.Source,
	}, nil
}

// checkTuning rejects constants the scoring stages cannot run with.
func checkTuning(cfg *scoringconfig.ScoringConfig) error {
	if cfg.SoftClip() && !(cfg.Constants.C > 0) {
		return fmt.Errorf("%w: soft clip scale c=%v must be > 0", model.ErrBadConfigValue, cfg.Constants.C)
	}
	return cfg.Constants.Guardrails.Validate()
}

func (r *run) incremental(ctx context.Context) (string, map[string]any, error) {
	if !r.opts.Incremental || !r.persisting() {
		return model.PhaseSkipped, nil, nil
	}
	w, err := r.o.store.FetchMaxProcessedDate(ctx, r.cfg.ModelVersion, model.WindowGame)
	if err != nil {
		return storeFailure(repository.OpFetchWatermark, err)
	}
	if w == nil {
		return model.PhaseOK, map[string]any{"watermark": nil}, nil
	}
	d := model.DateOnly(*w)
	r.res.Watermark = &d
	return model.PhaseOK, map[string]any{"watermark": d.Format(time.DateOnly)}, nil
}

func (r *run) leaguePriors(ctx context.Context) (string, map[string]any, error) {
	if r.opts.Priors != nil {
		r.res.Priors = r.opts.Priors
		r.priorIndex = priors.Index(r.opts.Priors)
		return model.PhaseOK, map[string]any{"source": "supplied", "priors": len(r.opts.Priors)}, nil
	}

	engine := priors.NewEngine(r.cfg)
	status, source := model.PhaseOK, "games"
	var (
		aggs     []model.LeagueAggregate
		fetchErr error
	)
	if r.o.aggregates != nil {
		aggs, fetchErr = r.o.aggregates.LeagueAggregates(ctx, r.seasonID)
		if fetchErr != nil {
			metrics.RecordStoreError(repository.OpLeagueAggregates)
			status = model.PhaseFailOpen
			aggs = nil
		} else if len(aggs) > 0 {
			source = "store"
		}
	}
	if len(aggs) == 0 {
		aggs = priors.AggregatesFromGames(r.games)
	}
	ps := engine.Compute(aggs)
	r.res.Priors = ps
	r.priorIndex = priors.Index(ps)
	return status, map[string]any{"source": source, "priors": len(ps)}, fetchErr
}

func (r *run) playerPosteriors(ctx context.Context) (string, map[string]any, error) {
	if r.opts.Posteriors != nil {
		r.res.Posteriors = r.opts.Posteriors
		return model.PhaseOK, map[string]any{"source": "supplied", "posteriors": len(r.opts.Posteriors)}, nil
	}

	engine, err := posterior.NewEngine(
		posterior.WithBlendWeights(r.o.blend),
		posterior.WithModelVersion(r.cfg.ModelVersion),
	)
	if err != nil {
		return model.PhaseFailed, nil, err
	}
	status, source := model.PhaseOK, "games"
	var (
		history  []model.PlayerSeasonTotals
		fetchErr error
	)
	if r.o.aggregates != nil {
		seasons := posterior.SeasonsFor(r.seasonID)
		history, fetchErr = r.o.aggregates.PlayerHistory(ctx, seasons[:])
		if fetchErr != nil {
			metrics.RecordStoreError(repository.OpPlayerHistory)
			status = model.PhaseFailOpen
			history = nil
		} else if len(history) > 0 {
			source = "store"
		}
	}
	if len(history) == 0 {
		history = posterior.HistoryFromGames(r.games)
	}
	ps := engine.Compute(r.seasonID, history, r.priorIndex)
	r.res.Posteriors = ps
	return status, map[string]any{"source": source, "posteriors": len(ps)}, fetchErr
}

func (r *run) buildWindows(ctx context.Context) (string, map[string]any, error) {
	target := make([]model.GameRow, 0, len(r.games))
	for _, g := range r.games {
		if g.SeasonID == r.seasonID {
			target = append(target, g)
		}
	}
	b := window.NewBuilder(r.cfg.FreshnessDays, window.WithWorkers(r.o.workers))
	rows, err := b.Build(ctx, target)
	if err != nil {
		return model.PhaseFailed, nil, err
	}
	built := len(rows)

	// Windows span the full history; only rows after the watermark move on.
	if w := r.res.Watermark; w != nil {
		kept := rows[:0]
		for _, row := range rows {
			if model.DateOnly(row.GameDate).After(*w) {
				kept = append(kept, row)
			}
		}
		rows = kept
	}
	r.windows = rows
	return model.PhaseOK, map[string]any{"built": built, "kept": len(rows)}, nil
}

func (r *run) standardize(ctx context.Context) (string, map[string]any, error) {
	engine, err := standardize.NewEngine(r.cfg, posterior.Index(r.res.Posteriors), standardize.WithWorkers(r.o.workers))
	if err != nil {
		return model.PhaseFailed, nil, err
	}
	rows, err := engine.Apply(ctx, r.windows)
	if err != nil {
		return model.PhaseFailed, nil, err
	}
	r.res.Rows = rows
	return model.PhaseOK, map[string]any{
		"rows":               len(rows),
		"sd_mode":            r.cfg.SDMode,
		"soft_clip":          r.cfg.SoftClip(),
		"finishing_residual": r.cfg.FinishingResidual(),
	}, nil
}

func (r *run) score(_ context.Context) (string, map[string]any, error) {
	var opts []scoring.Option
	if r.opts.IncludeMissing {
		opts = append(opts, scoring.WithIncludeMissing())
	}
	scorer, err := scoring.NewContributionScorer(r.cfg, opts...)
	if err != nil {
		return model.PhaseFailed, nil, err
	}
	if err := scorer.ScoreAll(r.res.Rows); err != nil {
		return model.PhaseFailed, nil, err
	}
	r.res.RowsScored = len(r.res.Rows)
	metrics.RecordRowsScored(r.res.RowsScored)
	return model.PhaseOK, map[string]any{"rows": r.res.RowsScored}, nil
}

func (r *run) snapshotEngine() *distribution.Engine {
	return distribution.NewEngine(distribution.WithClock(r.o.now))
}

func (r *run) snapshot(ctx context.Context) (string, map[string]any, error) {
	engine := r.snapshotEngine()
	switch {
	case r.opts.BuildSnapshot:
		r.res.Snapshot = engine.Build(r.cfg.ModelVersion, r.cfg.ConfigHash, r.res.Rows)
		if r.res.Snapshot == nil {
			return model.PhaseSkipped, map[string]any{"mode": "build", "n": 0}, nil
		}
		return model.PhaseOK, map[string]any{"mode": "build", "n": r.res.Snapshot.N}, nil

	case r.opts.AssignTiers && r.o.store != nil:
		snap, err := r.o.store.FetchLatestSnapshot(ctx, engine.WindowType(), r.cfg.ModelVersion, r.cfg.ConfigHash)
		if err != nil {
			return storeFailure(repository.OpFetchSnapshot, err)
		}
		metrics.RecordSnapshotLookup(snap != nil)
		r.res.Snapshot = snap
		return model.PhaseOK, map[string]any{"mode": "reuse", "found": snap != nil}, nil
	}
	return model.PhaseSkipped, nil, nil
}

func (r *run) tiers(_ context.Context) (string, map[string]any, error) {
	if !r.opts.AssignTiers {
		return model.PhaseSkipped, nil, nil
	}
	r.snapshotEngine().Assign(r.res.Snapshot, r.res.Rows)
	provisional := 0
	for i := range r.res.Rows {
		if r.res.Rows[i].ProvisionalTier {
			provisional++
		}
	}
	return model.PhaseOK, map[string]any{"provisional": provisional, "snapshot": r.res.Snapshot != nil}, nil
}

func (r *run) lock(ctx context.Context) (string, map[string]any, error) {
	if !r.persisting() || !r.opts.UseLock {
		return model.PhaseSkipped, nil, nil
	}
	var (
		ok  bool
		err error
	)
	mode := "try"
	if r.opts.LockTimeout > 0 {
		mode = "wait"
		ok, err = r.o.store.Lock(ctx, r.opts.LockTimeout)
	} else {
		ok, err = r.o.store.TryLock(ctx)
	}
	switch {
	case err != nil:
		metrics.RecordLockOutcome("error")
		op := repository.OpTryLock
		if mode == "wait" {
			op = repository.OpLock
		}
		status, _, _ := storeFailure(op, err)
		return status, map[string]any{"mode": mode, "acquired": false}, err
	case !ok:
		metrics.RecordLockOutcome("contended")
		return model.PhaseFailOpen, map[string]any{"mode": mode, "acquired": false}, errors.New("pipeline lock held elsewhere")
	}
	metrics.RecordLockOutcome("acquired")
	r.res.LockAcquired = true
	return model.PhaseOK, map[string]any{"mode": mode, "acquired": true}, nil
}

func (r *run) persistRows(ctx context.Context) (string, map[string]any, error) {
	if !r.persisting() {
		return model.PhaseSkipped, nil, nil
	}
	n, err := r.o.store.UpsertScoredRows(ctx, r.res.Rows)
	if err != nil {
		return storeFailure(repository.OpUpsertRows, err)
	}
	r.res.RowsPersisted = n
	metrics.RecordRowsPersisted(n)
	return model.PhaseOK, map[string]any{"rows": n}, nil
}

func (r *run) persistSnapshot(ctx context.Context) (string, map[string]any, error) {
	if !r.persisting() || !r.opts.BuildSnapshot || r.res.Snapshot == nil {
		return model.PhaseSkipped, nil, nil
	}
	ok, err := r.o.store.UpsertSnapshot(ctx, *r.res.Snapshot)
	if err != nil {
		return storeFailure(repository.OpUpsertSnapshot, err)
	}
	return model.PhaseOK, map[string]any{"written": ok}, nil
}

func (r *run) unlock(ctx context.Context) (string, map[string]any, error) {
	if !r.res.LockAcquired {
		return model.PhaseSkipped, nil, nil
	}
	if err := r.o.store.Unlock(ctx); err != nil {
		return storeFailure(repository.OpUnlock, err)
	}
	return model.PhaseOK, nil, nil
}

func (r *run) retro(ctx context.Context) (string, map[string]any, error) {
	prev := r.opts.PrevConfigHash
	if prev == "" || prev == r.cfg.ConfigHash || r.o.store == nil {
		return model.PhaseSkipped, nil, nil
	}
	var errs []error
	enqueued := 0
	for _, wt := range model.AllWindowTypes {
		scope := model.RetroScope{
			SeasonID:       r.seasonID,
			ModelVersion:   r.cfg.ModelVersion,
			WindowType:     wt,
			PrevConfigHash: prev,
			ConfigHash:     r.cfg.ConfigHash,
		}
		if err := r.o.store.EnqueueRetroTask(ctx, RetroReasonConfigChanged, scope); err != nil {
			errs = append(errs, err)
			continue
		}
		enqueued++
		metrics.RecordRetroEnqueued()
	}
	detail := map[string]any{"enqueued": enqueued, "prev_config_hash": prev}
	if len(errs) > 0 {
		_, _, err := storeFailure(repository.OpEnqueueRetro, errors.Join(errs...))
		return model.PhaseFailOpen, detail, err
	}
	return model.PhaseOK, detail, nil
}

func (r *run) runLog(ctx context.Context) (string, map[string]any, error) {
	if !r.opts.WriteRunLog || r.o.store == nil {
		return model.PhaseSkipped, nil, nil
	}
	diag := make(map[string]model.PhaseReport, len(r.res.Diagnostics))
	for k, v := range r.res.Diagnostics {
		diag[k] = v
	}
	rec := model.RunRecord{
		RunID:         r.res.RunID,
		SeasonID:      r.seasonID,
		ModelVersion:  r.res.ModelVersion,
		ConfigHash:    r.res.ConfigHash,
		ConfigSource:  r.res.ConfigSource,
		StartedAt:     r.res.StartedAt,
		FinishedAt:    r.o.now().UTC(),
		RowsIn:        r.res.RowsIn,
		RowsScored:    r.res.RowsScored,
		RowsPersisted: r.res.RowsPersisted,
		Status:        r.res.Status,
		Diagnostics:   diag,
	}
	if err := r.o.store.InsertRunLog(ctx, rec); err != nil {
		return storeFailure(repository.OpInsertRunLog, err)
	}
	return model.PhaseOK, nil, nil
}
