package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/adapters/games"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/adapters/mq/queue"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/adapters/mq/worker"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/adapters/repository"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/adapters/repository/sqlstore"
	service "github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/app"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/config"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/scoringconfig"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/logger"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/metrics"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/tracing"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	queueMetricsEvery = 5 * time.Second
)

// version is set at build time.
var version = "dev"

func main() {
	// The manager registers its own collectors on a private registry.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitWithOptions(cfg.LogFormat, os.Stdout); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, os.Stdout); err != nil {
		log.Error(ctx, "pipeline stopped", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the pipeline from cfg and drives it until ctx is cancelled, or
// once when no run interval or watched config is set.
func run(ctx context.Context, cfg *config.Config, traceOut io.Writer) error {
	log := logger.GetOrNop()

	shutdownTracing, err := tracing.Init(cfg.Tracing, tracing.WithWriter(traceOut), tracing.WithVersion(version))
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Error(ctx, "tracing shutdown failed", logger.Error(err))
		}
	}()

	q := queue.NewInMemoryQueue(
		queue.WithCapacity(cfg.RetroQueueSize),
		queue.WithLogger(log.Named("retro-queue")),
	)
	backend, closeStore, err := openStore(ctx, cfg, q)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	orchOpts := []service.Option{
		service.WithStore(backend),
		service.WithAggregateSource(backend),
		service.WithWorkers(cfg.WorkerCount),
		service.WithLogger(log),
	}
	if cfg.ScoringConfigPath != "" {
		loader := scoringconfig.NewLoader(scoringconfig.NewFileSource(cfg.ScoringConfigPath),
			scoringconfig.WithLogger(log.Named("scoring-config")))
		orchOpts = append(orchOpts, service.WithConfigLoader(loader))
	}

	svcOpts := []service.ServiceOption{
		service.WithRetroWorkers(cfg.RetroWorkers),
		service.WithServiceLogger(log.Named("service")),
	}
	if c, ok := backend.(worker.Completer); ok {
		svcOpts = append(svcOpts, service.WithRetroCompleter(c))
	}
	svc := service.NewService(
		service.NewOrchestrator(orchOpts...),
		games.NewFileSource(cfg.GamesPath),
		q,
		runOptions(cfg),
		svcOpts...,
	)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(sctx); err != nil {
			log.Error(ctx, "service stop failed", logger.Error(err))
		}
	}()
	requeuePending(ctx, backend, q)

	srv := startMetricsServer(ctx, cfg.MetricsAddr)
	if srv != nil {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Error(ctx, "metrics server shutdown failed", logger.Error(err))
			}
		}()
	}
	go startQueueMetricsUpdater(ctx, q)

	trigger := make(chan struct{}, 1)
	if cfg.ScoringConfigPath != "" {
		go func() {
			err := config.Watch(ctx, cfg.ScoringConfigPath, func(context.Context) {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})
			if err != nil {
				log.Error(ctx, "scoring config watch failed", logger.Error(err))
			}
		}()
	}

	runOnce(ctx, svc, cfg.SeasonID)
	if cfg.RunInterval <= 0 && cfg.ScoringConfigPath == "" {
		return nil
	}

	var tick <-chan time.Time
	if cfg.RunInterval > 0 {
		ticker := time.NewTicker(cfg.RunInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Info(ctx, "shutting down")
			return nil
		case <-tick:
			runOnce(ctx, svc, cfg.SeasonID)
		case <-trigger:
			runOnce(ctx, svc, cfg.SeasonID)
		}
	}
}

// openStore returns the configured backend and its closer. Retro tasks it
// records are forwarded to q.
func openStore(ctx context.Context, cfg *config.Config, q *queue.InMemoryQueue) (repository.Backend, func() error, error) {
	log := logger.GetOrNop().Named("store")
	switch cfg.StoreDriver {
	case config.StoreSQLite, config.StorePostgres:
		s, err := sqlstore.Open(ctx, cfg.StoreDriver, cfg.StoreDSN,
			sqlstore.WithRetroSink(q),
			sqlstore.WithLogger(log),
		)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s := repository.NewMemoryStore(
			repository.WithRetroSink(q),
			repository.WithLogger(log),
		)
		return s, func() error { return nil }, nil
	}
}

// requeuePending hands retro tasks left pending by a previous process to q.
func requeuePending(ctx context.Context, backend repository.Backend, q *queue.InMemoryQueue) {
	p, ok := backend.(interface {
		PendingRetroTasks(ctx context.Context) ([]model.RetroTask, error)
	})
	if !ok {
		return
	}
	log := logger.GetOrNop()
	tasks, err := p.PendingRetroTasks(ctx)
	if err != nil {
		log.Warn(ctx, "pending retro tasks unavailable", logger.Error(err))
		return
	}
	for _, task := range tasks {
		if err := q.Enqueue(ctx, task); err != nil {
			log.Warn(ctx, "requeue retro task failed", logger.String("task_id", task.ID), logger.Error(err))
		}
	}
	if len(tasks) > 0 {
		log.Info(ctx, "requeued pending retro tasks", logger.Int("count", len(tasks)))
	}
}

func runOptions(cfg *config.Config) service.RunOptions {
	return service.RunOptions{
		Persist:       cfg.Persist,
		UseLock:       cfg.UseLock,
		LockTimeout:   cfg.LockTimeout,
		Incremental:   cfg.Incremental,
		BuildSnapshot: cfg.BuildSnapshot,
		AssignTiers:   cfg.AssignTiers,
		WriteRunLog:   cfg.WriteRunLog,
	}
}

func runOnce(ctx context.Context, svc *service.Service, seasonID int) {
	log := logger.GetOrNop()
	res, err := svc.RunSeason(ctx, seasonID)
	if err != nil {
		log.Error(ctx, "run failed", logger.Int("season_id", seasonID), logger.Error(err))
		return
	}
	log.Info(ctx, "run complete",
		logger.String("run_id", res.RunID),
		logger.String("status", res.Status),
		logger.String("config_hash", res.ConfigHash),
		logger.Int("rows_scored", res.RowsScored),
		logger.Int("rows_persisted", res.RowsPersisted),
	)
}

// startMetricsServer serves /metrics on addr. An empty addr disables it.
func startMetricsServer(ctx context.Context, addr string) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		logger.GetOrNop().Info(ctx, "starting metrics server", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.GetOrNop().Error(ctx, "metrics server failed", logger.Error(err))
		}
	}()
	return srv
}

// startQueueMetricsUpdater refreshes the retro queue gauges until ctx ends.
func startQueueMetricsUpdater(ctx context.Context, q *queue.InMemoryQueue) {
	ticker := time.NewTicker(queueMetricsEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateQueueSize(q.Len(ctx))
		}
	}
}
