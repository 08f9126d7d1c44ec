package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/adapters/mq/queue"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/adapters/mq/worker"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/logger"
)

// GameSource supplies the game rows of a season and the seasons before it.
type GameSource interface {
	Games(ctx context.Context, seasonID int) ([]model.GameRow, error)
}

// Service runs the orchestrator on demand and drains retro-recompute tasks
// in the background.
type Service struct {
	mu sync.Mutex

	orch  *Orchestrator
	games GameSource
	queue *queue.InMemoryQueue
	pool  *worker.Pool
	opts  RunOptions

	retroWorkers int
	completer    worker.Completer

	// lastHash is the config hash of the latest successful run.
	lastHash string
	// rescored holds season|hash pairs already recomputed; one season has a
	// task per window type but a run rescores all of them.
	rescored map[string]bool
	started  bool
	logger   logger.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRetroWorkers sets the number of retro workers.
func WithRetroWorkers(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.retroWorkers = n
		}
	}
}

// WithRetroCompleter marks handled retro tasks done in durable storage.
func WithRetroCompleter(c worker.Completer) ServiceOption {
	return func(s *Service) {
		s.completer = c
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(log logger.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// NewService wires an orchestrator to a game source. q receives retro tasks
// routed by the store and is drained once Start is called.
func NewService(orch *Orchestrator, games GameSource, q *queue.InMemoryQueue, runOpts RunOptions, opts ...ServiceOption) *Service {
	s := &Service{
		orch:         orch,
		games:        games,
		queue:        q,
		opts:         runOpts,
		retroWorkers: 1,
		rescored:     make(map[string]bool),
		logger:       logger.GetOrNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the retro worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if s.queue != nil {
		var wopts []worker.Option
		wopts = append(wopts, worker.WithLogger(s.logger))
		if s.completer != nil {
			wopts = append(wopts, worker.WithCompleter(s.completer))
		}
		s.pool = worker.NewPool(s.retroWorkers, s.queue, worker.HandlerFunc(s.HandleRetro), wopts...)
		s.pool.Start(ctx)
	}
	s.started = true
	s.logger.Info(ctx, "service started", logger.Int("retro_workers", s.retroWorkers))
	return nil
}

// Stop closes the retro queue and waits for in-flight tasks.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	pool := s.pool
	s.mu.Unlock()

	// Workers take s.mu in HandleRetro; wait for them unlocked.
	if pool != nil {
		return pool.Shutdown(ctx)
	}
	return nil
}

// RunSeason loads the season's games and runs the pipeline, passing the hash
// of the previous successful run so a config change is detected.
func (s *Service) RunSeason(ctx context.Context, seasonID int) (*RunResult, error) {
	games, err := s.games.Games(ctx, seasonID)
	if err != nil {
		return nil, fmt.Errorf("load games: %w", err)
	}
	opts := s.opts
	opts.PrevConfigHash = s.LastConfigHash()

	res, err := s.orch.Orchestrate(ctx, seasonID, games, opts)
	if err != nil {
		return res, err
	}
	s.mu.Lock()
	s.lastHash = res.ConfigHash
	s.mu.Unlock()
	return res, nil
}

// HandleRetro rescores a task's season in full with the current config.
func (s *Service) HandleRetro(ctx context.Context, task model.RetroTask) error {
	key := strconv.Itoa(task.Scope.SeasonID) + "|" + task.Scope.ConfigHash
	s.mu.Lock()
	done := s.rescored[key]
	s.mu.Unlock()
	if done {
		s.logger.Debug(ctx, "season already rescored", logger.String("task_id", task.ID))
		return nil
	}

	games, err := s.games.Games(ctx, task.Scope.SeasonID)
	if err != nil {
		return fmt.Errorf("load games: %w", err)
	}
	opts := s.opts
	opts.Incremental = false
	opts.PrevConfigHash = ""
	res, err := s.orch.Orchestrate(ctx, task.Scope.SeasonID, games, opts)
	if err != nil {
		return err
	}
	if res.ConfigHash != task.Scope.ConfigHash {
		s.logger.Warn(ctx, "retro task superseded by a newer config",
			logger.String("task_id", task.ID),
			logger.String("task_config_hash", task.Scope.ConfigHash),
			logger.String("config_hash", res.ConfigHash),
		)
		return nil
	}
	s.mu.Lock()
	s.rescored[key] = true
	s.mu.Unlock()
	return nil
}

// LastConfigHash returns the config hash of the latest successful run.
func (s *Service) LastConfigHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHash
}
