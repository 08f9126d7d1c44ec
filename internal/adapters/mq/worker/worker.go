// Package worker drains retro-recompute tasks and hands them to a handler.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/logger"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Handler recomputes the scope of a retro task.
type Handler interface {
	HandleRetro(ctx context.Context, task model.RetroTask) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task model.RetroTask) error

// HandleRetro implements Handler.
func (f HandlerFunc) HandleRetro(ctx context.Context, task model.RetroTask) error {
	return f(ctx, task)
}

// Completer records that a stored task was handled.
type Completer interface {
	CompleteRetroTask(ctx context.Context, id string) error
}

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.RetroTask
	Done(ctx context.Context, task model.RetroTask)
}

// Worker processes retro tasks.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker after the task in hand.
	Shutdown(ctx context.Context) error
}

// RetroWorker implements Worker.
type RetroWorker struct {
	queue     Queue
	handler   Handler
	completer Completer
	name      string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewRetroWorker creates a worker reading from queue.
func NewRetroWorker(queue Queue, handler Handler, opts ...Option) *RetroWorker {
	w := &RetroWorker{
		queue:    queue,
		handler:  handler,
		name:     "retro-worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.GetOrNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run implements Worker.Run.
func (w *RetroWorker) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case task, ok := <-tasks:
			if !ok {
				return
			}
			if err := w.process(ctx, task); err != nil {
				w.logger.Error(ctx, "retro task failed", logger.Error(err))
			}
		}
	}
}

// Shutdown implements Worker.Shutdown.
func (w *RetroWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *RetroWorker) process(ctx context.Context, task model.RetroTask) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
		w.queue.Done(ctx, task)
	}()

	w.logger.Info(ctx, "recomputing scope",
		logger.String("task_id", task.ID),
		logger.String("reason", task.Reason),
		logger.Int("season_id", task.Scope.SeasonID),
		logger.String("window_type", string(task.Scope.WindowType)),
		logger.String("config_hash", task.Scope.ConfigHash),
	)
	if err := w.handler.HandleRetro(ctx, task); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "retro_handler")
		return fmt.Errorf("retro task %s: %w", task.ID, err)
	}
	if w.completer != nil && task.ID != "" {
		if err := w.completer.CompleteRetroTask(ctx, task.ID); err != nil {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "complete_task")
			return fmt.Errorf("complete retro task %s: %w", task.ID, err)
		}
	}
	return nil
}

// Pool manages multiple workers on one queue.
type Pool struct {
	workers []*RetroWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates count workers sharing queue and handler. Count is at least one.
func NewPool(count int, queue Queue, handler Handler, opts ...Option) *Pool {
	if count < 1 {
		count = 1
	}
	p := &Pool{
		workers: make([]*RetroWorker, count),
		queue:   queue,
		logger:  logger.GetOrNop().Named("retro-pool"),
	}
	for i := 0; i < count; i++ {
		wopts := append([]Option{WithName("retro-worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewRetroWorker(queue, handler, wopts...)
	}
	metrics.UpdateWorkerActiveCount(count)
	return p
}

// Start runs every worker in its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue if it can be closed and waits for the workers.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
