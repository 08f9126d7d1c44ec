// Package queue holds retro-recompute tasks until a worker picks them up.
//
// A scope that is already queued or being processed is not queued again;
// the worker releases it with Done once handled.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/logger"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/metrics"
)

const defaultCapacity = 1024

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a task. A duplicate scope is accepted and dropped.
	Enqueue(ctx context.Context, task model.RetroTask) error

	// Dequeue returns a channel that receives tasks until the queue is closed.
	Dequeue(ctx context.Context) <-chan model.RetroTask

	// Done releases the scope of a handled task.
	Done(ctx context.Context, task model.RetroTask)

	// Len returns the number of pending tasks.
	Len(ctx context.Context) int

	// Close stops accepting tasks and closes the dequeue channel.
	Close() error
}

// InMemoryQueue implements Queue over a buffered channel.
type InMemoryQueue struct {
	tasks      chan model.RetroTask
	scopes     *scopeSet
	capacity   int
	maxTracked int
	logger     logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded retro task queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.tasks = make(chan model.RetroTask, q.capacity)
	q.scopes = newScopeSet(q.maxTracked)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue implements Queue.Enqueue and repository.RetroSink.
func (q *InMemoryQueue) Enqueue(ctx context.Context, task model.RetroTask) error {
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	key := task.Scope.Key()
	if q.scopes.seenAndRecord(key) {
		metrics.RecordQueueDuplicate()
		q.logger.Debug(ctx, "retro scope already queued", logger.String("scope", key))
		return nil
	}

	select {
	case q.tasks <- task:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.tasks))
		return nil
	case <-ctx.Done():
		q.scopes.forget(key)
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return ctx.Err()
	default:
		q.scopes.forget(key)
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue implements Queue.Dequeue.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.RetroTask {
	out := make(chan model.RetroTask)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case task, ok := <-q.tasks:
				if !ok {
					return
				}
				select {
				case out <- task:
					metrics.RecordQueueDequeue()
					metrics.UpdateQueueSize(len(q.tasks))
				case <-ctx.Done():
					q.scopes.forget(task.Scope.Key())
					return
				}
			}
		}
	}()
	return out
}

// Done implements Queue.Done.
func (q *InMemoryQueue) Done(_ context.Context, task model.RetroTask) {
	q.scopes.forget(task.Scope.Key())
}

// Len implements Queue.Len.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.tasks)
	metrics.UpdateQueueSize(size)
	return size
}

// Tracked returns the number of scopes queued or in flight.
func (q *InMemoryQueue) Tracked() int {
	return q.scopes.size()
}

// Close implements Queue.Close.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.tasks)
	q.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
