package queue

import "github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/logger"

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum number of pending tasks.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithMaxTracked bounds how many scope keys are remembered for
// de-duplication. Zero or less keeps every key until it is released.
func WithMaxTracked(n int) Option {
	return func(q *InMemoryQueue) {
		q.maxTracked = n
	}
}

// WithLogger sets the queue's logger.
func WithLogger(log logger.Logger) Option {
	return func(q *InMemoryQueue) {
		if log != nil {
			q.logger = log
		}
	}
}
