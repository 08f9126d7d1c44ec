package sqlstore

import (
	"time"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/adapters/repository"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/logger"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithWriteAttempts sets how many times a batch write is tried.
func WithWriteAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.writeAttempts = n
		}
	}
}

// WithRetryDelay sets the pause between write attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.retryDelay = d
		}
	}
}

// WithBatchSize sets the number of rows per insert statement.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLockPollInterval sets how often the table lock retries while waiting.
func WithLockPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockPoll = d
		}
	}
}

// WithLockLease sets how long a table lock row is honored. A holder that
// crashed without unlocking stops blocking others once its row is older.
func WithLockLease(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockLease = d
		}
	}
}

// WithRetroSink forwards enqueued retro tasks to sink after they are stored.
func WithRetroSink(sink repository.RetroSink) Option {
	return func(s *Store) {
		s.retroSink = sink
	}
}

// WithLogger sets the store's logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithClock sets the clock used for created-at and updated-at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}
