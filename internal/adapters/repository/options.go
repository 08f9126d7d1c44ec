package repository

import (
	"time"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/logger"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithRetroSink forwards enqueued retro tasks to sink.
func WithRetroSink(sink RetroSink) Option {
	return func(s *MemoryStore) {
		s.retroSink = sink
	}
}

// WithLockPollInterval sets how often Lock retries while waiting.
func WithLockPollInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.lockPoll = interval
		}
	}
}

// WithClock sets the clock used for created-at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store's logger.
func WithLogger(log logger.Logger) Option {
	return func(s *MemoryStore) {
		if log != nil {
			s.logger = log
		}
	}
}
