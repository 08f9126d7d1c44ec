// Package worker drains retro-recompute tasks and hands them to a handler.
package worker

import (
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/logger"
)

// Option applies a configuration option to the RetroWorker.
type Option func(*RetroWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *RetroWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(log logger.Logger) Option {
	return func(w *RetroWorker) {
		if log != nil {
			w.logger = log
		}
	}
}

// WithCompleter marks handled tasks as done in durable storage.
func WithCompleter(c Completer) Option {
	return func(w *RetroWorker) {
		w.completer = c
	}
}
