package worker

import (
	"github.com/okian/stationqc/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithErrorHandler is called for every job the worker could not complete.
func WithErrorHandler(h ErrorHandler) Option {
	return func(w *InMemoryWorker) {
		if h != nil {
			w.onError = h
		}
	}
}
