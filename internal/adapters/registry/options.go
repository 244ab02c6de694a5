package registry

import (
	"github.com/okian/faceid/internal/adapters/worker"
	"github.com/okian/faceid/pkg/logger"
)

// Option configures a Loader.
type Option func(*Loader)

// WithImageRoot sets the directory relative image references resolve against.
func WithImageRoot(dir string) Option {
	return func(l *Loader) {
		l.imageRoot = dir
	}
}

// WithWorkers sets how many records are resolved concurrently.
func WithWorkers(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

// WithPool replaces the resolution worker pool.
func WithPool(p *worker.Pool) Option {
	return func(l *Loader) {
		if p != nil {
			l.pool = p
		}
	}
}

// WithImageReader replaces how image references are read, e.g. for tests.
func WithImageReader(fn func(path string) ([]byte, error)) Option {
	return func(l *Loader) {
		if fn != nil {
			l.readImage = fn
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Loader) {
		if lg != nil {
			l.logger = lg
		}
	}
}
