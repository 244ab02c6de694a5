package repository

import (
	"time"

	"github.com/okian/faceid/pkg/logger"
)

// Option applies a configuration option to the SnapshotStore.
type Option func(*SnapshotStore)

// WithStaleness sets the maximum age of a snapshot before a request-driven reload.
func WithStaleness(d time.Duration) Option {
	return func(s *SnapshotStore) {
		if d > 0 {
			s.staleness = d
		}
	}
}

// WithLoadTimeout bounds a single load.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *SnapshotStore) {
		if d > 0 {
			s.loadTimeout = d
		}
	}
}

// WithRefreshInterval sets how often Start checks freshness in the background.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *SnapshotStore) {
		if d > 0 {
			s.refreshInterval = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *SnapshotStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *SnapshotStore) {
		if l != nil {
			s.logger = l
		}
	}
}
