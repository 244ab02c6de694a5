// Package repository holds the in-memory identity registry snapshot.
package repository

import (
	"context"
	"time"

	"github.com/okian/faceid/internal/adapters/registry"
	"github.com/okian/faceid/internal/domain/biometric"
)

// Loader produces a fresh snapshot from the identity source.
type Loader interface {
	Load(ctx context.Context) (*biometric.Snapshot, registry.Report, error)
}

// Stats describes the store state.
type Stats struct {
	Known      int
	Unresolved int
	LoadedAt   time.Time
	Age        time.Duration
	Reloads    int64
	Failures   int64
	LastError  string
}

// Store provides read access to the registry snapshot and refreshes it.
type Store interface {
	// EnsureFresh reloads when force is set, when the last successful load is
	// older than the staleness window, or when the snapshot is empty.
	// Concurrent calls share one load. A failed load keeps the previous snapshot.
	EnsureFresh(ctx context.Context, force bool) error

	// Current returns the latest snapshot without loading. Never nil.
	Current() *biometric.Snapshot

	// Stats reports size, age and reload counters.
	Stats() Stats
}
