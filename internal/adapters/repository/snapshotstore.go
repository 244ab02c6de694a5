package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/faceid/internal/domain/biometric"
	"github.com/okian/faceid/pkg/logger"
	"github.com/okian/faceid/pkg/metrics"
)

// Defaults.
const (
	DefaultStaleness   = 60 * time.Second
	DefaultLoadTimeout = 30 * time.Second
)

const reloadKey = "registry"

var _ Store = (*SnapshotStore)(nil)

// SnapshotStore publishes immutable snapshots through an atomic pointer.
// Readers never block and never observe a partially built snapshot.
type SnapshotStore struct {
	loader          Loader
	staleness       time.Duration
	loadTimeout     time.Duration
	refreshInterval time.Duration
	now             func() time.Time

	snapshot   atomic.Pointer[biometric.Snapshot]
	unresolved atomic.Int64
	reloads    atomic.Int64
	failures   atomic.Int64
	lastErr    atomic.Pointer[string]
	forced     atomic.Int32

	group singleflight.Group

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once

	logger logger.Logger
}

// NewSnapshotStore creates a store holding an empty snapshot. Nothing is
// loaded until EnsureFresh is called.
func NewSnapshotStore(loader Loader, opts ...Option) *SnapshotStore {
	s := &SnapshotStore{
		loader:      loader,
		staleness:   DefaultStaleness,
		loadTimeout: DefaultLoadTimeout,
		now:         time.Now,
		stopChan:    make(chan struct{}),
		logger:      logger.Get().Named("registry-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.refreshInterval == 0 {
		s.refreshInterval = s.staleness
	}
	s.snapshot.Store(biometric.EmptySnapshot())
	return s
}

// Current returns the latest published snapshot.
func (s *SnapshotStore) Current() *biometric.Snapshot {
	return s.snapshot.Load()
}

// EnsureFresh implements Store. The load itself is detached from ctx so a
// canceled request does not abort a load other callers are waiting on; ctx
// only bounds how long this caller waits. A forced call returns only after a
// load that ran on its behalf or while it waited.
func (s *SnapshotStore) EnsureFresh(ctx context.Context, force bool) error {
	if !s.needsReload(force) {
		return nil
	}
	if force {
		s.forced.Add(1)
		defer s.forced.Add(-1)
	}

	loadCtx := context.WithoutCancel(ctx)
	for {
		ch := s.group.DoChan(reloadKey, func() (any, error) {
			// another caller may have finished a load while this one queued
			if !force && s.forced.Load() == 0 && !s.needsReload(false) {
				return false, nil
			}
			return true, s.reload(loadCtx)
		})

		select {
		case res := <-ch:
			if res.Err != nil {
				return res.Err
			}
			if loaded, _ := res.Val.(bool); loaded || !force {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stats implements Store.
func (s *SnapshotStore) Stats() Stats {
	snap := s.Current()
	st := Stats{
		Known:      snap.Len(),
		Unresolved: int(s.unresolved.Load()),
		LoadedAt:   snap.LoadedAt,
		Reloads:    s.reloads.Load(),
		Failures:   s.failures.Load(),
	}
	if !snap.LoadedAt.IsZero() {
		st.Age = s.now().Sub(snap.LoadedAt)
	}
	if msg := s.lastErr.Load(); msg != nil {
		st.LastError = *msg
	}
	return st
}

// Start refreshes the snapshot in the background every refresh interval
// until ctx is canceled or Close is called.
func (s *SnapshotStore) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.refreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				if err := s.EnsureFresh(ctx, false); err != nil {
					s.logger.Warn(ctx, "background refresh failed", logger.Error(err))
				}
			}
		}
	}()
}

// Close stops the background refresher.
func (s *SnapshotStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *SnapshotStore) needsReload(force bool) bool {
	if force {
		return true
	}
	snap := s.Current()
	if snap.Len() == 0 {
		return true
	}
	return s.now().Sub(snap.LoadedAt) > s.staleness
}

// reload runs one load and publishes its result. On failure the previous
// snapshot stays in place.
func (s *SnapshotStore) reload(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()

	start := s.now()
	snap, report, err := s.loader.Load(ctx)
	elapsed := s.now().Sub(start)
	ms := float64(elapsed.Milliseconds())

	if err != nil {
		s.failures.Add(1)
		msg := err.Error()
		s.lastErr.Store(&msg)
		metrics.RecordRegistryReloadError(ms)
		s.logger.Error(ctx, "registry reload failed",
			logger.Duration("elapsed", elapsed),
			logger.Int("kept", s.Current().Len()),
			logger.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrReload, err)
	}

	if snap == nil {
		snap = biometric.EmptySnapshot()
	}
	snap.LoadedAt = s.now()
	s.snapshot.Store(snap)
	s.unresolved.Store(int64(report.Unresolved()))
	s.reloads.Add(1)
	s.lastErr.Store(nil)

	metrics.RecordRegistryReload(snap.Len(), report.Unresolved(), ms, float64(snap.LoadedAt.Unix()))
	s.logger.Info(ctx, "registry reloaded",
		logger.Int("known", snap.Len()),
		logger.Int("from_text", report.FromText),
		logger.Int("from_image", report.FromImage),
		logger.Int("unresolved", report.Unresolved()),
		logger.Duration("elapsed", elapsed),
	)
	return nil
}
