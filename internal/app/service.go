// Package service provides the verification orchestrator that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"sort"
	"sync"
	"time"

	repository "github.com/okian/faceid/internal/adapters/repository"
	"github.com/okian/faceid/internal/domain/biometric"
	"github.com/okian/faceid/internal/domain/liveness"
	"github.com/okian/faceid/internal/domain/matching"
	"github.com/okian/faceid/pkg/logger"
)

// Extractor finds faces and computes embeddings. Implemented by the sidecar client.
type Extractor interface {
	Detect(ctx context.Context, image []byte) ([]biometric.Detection, error)
	Encode(ctx context.Context, image []byte, boxes []biometric.BBox) ([]biometric.Embedding, error)
}

// Service combines the extractor, the registry store, the liveness verifier
// and the matcher.
type Service struct {
	mu sync.RWMutex

	// Core components
	extractor Extractor
	store     repository.Store
	verifier  *liveness.Verifier
	matcher   *matching.Matcher

	// Configuration
	allowedFormats map[string]struct{}

	// State
	started   bool
	startedAt time.Time

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithVerifier sets the liveness verifier.
func WithVerifier(v *liveness.Verifier) Option {
	return func(s *Service) {
		if v != nil {
			s.verifier = v
		}
	}
}

// WithMatcher sets the matcher.
func WithMatcher(m *matching.Matcher) Option {
	return func(s *Service) {
		if m != nil {
			s.matcher = m
		}
	}
}

// WithAllowedFormats sets the accepted image formats, e.g. "jpeg", "png".
func WithAllowedFormats(formats []string) Option {
	return func(s *Service) {
		if set := formatSet(formats); len(set) > 0 {
			s.allowedFormats = set
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default thresholds.
func New(extractor Extractor, store repository.Store, opts ...Option) *Service {
	s := &Service{
		extractor:      extractor,
		store:          store,
		verifier:       liveness.NewVerifier(),
		matcher:        matching.NewMatcher(),
		allowedFormats: formatSet([]string{"jpeg", "png"}),
		logger:         logger.Get().Named("service"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start performs the initial registry load and starts background refresh
// when the store supports it. A failed initial load is logged, not returned:
// the service answers with an empty registry until a reload succeeds.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting face verification service...")

	if err := s.store.EnsureFresh(ctx, true); err != nil {
		s.logger.Warn(ctx, "initial registry load failed", logger.Error(err))
	}
	if bg, ok := s.store.(interface{ Start(context.Context) }); ok {
		bg.Start(ctx)
	}

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "face verification service started",
		logger.Int("known", s.store.Current().Len()),
		logger.Float64("matchThreshold", s.matcher.Threshold()),
	)
	return nil
}

// Stop gracefully shuts down background work.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping face verification service...")

	if closer, ok := s.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	s.started = false
	s.logger.Info(context.Background(), "face verification service stopped")
}

// Reload forces a registry reload and returns the registry size afterwards.
// On failure the previous registry stays active and its size is returned.
func (s *Service) Reload(ctx context.Context) (int, error) {
	err := s.store.EnsureFresh(ctx, true)
	return s.store.Current().Len(), err
}

// Known returns the number of registered identities.
func (s *Service) Known() int {
	return s.store.Current().Len()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.store.Stats()
	formats := make([]string, 0, len(s.allowedFormats))
	for f := range s.allowedFormats {
		formats = append(formats, f)
	}
	sort.Strings(formats)

	stats := map[string]interface{}{
		"started":                  s.started,
		"known":                    st.Known,
		"unresolved":               st.Unresolved,
		"reloads":                  st.Reloads,
		"reloadFailures":           st.Failures,
		"matchThreshold":           s.matcher.Threshold(),
		"blinkEarThreshold":        s.verifier.EARThreshold(),
		"blinkConsecutiveFrames":   s.verifier.ConsecutiveFrames(),
		"headMovementThreshold":    s.verifier.MovementThreshold(),
		"allowedImageFormats":      formats,
		"snapshotAgeSeconds":       st.Age.Seconds(),
		"lastReloadError":          st.LastError,
		"registryLoadedAtUnixNano": int64(0),
	}
	if !st.LoadedAt.IsZero() {
		stats["registryLoadedAtUnixNano"] = st.LoadedAt.UnixNano()
	}
	if s.started {
		stats["uptimeSeconds"] = time.Since(s.startedAt).Seconds()
	}

	return stats
}
