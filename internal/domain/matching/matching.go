// Package matching finds the registered identity nearest to a query embedding.
package matching

import (
	"math"

	"github.com/okian/faceid/internal/domain/biometric"
)

// DefaultThreshold is the maximum distance accepted as a match.
const DefaultThreshold = 0.5

// Result is the nearest identity for a query.
type Result struct {
	IdentityID  string
	DisplayName string
	Distance    float64
	Score       float64
	Matched     bool
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithThreshold sets the match threshold. Values outside [0,1] are ignored.
func WithThreshold(t float64) Option {
	return func(m *Matcher) {
		if t >= 0 && t <= 1 {
			m.threshold = t
		}
	}
}

// Matcher performs linear nearest-neighbor search over a snapshot.
type Matcher struct {
	threshold float64
}

// NewMatcher creates a Matcher.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the configured threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Match returns the nearest identity in snap. It reports false when the
// snapshot is empty. Ties resolve to the earliest identity in snapshot order.
func (m *Matcher) Match(query biometric.Embedding, snap *biometric.Snapshot) (Result, bool) {
	if snap.Len() == 0 {
		return Result{}, false
	}

	best := -1
	bestDist := math.Inf(1)
	for i, e := range snap.Embeddings {
		if d := query.Distance(e); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Result{}, false
	}

	id := snap.IDs[best]
	name := snap.Meta[id].DisplayName
	if name == "" {
		name = id
	}
	return Result{
		IdentityID:  id,
		DisplayName: name,
		Distance:    bestDist,
		Score:       math.Max(0, 1-bestDist),
		Matched:     bestDist < m.threshold,
	}, true
}
