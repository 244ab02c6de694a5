// Package biometric contains the face types passed between the extractor,
// the registry, the liveness verifier and the matcher.
package biometric

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// EmbeddingSize is the length of a face encoding.
const EmbeddingSize = 128

// Landmark group names produced by the extractor.
const (
	LeftEye  = "left_eye"
	RightEye = "right_eye"
	NoseTip  = "nose_tip"
)

// Embedding is a face encoding. Euclidean distance approximates dissimilarity.
type Embedding []float64

// Validate reports whether e has exactly EmbeddingSize finite values.
func (e Embedding) Validate() error {
	if len(e) != EmbeddingSize {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalidEmbedding, len(e), EmbeddingSize)
	}
	for i, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: value %d is not finite", ErrInvalidEmbedding, i)
		}
	}
	return nil
}

// Distance returns the Euclidean distance between e and other.
// Mismatched lengths yield +Inf so they never win a nearest-neighbor search.
func (e Embedding) Distance(other Embedding) float64 {
	if len(e) != len(other) {
		return math.Inf(1)
	}
	var sum float64
	for i := range e {
		d := e[i] - other[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ParseEmbedding decodes the JSON array text stored with an identity record.
func ParseEmbedding(text string) (Embedding, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidEmbedding)
	}
	var e Embedding
	if err := json.Unmarshal([]byte(text), &e); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEmbedding, err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Format encodes e as the JSON array text accepted by ParseEmbedding.
func (e Embedding) Format() (string, error) {
	b, err := json.Marshal([]float64(e))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidEmbedding, err)
	}
	return string(b), nil
}

// Point is a landmark coordinate in pixels.
type Point struct {
	X float64
	Y float64
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// MarshalJSON encodes the point as [x, y].
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// UnmarshalJSON decodes [x, y].
func (p *Point) UnmarshalJSON(b []byte) error {
	var xy [2]float64
	if err := json.Unmarshal(b, &xy); err != nil {
		return err
	}
	p.X, p.Y = xy[0], xy[1]
	return nil
}

// Landmarks maps a group name (LeftEye, RightEye, NoseTip, ...) to its points.
type Landmarks map[string][]Point

// BBox is a face region in pixel coordinates.
type BBox struct {
	Top    int
	Right  int
	Bottom int
	Left   int
}

// Width returns right - left.
func (b BBox) Width() int { return b.Right - b.Left }

// Height returns bottom - top.
func (b BBox) Height() int { return b.Bottom - b.Top }

// Area returns width * height.
func (b BBox) Area() int { return b.Width() * b.Height() }

// Center returns the box center.
func (b BBox) Center() (x, y float64) {
	return float64(b.Right+b.Left) / 2, float64(b.Top+b.Bottom) / 2
}

// MarshalJSON encodes the box in the extractor order [top, right, bottom, left].
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.Top, b.Right, b.Bottom, b.Left})
}

// UnmarshalJSON decodes [top, right, bottom, left].
func (b *BBox) UnmarshalJSON(data []byte) error {
	var v [4]int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	b.Top, b.Right, b.Bottom, b.Left = v[0], v[1], v[2], v[3]
	return nil
}

// Detection is one face found by the extractor.
type Detection struct {
	Box       BBox      `json:"box"`
	Landmarks Landmarks `json:"landmarks"`
}

// Record is an identity row as stored by the registry source.
type Record struct {
	ID            string
	DisplayName   string
	EmbeddingText string
	ImageRef      string
}

// Identity is the metadata kept per registered identity.
type Identity struct {
	ID          string
	DisplayName string
}

// Snapshot is an immutable registry view. Embeddings and IDs are parallel and
// every ID has a Meta entry. Order is load order.
type Snapshot struct {
	Embeddings []Embedding
	IDs        []string
	Meta       map[string]Identity
	LoadedAt   time.Time
}

// EmptySnapshot returns a snapshot with no identities.
func EmptySnapshot() *Snapshot {
	return &Snapshot{Meta: map[string]Identity{}}
}

// Len returns the number of registered identities.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.IDs)
}

// Add appends an identity, keeping the parallel slices aligned.
// Only used while building a snapshot, before it is published.
func (s *Snapshot) Add(id Identity, e Embedding) {
	s.Embeddings = append(s.Embeddings, e)
	s.IDs = append(s.IDs, id.ID)
	s.Meta[id.ID] = id
}
