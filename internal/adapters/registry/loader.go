// Package registry reads registered identities and resolves each to an embedding.
//
// A record resolves from its stored encoding text when that text is a valid
// embedding, otherwise from its face image through the extractor. Records that
// resolve neither way are reported and left out of the snapshot. A failure
// that is not about the record itself fails the whole load.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/faceid/internal/adapters/worker"
	"github.com/okian/faceid/internal/domain/biometric"
	"github.com/okian/faceid/pkg/logger"
)

// DefaultWorkers is the default resolution concurrency.
const DefaultWorkers = 4

// Source lists active identity records in a stable order.
type Source interface {
	ListActive(ctx context.Context) ([]biometric.Record, error)
}

// Encoder turns a face image into the embedding of its first face.
type Encoder interface {
	EncodeFirst(ctx context.Context, image []byte) (biometric.Embedding, bool, error)
}

// Report describes how a load resolved its records.
type Report struct {
	Total         int
	FromText      int
	FromImage     int
	UnresolvedIDs []string
	Elapsed       time.Duration
}

// Unresolved returns the number of records left out of the snapshot.
func (r Report) Unresolved() int { return len(r.UnresolvedIDs) }

type resolution struct {
	embedding biometric.Embedding
	fromImage bool
}

// Loader builds snapshots from a Source.
type Loader struct {
	source    Source
	encoder   Encoder
	pool      *worker.Pool
	workers   int
	imageRoot string
	readImage func(path string) ([]byte, error)
	logger    logger.Logger
}

// NewLoader creates a Loader. encoder may be nil, in which case image
// references are not used.
func NewLoader(source Source, encoder Encoder, opts ...Option) *Loader {
	l := &Loader{
		source:    source,
		encoder:   encoder,
		workers:   DefaultWorkers,
		readImage: os.ReadFile,
		logger:    logger.Get().Named("registry"),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.pool == nil {
		l.pool = worker.NewPool(l.workers, worker.WithName("registry-resolve"), worker.WithLogger(l.logger))
	}
	return l
}

// Load reads all active records and resolves them. The snapshot keeps source
// order; LoadedAt is left for the caller to stamp.
func (l *Loader) Load(ctx context.Context) (*biometric.Snapshot, Report, error) {
	start := time.Now()
	records, err := l.source.ListActive(ctx)
	if err != nil {
		return nil, Report{}, fmt.Errorf("list active identities: %w", err)
	}

	results := make([]resolution, len(records))
	failures := make([]error, len(records))
	_, err = l.pool.Run(ctx, len(records), func(ctx context.Context, i int) error {
		res, err := l.resolve(ctx, records[i])
		if err != nil {
			failures[i] = fmt.Errorf("identity %s: %w", records[i].ID, err)
			return failures[i]
		}
		results[i] = res
		return nil
	})
	if err != nil {
		return nil, Report{}, fmt.Errorf("resolve identities: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, Report{}, fmt.Errorf("resolve identities: %w", err)
	}
	for _, f := range failures {
		if f != nil && !Unresolvable(f) {
			return nil, Report{}, fmt.Errorf("resolve identities: %w", f)
		}
	}

	snap := biometric.EmptySnapshot()
	report := Report{Total: len(records)}
	for i, r := range records {
		res := results[i]
		if res.embedding == nil {
			report.UnresolvedIDs = append(report.UnresolvedIDs, r.ID)
			continue
		}
		if _, dup := snap.Meta[r.ID]; dup {
			l.logger.Warn(ctx, "duplicate identity skipped", logger.String("id", r.ID))
			continue
		}
		snap.Add(biometric.Identity{ID: r.ID, DisplayName: r.DisplayName}, res.embedding)
		if res.fromImage {
			report.FromImage++
		} else {
			report.FromText++
		}
	}
	report.Elapsed = time.Since(start)

	if report.Unresolved() > 0 {
		l.logger.Warn(ctx, "identities without a usable embedding",
			logger.Int("count", report.Unresolved()),
			logger.Any("ids", report.UnresolvedIDs),
		)
	}
	return snap, report, nil
}

// resolve applies the per-record fallback: stored text, then image.
func (l *Loader) resolve(ctx context.Context, r biometric.Record) (resolution, error) {
	if r.EmbeddingText != "" {
		e, err := biometric.ParseEmbedding(r.EmbeddingText)
		if err == nil {
			return resolution{embedding: e}, nil
		}
		l.logger.Debug(ctx, "stored encoding rejected", logger.String("id", r.ID), logger.Error(err))
	}
	e, err := l.EncodeImage(ctx, r.ImageRef)
	if err != nil {
		return resolution{}, err
	}
	return resolution{embedding: e, fromImage: true}, nil
}

// EncodeImage reads an image reference and encodes its first face.
func (l *Loader) EncodeImage(ctx context.Context, ref string) (biometric.Embedding, error) {
	if ref == "" || l.encoder == nil {
		return nil, ErrNoImage
	}
	data, err := l.readImage(l.ImagePath(ref))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoImage, err)
	}
	e, ok, err := l.encoder.EncodeFirst(ctx, data)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoFace
	}
	return e, nil
}

// Unresolvable reports whether err means the record itself cannot yield an
// embedding: no usable image reference, or an image without a face. Any other
// failure, such as an extractor outage or an expired context, is a failure of
// the load.
func Unresolvable(err error) bool {
	return errors.Is(err, ErrNoImage) || errors.Is(err, ErrNoFace)
}

// ImagePath resolves ref against the image root when it is relative.
func (l *Loader) ImagePath(ref string) string {
	if filepath.IsAbs(ref) || l.imageRoot == "" {
		return ref
	}
	return filepath.Join(l.imageRoot, ref)
}
