package registry

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/faceid/internal/domain/biometric"
)

const (
	listActiveSQL = `SELECT staff_id, full_name, COALESCE(face_encoding, ''), COALESCE(face_image_path, '')
FROM staff WHERE is_active = TRUE ORDER BY staff_id`

	listMissingSQL = `SELECT staff_id, full_name, '', COALESCE(face_image_path, '')
FROM staff WHERE is_active = TRUE AND (face_encoding IS NULL OR face_encoding = '')
ORDER BY staff_id`

	coverageSQL = `SELECT COUNT(*),
       COUNT(*) FILTER (WHERE face_encoding IS NOT NULL AND face_encoding <> '')
FROM staff WHERE is_active = TRUE`

	saveEncodingSQL = `UPDATE staff SET face_encoding = $1 WHERE staff_id = $2`
)

// Querier is the subset of *pgxpool.Pool used by PostgresSource.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Coverage counts active identities with and without a stored encoding.
type Coverage struct {
	Active       int
	WithEncoding int
	Missing      []biometric.Record
}

// WithoutEncoding returns the number of active identities without an encoding.
func (c Coverage) WithoutEncoding() int { return c.Active - c.WithEncoding }

// PostgresSource reads identity records from the staff table.
type PostgresSource struct {
	db Querier
}

// NewPostgresSource wraps a pool or any compatible Querier.
func NewPostgresSource(db Querier) *PostgresSource {
	return &PostgresSource{db: db}
}

// OpenPool creates a pgx pool without connecting. Connections are made on
// first use, so an unreachable database surfaces as a load error later.
func OpenPool(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse database url: %w", ErrSource, err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: open pool: %w", ErrSource, err)
	}
	return pool, nil
}

// Connect opens a pgx pool and verifies it with a ping.
func Connect(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	pool, err := OpenPool(ctx, url, maxConns)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrSource, err)
	}
	return pool, nil
}

// ListActive returns all active identity records ordered by ID.
func (s *PostgresSource) ListActive(ctx context.Context) ([]biometric.Record, error) {
	return s.list(ctx, listActiveSQL)
}

// ListMissing returns active identity records that have no stored encoding.
func (s *PostgresSource) ListMissing(ctx context.Context) ([]biometric.Record, error) {
	return s.list(ctx, listMissingSQL)
}

// Coverage reports how many active identities carry a stored encoding.
func (s *PostgresSource) Coverage(ctx context.Context) (Coverage, error) {
	var c Coverage
	if err := s.db.QueryRow(ctx, coverageSQL).Scan(&c.Active, &c.WithEncoding); err != nil {
		return Coverage{}, fmt.Errorf("%w: coverage: %w", ErrSource, err)
	}
	missing, err := s.ListMissing(ctx)
	if err != nil {
		return Coverage{}, err
	}
	c.Missing = missing
	return c, nil
}

// SaveEmbedding stores e as the precomputed encoding of identity id.
func (s *PostgresSource) SaveEmbedding(ctx context.Context, id string, e biometric.Embedding) error {
	text, err := e.Format()
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, saveEncodingSQL, text, id)
	if err != nil {
		return fmt.Errorf("%w: save encoding for %s: %w", ErrSource, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: identity %s not found", ErrSource, id)
	}
	return nil
}

func (s *PostgresSource) list(ctx context.Context, query string) ([]biometric.Record, error) {
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", ErrSource, err)
	}
	defer rows.Close()

	var out []biometric.Record
	for rows.Next() {
		var r biometric.Record
		if err := rows.Scan(&r.ID, &r.DisplayName, &r.EmbeddingText, &r.ImageRef); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", ErrSource, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %w", ErrSource, err)
	}
	return out, nil
}
