package registry_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/okian/faceid/internal/adapters/registry"
	"github.com/okian/faceid/internal/domain/biometric"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeRows struct {
	data [][]string
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	for i, d := range dest {
		*(d.(*string)) = row[i]
	}
	return nil
}

type fakeRow struct {
	vals []int
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		*(d.(*int)) = r.vals[i]
	}
	return nil
}

type fakeDB struct {
	rows     [][]string
	queryErr error
	counts   []int
	execTag  string
	execErr  error
	lastSQL  string
	execArgs []any
}

func (f *fakeDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	f.lastSQL = sql
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &fakeRows{data: f.rows}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.lastSQL = sql
	return fakeRow{vals: f.counts}
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastSQL = sql
	f.execArgs = args
	return pgconn.NewCommandTag(f.execTag), f.execErr
}

func TestPostgresSource(t *testing.T) {
	Convey("Given a staff table with two active rows", t, func() {
		db := &fakeDB{rows: [][]string{
			{"s1", "Ana", "[0.1]", ""},
			{"s2", "Ben", "", "uploads/ben.jpg"},
		}}
		src := registry.NewPostgresSource(db)

		Convey("When listing active identities", func() {
			recs, err := src.ListActive(context.Background())

			Convey("Then every column is mapped onto the record", func() {
				So(err, ShouldBeNil)
				So(recs, ShouldResemble, []biometric.Record{
					{ID: "s1", DisplayName: "Ana", EmbeddingText: "[0.1]"},
					{ID: "s2", DisplayName: "Ben", ImageRef: "uploads/ben.jpg"},
				})
				So(db.lastSQL, ShouldContainSubstring, "is_active = TRUE")
				So(db.lastSQL, ShouldContainSubstring, "ORDER BY staff_id")
			})
		})

		Convey("When the query fails", func() {
			db.queryErr = errors.New("connection refused")
			_, err := src.ListActive(context.Background())
			So(errors.Is(err, registry.ErrSource), ShouldBeTrue)
		})
	})

	Convey("Given a coverage query", t, func() {
		db := &fakeDB{counts: []int{5, 3}, rows: [][]string{{"s4", "Dee", "", ""}, {"s5", "Eve", "", "e.jpg"}}}
		cov, err := registry.NewPostgresSource(db).Coverage(context.Background())

		So(err, ShouldBeNil)
		So(cov.Active, ShouldEqual, 5)
		So(cov.WithEncoding, ShouldEqual, 3)
		So(cov.WithoutEncoding(), ShouldEqual, 2)
		So(cov.Missing, ShouldHaveLength, 2)
		So(cov.Missing[1].ImageRef, ShouldEqual, "e.jpg")
	})

	Convey("Given an embedding to store", t, func() {
		e := make(biometric.Embedding, biometric.EmbeddingSize)
		e[0] = 0.5

		Convey("When the identity exists", func() {
			db := &fakeDB{execTag: "UPDATE 1"}
			err := registry.NewPostgresSource(db).SaveEmbedding(context.Background(), "s1", e)

			So(err, ShouldBeNil)
			So(db.execArgs, ShouldHaveLength, 2)
			So(strings.HasPrefix(db.execArgs[0].(string), "[0.5,0,"), ShouldBeTrue)
			So(db.execArgs[1], ShouldEqual, "s1")
		})

		Convey("When no row is updated", func() {
			db := &fakeDB{execTag: "UPDATE 0"}
			err := registry.NewPostgresSource(db).SaveEmbedding(context.Background(), "ghost", e)
			So(errors.Is(err, registry.ErrSource), ShouldBeTrue)
		})
	})
}

func TestOpenPool(t *testing.T) {
	Convey("Given a malformed database url", t, func() {
		_, err := registry.OpenPool(context.Background(), "postgres://%zz", 4)
		So(errors.Is(err, registry.ErrSource), ShouldBeTrue)
	})

	Convey("Given a well-formed url for an absent server", t, func() {
		pool, err := registry.OpenPool(context.Background(), "postgres://nobody@127.0.0.1:1/none?connect_timeout=1", 3)

		Convey("Then the pool is created lazily with the requested size", func() {
			So(err, ShouldBeNil)
			defer pool.Close()
			So(pool.Config().MaxConns, ShouldEqual, int32(3))
		})

		Convey("And Connect reports the failed ping", func() {
			if pool != nil {
				pool.Close()
			}
			_, err := registry.Connect(context.Background(), "postgres://nobody@127.0.0.1:1/none?connect_timeout=1", 3)
			So(errors.Is(err, registry.ErrSource), ShouldBeTrue)
		})
	})
}
