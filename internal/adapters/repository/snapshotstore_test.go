package repository_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/faceid/internal/adapters/extractor"
	"github.com/okian/faceid/internal/adapters/registry"
	"github.com/okian/faceid/internal/adapters/repository"
	"github.com/okian/faceid/internal/domain/biometric"
	"github.com/okian/faceid/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type fakeLoader struct {
	calls atomic.Int32
	size  atomic.Int32
	err   atomic.Pointer[error]
	gate  chan struct{}
}

func newFakeLoader(size int) *fakeLoader {
	l := &fakeLoader{}
	l.size.Store(int32(size))
	return l
}

func (l *fakeLoader) fail(err error) { l.err.Store(&err) }
func (l *fakeLoader) heal()          { l.err.Store(nil) }

func (l *fakeLoader) Load(ctx context.Context) (*biometric.Snapshot, registry.Report, error) {
	l.calls.Add(1)
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, registry.Report{}, ctx.Err()
		}
	}
	if p := l.err.Load(); p != nil {
		return nil, registry.Report{}, *p
	}
	snap := biometric.EmptySnapshot()
	n := int(l.size.Load())
	for i := 0; i < n; i++ {
		e := make(biometric.Embedding, biometric.EmbeddingSize)
		e[0] = float64(i)
		snap.Add(biometric.Identity{ID: string(rune('a' + i))}, e)
	}
	return snap, registry.Report{Total: n + 1, FromText: n, UnresolvedIDs: []string{"zz"}}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSnapshotStore_EnsureFresh(t *testing.T) {
	Convey("Given a store over a registry of three identities", t, func() {
		ctx := context.Background()
		clk := &clock{now: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
		loader := newFakeLoader(3)
		store := repository.NewSnapshotStore(loader,
			repository.WithStaleness(60*time.Second),
			repository.WithClock(clk.Now),
		)

		Convey("Before any load the snapshot is empty but not nil", func() {
			So(store.Current(), ShouldNotBeNil)
			So(store.Current().Len(), ShouldEqual, 0)
		})

		Convey("When ensuring freshness twice within the staleness window", func() {
			So(store.EnsureFresh(ctx, false), ShouldBeNil)
			clk.Advance(30 * time.Second)
			So(store.EnsureFresh(ctx, false), ShouldBeNil)

			Convey("Then at most one load is performed", func() {
				So(loader.calls.Load(), ShouldEqual, int32(1))
				So(store.Current().Len(), ShouldEqual, 3)
				So(store.Current().LoadedAt, ShouldEqual, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
			})
		})

		Convey("When the window elapses", func() {
			So(store.EnsureFresh(ctx, false), ShouldBeNil)
			clk.Advance(61 * time.Second)
			loader.size.Store(4)
			So(store.EnsureFresh(ctx, false), ShouldBeNil)

			Convey("Then the snapshot is reloaded", func() {
				So(loader.calls.Load(), ShouldEqual, int32(2))
				So(store.Current().Len(), ShouldEqual, 4)
			})
		})

		Convey("When forced inside the window", func() {
			So(store.EnsureFresh(ctx, false), ShouldBeNil)
			So(store.EnsureFresh(ctx, true), ShouldBeNil)
			So(loader.calls.Load(), ShouldEqual, int32(2))
		})

		Convey("When a reload fails after a successful one", func() {
			So(store.EnsureFresh(ctx, false), ShouldBeNil)
			before := store.Current()
			loader.fail(errors.New("db down"))

			err := store.EnsureFresh(ctx, true)

			Convey("Then the error is returned and the previous snapshot is kept", func() {
				So(errors.Is(err, repository.ErrReload), ShouldBeTrue)
				So(store.Current(), ShouldEqual, before)
				So(store.Current().Len(), ShouldEqual, 3)
			})

			Convey("And the failure is visible in stats", func() {
				st := store.Stats()
				So(st.Failures, ShouldEqual, int64(1))
				So(st.Reloads, ShouldEqual, int64(1))
				So(st.LastError, ShouldContainSubstring, "db down")
			})

			Convey("And the window still counts from the last success", func() {
				loader.heal()
				clk.Advance(61 * time.Second)
				So(store.EnsureFresh(ctx, false), ShouldBeNil)
				So(loader.calls.Load(), ShouldEqual, int32(3))
				So(store.Stats().LastError, ShouldEqual, "")
			})
		})

		Convey("When the registry is empty", func() {
			loader.size.Store(0)
			So(store.EnsureFresh(ctx, false), ShouldBeNil)
			So(store.EnsureFresh(ctx, false), ShouldBeNil)

			Convey("Then every call retries the load", func() {
				So(loader.calls.Load(), ShouldEqual, int32(2))
			})
		})

		Convey("Stats report size, age and unresolved records", func() {
			So(store.EnsureFresh(ctx, false), ShouldBeNil)
			clk.Advance(10 * time.Second)
			st := store.Stats()
			So(st.Known, ShouldEqual, 3)
			So(st.Unresolved, ShouldEqual, 1)
			So(st.Age, ShouldEqual, 10*time.Second)
		})
	})
}

func TestSnapshotStore_Coalescing(t *testing.T) {
	Convey("Given a store whose load blocks until released", t, func() {
		loader := newFakeLoader(2)
		loader.gate = make(chan struct{})
		store := repository.NewSnapshotStore(loader)

		Convey("When many callers trigger a load concurrently", func() {
			const callers = 16
			var wg sync.WaitGroup
			errs := make([]error, callers)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs[i] = store.EnsureFresh(context.Background(), i%2 == 0)
				}(i)
			}

			// wait until the single load is in flight, then release it
			for loader.calls.Load() == 0 {
				time.Sleep(time.Millisecond)
			}
			time.Sleep(20 * time.Millisecond)
			close(loader.gate)
			wg.Wait()

			Convey("Then they share one underlying load", func() {
				So(loader.calls.Load(), ShouldBeLessThanOrEqualTo, 2)
				for _, err := range errs {
					So(err, ShouldBeNil)
				}
				So(store.Current().Len(), ShouldEqual, 2)
			})
		})

		Convey("When the waiting caller gives up", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()

			err := store.EnsureFresh(ctx, false)

			Convey("Then it returns its own context error while the load continues", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				close(loader.gate)
				So(store.EnsureFresh(context.Background(), false), ShouldBeNil)
				So(store.Current().Len(), ShouldEqual, 2)
			})
		})
	})

	Convey("Given a load that exceeds the load timeout", t, func() {
		loader := newFakeLoader(1)
		loader.gate = make(chan struct{})
		store := repository.NewSnapshotStore(loader, repository.WithLoadTimeout(10*time.Millisecond))

		err := store.EnsureFresh(context.Background(), true)

		So(errors.Is(err, repository.ErrReload), ShouldBeTrue)
		So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		So(store.Current().Len(), ShouldEqual, 0)
	})
}

func TestSnapshotStore_Start(t *testing.T) {
	Convey("Given a store with a short refresh interval", t, func() {
		loader := newFakeLoader(1)
		store := repository.NewSnapshotStore(loader,
			repository.WithStaleness(5*time.Millisecond),
			repository.WithRefreshInterval(5*time.Millisecond),
		)

		store.Start(context.Background())
		deadline := time.Now().Add(2 * time.Second)
		for loader.calls.Load() < 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		So(store.Close(), ShouldBeNil)

		So(loader.calls.Load(), ShouldBeGreaterThanOrEqualTo, 2)
		So(store.Current().Len(), ShouldEqual, 1)
	})
}

type recordSource struct {
	records []biometric.Record
}

func (s *recordSource) ListActive(context.Context) ([]biometric.Record, error) {
	return s.records, nil
}

// switchEncoder encodes an image reference to a vector keyed by its first
// byte. It can be made to hang until the load context ends, or to fail for
// one reference.
type switchEncoder struct {
	hang   atomic.Bool
	failOn atomic.Pointer[string]
	err    error
}

func (e *switchEncoder) EncodeFirst(ctx context.Context, image []byte) (biometric.Embedding, bool, error) {
	if e.hang.Load() {
		<-ctx.Done()
		return nil, false, ctx.Err()
	}
	if ref := e.failOn.Load(); ref != nil && *ref == string(image) {
		if e.err == nil {
			return nil, false, nil
		}
		return nil, false, e.err
	}
	v := make(biometric.Embedding, biometric.EmbeddingSize)
	v[0] = float64(image[0])
	return v, true, nil
}

func TestSnapshotStore_WithRegistryLoader(t *testing.T) {
	Convey("Given a store over two photo-enrolled identities", t, func() {
		ctx := context.Background()
		enc := &switchEncoder{}
		loader := registry.NewLoader(&recordSource{records: []biometric.Record{
			{ID: "a", DisplayName: "Ana", ImageRef: "a.jpg"},
			{ID: "b", DisplayName: "Ben", ImageRef: "b.jpg"},
		}}, enc,
			registry.WithWorkers(2),
			registry.WithImageReader(func(path string) ([]byte, error) { return []byte(path), nil }),
		)
		store := repository.NewSnapshotStore(loader, repository.WithLoadTimeout(50*time.Millisecond))

		So(store.EnsureFresh(ctx, true), ShouldBeNil)
		before := store.Current()
		So(before.Len(), ShouldEqual, 2)

		Convey("When a reload runs past the load timeout", func() {
			enc.hang.Store(true)
			err := store.EnsureFresh(ctx, true)

			Convey("Then it fails and the previous registry stays active", func() {
				So(errors.Is(err, repository.ErrReload), ShouldBeTrue)
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				So(store.Current(), ShouldEqual, before)
				So(store.Current().Len(), ShouldEqual, 2)
				So(store.Stats().Failures, ShouldEqual, int64(1))
			})
		})

		Convey("When the extractor fails for one identity mid-resolution", func() {
			ref := "b.jpg"
			enc.err = extractor.ErrUnavailable
			enc.failOn.Store(&ref)
			err := store.EnsureFresh(ctx, true)

			Convey("Then the reload fails rather than dropping the identity", func() {
				So(errors.Is(err, repository.ErrReload), ShouldBeTrue)
				So(errors.Is(err, extractor.ErrUnavailable), ShouldBeTrue)
				So(store.Current(), ShouldEqual, before)
			})
		})

		Convey("When one image no longer shows a face", func() {
			ref := "b.jpg"
			enc.failOn.Store(&ref)
			err := store.EnsureFresh(ctx, true)

			Convey("Then only that identity is left out", func() {
				So(err, ShouldBeNil)
				So(store.Current().IDs, ShouldResemble, []string{"a"})
				So(store.Stats().Unresolved, ShouldEqual, 1)
			})
		})
	})
}
