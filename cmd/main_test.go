package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/faceid/internal/config"
	"github.com/okian/faceid/internal/domain/biometric"
	"github.com/okian/faceid/pkg/logger"
	"github.com/okian/faceid/pkg/metrics"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type staticSource struct {
	records []biometric.Record
	err     error
}

func (s *staticSource) ListActive(context.Context) ([]biometric.Record, error) {
	return s.records, s.err
}

func storedRecord(id string, v float64) biometric.Record {
	e := make(biometric.Embedding, biometric.EmbeddingSize)
	e[0] = v
	text, err := e.Format()
	if err != nil {
		panic(err)
	}
	return biometric.Record{ID: id, DisplayName: "name-" + id, EmbeddingText: text}
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			t.Setenv("FACEID_ADDR", ":8080")
			t.Setenv("FACEID_MATCH_THRESHOLD", "0.45")
			t.Setenv("FACEID_REGISTRY_RESOLVE_WORKERS", "8")

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.MatchThreshold, convey.ShouldEqual, 0.45)
				convey.So(cfg.RegistryResolveWorkers, convey.ShouldEqual, 8)
			})
		})

		convey.Convey("When building the service from configuration", func() {
			cfg := config.New()
			cfg.MatchThreshold = 0.4
			cfg.BlinkConsecutiveFrames = 3
			cfg.AllowedImageFormats = []string{"png"}
			svc := buildService(cfg, &staticSource{records: []biometric.Record{storedRecord("s1", 0), storedRecord("s2", 1)}})

			convey.Convey("Then the thresholds flow through", func() {
				stats := svc.GetStats()
				convey.So(stats["matchThreshold"], convey.ShouldEqual, 0.4)
				convey.So(stats["blinkConsecutiveFrames"], convey.ShouldEqual, 3)
				convey.So(stats["allowedImageFormats"], convey.ShouldResemble, []string{"png"})
			})

			convey.Convey("And starting loads the registry", func() {
				convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
				defer svc.Stop()
				convey.So(svc.Known(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When testing metrics initialization", func() {
			convey.Convey("Then metrics manager should be creatable", func() {
				manager := metrics.NewManager()
				convey.So(manager, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestHTTPServer(t *testing.T) {
	convey.Convey("Given the HTTP server built from configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.CORSAllowedOrigin = "https://kiosk.example"
		svc := buildService(cfg, &staticSource{records: []biometric.Record{storedRecord("s1", 0)}})
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		srv := newHTTPServer(ctx, cfg, svc)

		convey.Convey("Then it listens on the configured address", func() {
			convey.So(srv.Addr, convey.ShouldEqual, ":8001")
			convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)
		})

		convey.Convey("And health reports the registry size", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Header().Get("Access-Control-Allow-Origin"), convey.ShouldEqual, "https://kiosk.example")

			var body map[string]any
			convey.So(json.Unmarshal(w.Body.Bytes(), &body), convey.ShouldBeNil)
			convey.So(body["known"], convey.ShouldEqual, 1.0)
		})

		convey.Convey("And the API docs are served", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", http.NoBody))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("And a reload against a failing registry answers 503", func() {
			failing := buildService(cfg, &staticSource{err: errors.New("database down")})
			w := httptest.NewRecorder()
			newHTTPServer(ctx, cfg, failing).Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/reload", http.NoBody))
			convey.So(w.Code, convey.ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestServeTLSFallback(t *testing.T) {
	convey.Convey("Given TLS enabled without a usable key pair", t, func() {
		dir := t.TempDir()
		cfg := config.New()
		cfg.Addr = "127.0.0.1:0"
		cfg.TLSEnabled = true
		cfg.TLSCertFile = filepath.Join(dir, "missing-cert.pem")
		cfg.TLSKeyFile = filepath.Join(dir, "missing-key.pem")

		srv := &http.Server{Addr: cfg.Addr, Handler: http.NewServeMux(), ReadHeaderTimeout: time.Second}
		done := make(chan error, 1)
		go func() { done <- serve(context.Background(), srv, cfg) }()

		convey.Convey("Then it serves plain HTTP and shuts down cleanly", func() {
			time.Sleep(100 * time.Millisecond)
			convey.So(srv.TLSConfig, convey.ShouldBeNil)
			convey.So(srv.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(<-done, convey.ShouldEqual, http.ErrServerClosed)
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing system metrics updater", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx)
				close(done)
			}()
			cancel()

			convey.Convey("Then it stops with its context", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					t.Fatal("metrics updater did not stop")
				}
			})
		})

		convey.Convey("When testing system metrics update", func() {
			convey.Convey("Then it should update metrics without panicking", func() {
				convey.So(func() { updateSystemMetrics() }, convey.ShouldNotPanic)
			})
		})
	})
}

func TestMainApplicationErrorHandling(t *testing.T) {
	convey.Convey("Given main application error handling", t, func() {
		convey.Convey("When testing invalid configuration", func() {
			t.Setenv("FACEID_DETECTION_MODEL", "mtcnn")

			convey.Convey("Then configuration loading should fail", func() {
				_, err := config.Load(context.Background())
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			t.Setenv("FACEID_CONFIG", filepath.Join(os.TempDir(), "faceid-does-not-exist.yaml"))

			convey.Convey("Then loading reports it", func() {
				_, err := config.Load(context.Background())
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})
	})
}
