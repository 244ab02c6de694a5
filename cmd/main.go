package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/okian/faceid/internal/adapters/extractor"
	"github.com/okian/faceid/internal/adapters/http/api"
	"github.com/okian/faceid/internal/adapters/http/swagger"
	"github.com/okian/faceid/internal/adapters/registry"
	repository "github.com/okian/faceid/internal/adapters/repository"
	app "github.com/okian/faceid/internal/app"
	"github.com/okian/faceid/internal/config"
	"github.com/okian/faceid/internal/domain/liveness"
	"github.com/okian/faceid/internal/domain/matching"
	"github.com/okian/faceid/pkg/logger"
	"github.com/okian/faceid/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 30 * time.Second
	writeTimeout          = 60 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	pool, err := registry.OpenPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Error(ctx, "invalid registry database settings", logger.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	svc := buildService(cfg, registry.NewPostgresSource(pool))
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop()

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	srv := newHTTPServer(ctx, cfg, svc)

	go func() {
		if err := serve(ctx, srv, cfg); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// buildService wires the extractor client, the registry loader, the snapshot
// store and the domain components from cfg.
func buildService(cfg *config.Config, source registry.Source) *app.Service {
	client := extractor.New(cfg.ExtractorURL,
		extractor.WithTimeout(cfg.ExtractorTimeout),
		extractor.WithDetectionModel(cfg.DetectionModel),
		extractor.WithEncodingModel(cfg.EncodingModel),
		extractor.WithJitters(cfg.Jitters),
	)

	loader := registry.NewLoader(source, client,
		registry.WithImageRoot(cfg.RegistryImageRoot),
		registry.WithWorkers(cfg.RegistryResolveWorkers),
	)

	store := repository.NewSnapshotStore(loader,
		repository.WithStaleness(cfg.RegistryStaleness),
		repository.WithLoadTimeout(cfg.RegistryLoadTimeout),
	)

	verifier := liveness.NewVerifier(
		liveness.WithEARThreshold(cfg.BlinkEARThreshold),
		liveness.WithConsecutiveFrames(cfg.BlinkConsecutiveFrames),
		liveness.WithMovementThreshold(cfg.HeadMovementThreshold),
		liveness.WithMinFaceSize(cfg.MinFaceSize),
	)

	return app.New(client, store,
		app.WithVerifier(verifier),
		app.WithMatcher(matching.NewMatcher(matching.WithThreshold(cfg.MatchThreshold))),
		app.WithAllowedFormats(cfg.AllowedImageFormats),
	)
}

// newHTTPServer registers the API and docs routes on a fresh mux.
func newHTTPServer(ctx context.Context, cfg *config.Config, svc *app.Service) *http.Server {
	mux := http.NewServeMux()

	swagger.Register(ctx, mux)

	apiServer := api.NewServer(svc, svc,
		api.WithAllowedOrigin(cfg.CORSAllowedOrigin),
		api.WithMaxUploadBytes(cfg.MaxUploadBytes()),
	)
	apiServer.Register(ctx, mux)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// serve runs srv with TLS when enabled and the key pair loads, otherwise
// over plain HTTP.
func serve(ctx context.Context, srv *http.Server, cfg *config.Config) error {
	log := logger.Get()
	if cfg.TLSEnabled {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err == nil {
			srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
			log.Info(ctx, "starting HTTPS server", logger.String("addr", cfg.Addr))
			return srv.ListenAndServeTLS("", "")
		}
		log.Warn(ctx, "TLS key pair unavailable, falling back to HTTP",
			logger.String("cert", cfg.TLSCertFile),
			logger.Error(err),
		)
	}
	log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
	return srv.ListenAndServe()
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
