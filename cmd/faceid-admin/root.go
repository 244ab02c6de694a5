package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okian/faceid/internal/adapters/registry"
	"github.com/okian/faceid/internal/config"
	"github.com/okian/faceid/pkg/logger"
)

// Version is the application version.
const Version = "0.1.0"

// env holds what subcommands share once the root pre-run has connected.
type env struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	source *registry.PostgresSource
}

func newRootCmd() *cobra.Command {
	var (
		dbURL        string
		extractorURL string
		e            env
	)

	root := &cobra.Command{
		Use:           "faceid-admin",
		Short:         "Registry maintenance for the faceid recognition service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			if dbURL != "" {
				cfg.DatabaseURL = dbURL
			}
			if extractorURL != "" {
				cfg.ExtractorURL = extractorURL
			}
			if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(os.Stderr)); err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			_ = logger.SetLevelString(cfg.LogLevel)

			pool, err := registry.Connect(cmd.Context(), cfg.DatabaseURL, cfg.DBMaxConns)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			e = env{cfg: cfg, pool: pool, source: registry.NewPostgresSource(pool)}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if e.pool != nil {
				e.pool.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: database_url setting)")
	root.PersistentFlags().StringVar(&extractorURL, "extractor", "", "extractor sidecar base URL (default: extractor_url setting)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newStatusCmd(&e), newPopulateCmd(&e))
	return root
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
