package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/mikepodsy/my-finance-app/internal/api"
	"github.com/mikepodsy/my-finance-app/internal/auth"
	"github.com/mikepodsy/my-finance-app/internal/clock"
	"github.com/mikepodsy/my-finance-app/internal/config"
	"github.com/mikepodsy/my-finance-app/internal/database"
	"github.com/mikepodsy/my-finance-app/internal/logging"
	"github.com/mikepodsy/my-finance-app/internal/metrics"
	"github.com/mikepodsy/my-finance-app/internal/s3"
	"github.com/mikepodsy/my-finance-app/internal/secrets"
	"github.com/mikepodsy/my-finance-app/internal/store"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API serving /register, /login, /logout and /session.
The server stops gracefully on SIGINT or SIGTERM.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := initializeAPI(ctx, cfg, logger)
	if err != nil {
		logging.LogError(ctx, logger, "startup failed", err)
		return err
	}
	defer cleanup()

	logger.Info("Starting authd", "version", version, "env", cfg.Env, "database", cfg.Database.Driver)
	return app.Serve(ctx)
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return logging.Setup("authd", version, cfg.Log.Format, level, nil), nil
}

// initializeAPI wires the configured store, hasher, signing key and token
// manager into the HTTP API. The returned cleanup releases the database.
func initializeAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*api.Api, func(), error) {
	clk := clock.Real{}
	m := metrics.New()

	users, cleanup, err := openUserStore(ctx, cfg.Database, clk)
	if err != nil {
		return nil, nil, err
	}

	hasher, err := auth.NewHasher(cfg.Auth.Hasher, cfg.Auth.BcryptCost, auth.Argon2Params{
		Time:    cfg.Auth.Argon2Time,
		Memory:  cfg.Auth.Argon2MemoryKiB,
		Threads: cfg.Auth.Argon2Threads,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	pooled := auth.NewPooledHasher(hasher, cfg.Auth.HashConcurrency, m)

	var fetcher secrets.ObjectFetcher
	if cfg.Auth.SigningSecret == "" && cfg.Auth.SigningSecretSource != "" {
		client, err := s3.NewClient(ctx, cfg.S3)
		if err != nil {
			cleanup()
			return nil, nil, oops.Code("SECRET_SOURCE").Wrap(err)
		}
		fetcher = client
	}
	key, err := secrets.SigningKey(ctx, cfg.Auth, fetcher)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	tokens, err := auth.NewTokenManager(key, clk, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	svc, err := auth.NewService(ctx, users, pooled, tokens, auth.DefaultPolicy(), logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	app, err := api.NewApi(*cfg, api.Dependencies{
		Auth:    svc,
		Cookies: auth.NewCookieWriter(cfg.CookieSecure(), clk),
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return app, cleanup, nil
}

// openUserStore returns the user store for the configured driver, migrating
// SQL databases to the latest schema first.
func openUserStore(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (store.UserStore, func(), error) {
	if cfg.Driver == "memory" {
		slog.Warn("using in-memory user store; accounts are lost on restart")
		return store.NewMemoryStore(clk), func() {}, nil
	}

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, nil, oops.Code("DB_CONNECT_FAILED").With("driver", cfg.Driver).Wrap(err)
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}

	if err := database.RunMigrations(ctx, db, cfg.Driver); err != nil {
		cleanup()
		return nil, nil, oops.Code("MIGRATION_FAILED").With("driver", cfg.Driver).Wrap(err)
	}

	users, err := store.New(db, cfg.Driver, clk)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return users, cleanup, nil
}
