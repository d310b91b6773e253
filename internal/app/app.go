// Package app provides the top-level application lifecycle for btcbasis. It
// wires together stores, caches, blob storage, market-data clients,
// notifications and services, and runs either the long-lived API server or a
// single command against them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/btcbasis/internal/config"
	"github.com/alanyoungcy/btcbasis/internal/store/postgres"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	deps    *Dependencies
	svcs    *Services
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Services wires dependencies on first use and returns the application
// services. Later calls return the same instances.
func (a *App) Services(ctx context.Context) (*Services, error) {
	if a.svcs != nil {
		return a.svcs, nil
	}

	a.logger.InfoContext(ctx, "app: wiring dependencies",
		slog.String("store", a.cfg.Store),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("s3", a.cfg.S3.Enabled),
	)
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	a.deps = deps
	a.svcs = BuildServices(a.cfg, deps, a.logger)
	return a.svcs, nil
}

// Migrate applies pending database migrations and returns the applied file
// names. It connects on its own so that it works with run_migrations off.
func (a *App) Migrate(ctx context.Context) ([]string, error) {
	if !strings.EqualFold(a.cfg.Store, "postgres") {
		return nil, fmt.Errorf("app: migrate requires store = \"postgres\", got %q", a.cfg.Store)
	}
	pg, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      a.cfg.Database.DSN,
		Host:     a.cfg.Database.Host,
		Port:     a.cfg.Database.Port,
		Database: a.cfg.Database.Database,
		User:     a.cfg.Database.User,
		Password: a.cfg.Database.Password,
		SSLMode:  a.cfg.Database.SSLMode,
		MaxConns: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("app: migrate: %w", err)
	}
	defer pg.Close()

	applied, err := pg.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: migrate: %w", err)
	}
	a.logger.InfoContext(ctx, "app: migrations applied", slog.Int("count", len(applied)))
	return applied, nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	if len(a.closers) == 0 {
		return
	}
	a.logger.Info("app: shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
