package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/btcbasis/internal/server"
	"github.com/alanyoungcy/btcbasis/internal/server/handler"
	"github.com/alanyoungcy/btcbasis/internal/server/ws"
	"github.com/alanyoungcy/btcbasis/internal/throttle"
)

const shutdownTimeout = 10 * time.Second

// Serve runs the HTTP API and the websocket hub until ctx is cancelled or
// either of them fails.
func (a *App) Serve(ctx context.Context) error {
	svcs, err := a.Services(ctx)
	if err != nil {
		return err
	}
	deps := a.deps

	a.logger.InfoContext(ctx, "app: starting server",
		slog.Int("port", a.cfg.Server.Port),
		slog.Bool("auth", a.cfg.Server.APIKey != ""),
		slog.Bool("exports", svcs.Archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.SignalBus, originChecker(a.cfg.Server.CORSOrigins), a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Checks, a.logger),
		CostBasis: handler.NewCostBasisHandler(svcs.Engine, svcs.Gains, a.logger),
		Rates:     handler.NewRatesHandler(svcs.Rates, a.logger),
		Events:    handler.NewEventsHandler(deps.SignalBus, a.logger),
	}
	if svcs.Archiver != nil {
		handlers.Exports = handler.NewExportsHandler(svcs.Archiver, a.logger)
	}

	srvCfg := server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}
	if a.cfg.Server.RequestsPerSecond > 0 {
		srvCfg.Limiter = throttle.NewClientLimiter(a.cfg.Server.RequestsPerSecond, a.cfg.Server.Burst)
	}
	srv := server.NewServer(srvCfg, handlers, hub, a.logger)

	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// originChecker accepts websocket upgrades from the configured CORS origins,
// and from anywhere when the list is empty or contains "*".
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return nil
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
