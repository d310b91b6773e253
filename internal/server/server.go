// Package server exposes the cost-basis engine and rate service over HTTP and
// a websocket event stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/btcbasis/internal/server/handler"
	"github.com/alanyoungcy/btcbasis/internal/server/middleware"
	"github.com/alanyoungcy/btcbasis/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// Limiter throttles requests per client IP; nil disables it.
	Limiter middleware.Limiter
}

// Handlers aggregates the HTTP handlers the server registers. Exports may be
// nil when object storage is not configured.
type Handlers struct {
	Health    *handler.HealthHandler
	CostBasis *handler.CostBasisHandler
	Rates     *handler.RatesHandler
	Events    *handler.EventsHandler
	Exports   *handler.ExportsHandler
}

// Server is the HTTP + websocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in CORS, logging, rate
// limiting and auth, outermost first.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewHandler(cfg, h, hub, logger),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Cold rate lookups wait on the provider gate.
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed and wrapped http.Handler.
func NewHandler(cfg Config, h Handlers, hub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("GET /api/tenants/{tenant}/disposals/{id}/cost-basis", h.CostBasis.Preview)
	mux.HandleFunc("POST /api/tenants/{tenant}/disposals/{id}/allocations", h.CostBasis.Commit)
	mux.HandleFunc("GET /api/tenants/{tenant}/disposals/{id}/allocations", h.CostBasis.ListAllocations)
	mux.HandleFunc("GET /api/tenants/{tenant}/disposals/{id}/gain", h.CostBasis.Gain)

	mux.HandleFunc("GET /api/rates/{date}", h.Rates.GetRate)
	mux.HandleFunc("POST /api/rates/batch", h.Rates.Batch)

	mux.HandleFunc("GET /api/events/allocations", h.Events.Allocations)

	if h.Exports != nil {
		mux.HandleFunc("POST /api/tenants/{tenant}/exports", h.Exports.Export)
		mux.HandleFunc("GET /api/tenants/{tenant}/exports", h.Exports.List)
	}

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var handler http.Handler = mux
	handler = middleware.Auth(cfg.APIKey, "/api/health")(handler)
	handler = middleware.RateLimit(cfg.Limiter)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.CORS(cfg.CORSOrigins)(handler)
	return handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
