// Package server exposes the read API, the admin endpoints, and the
// Prometheus scrape target over a single HTTP listener.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jiliangzhu/MarketPulse-X/internal/server/handler"
	"github.com/jiliangzhu/MarketPulse-X/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// AdminToken guards the mutating endpoints (rule upload, intent
	// creation and confirmation). Read endpoints need no token.
	AdminToken string
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Markets *handler.MarketHandler
	Signals *handler.SignalHandler
	Rules   *handler.RuleHandler
	Intents *handler.IntentHandler
	KPIs    *handler.KPIHandler
	Audit   *handler.AuditHandler
	// Metrics serves the Prometheus registry at /metrics.
	Metrics http.Handler
}

// Server is the headless HTTP API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS) and per-route admin auth.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	admin := middleware.Auth(cfg.AdminToken)

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market endpoints.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)

	// Signal endpoints.
	mux.HandleFunc("GET /api/signals", handlers.Signals.ListSignals)
	mux.HandleFunc("GET /api/signals/{id}", handlers.Signals.GetSignal)

	// Rule endpoints. Upload mutates the rule set, so it is admin-only.
	mux.HandleFunc("GET /api/rules", handlers.Rules.ListRules)
	mux.Handle("POST /api/rules", admin(http.HandlerFunc(handlers.Rules.UploadRule)))

	// Order intent endpoints.
	mux.HandleFunc("GET /api/intents", handlers.Intents.ListIntents)
	mux.Handle("POST /api/intents", admin(http.HandlerFunc(handlers.Intents.CreateIntent)))
	mux.Handle("POST /api/intents/{id}/confirm", admin(http.HandlerFunc(handlers.Intents.ConfirmIntent)))

	// Reporting endpoints.
	mux.HandleFunc("GET /api/kpis", handlers.KPIs.ListKPIs)
	mux.Handle("GET /api/audit", admin(http.HandlerFunc(handlers.Audit.ListAudit)))

	// Prometheus scrape target.
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
