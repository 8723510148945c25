// Package api exposes the fraud scoring engine over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openaudit/kestrel/internal/alert"
	"github.com/openaudit/kestrel/internal/domain"
	"github.com/openaudit/kestrel/internal/engine"
	"github.com/openaudit/kestrel/internal/explain"
	"github.com/openaudit/kestrel/internal/metrics"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(
	cfg *domain.Config,
	eng *engine.Engine,
	store domain.PredictionStore,
	index domain.PredictionIndex,
	audit domain.AuditLogger,
	cache domain.Cache,
	bus domain.EventBus,
	alerts *alert.Engine,
	alertRouter *alert.Router,
	gen *explain.Generator,
	logger *slog.Logger,
) *Server {
	handler := NewHandler(eng, store, index, audit, cache, bus, alerts, alertRouter, gen, cfg, logger)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Operational endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", metrics.Handler())

	// Scoring
	router.Post("/predict", handler.Predict)

	// Prediction retrieval and diagnostics
	router.Get("/predictions/{id}", handler.GetPrediction)
	router.Get("/vendors/{vendor}/history", handler.VendorHistory)
	router.Post("/profile/{id}", handler.Profile)

	// Alert policy management
	router.Get("/policies", handler.ListPolicies)
	router.Post("/policies", handler.CreatePolicy)
	router.Post("/policies/reload", handler.ReloadPolicies)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg.Server,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
