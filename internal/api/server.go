package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/alerting"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, pipe *pipeline.Pipeline, rules *alerting.RuleEngine, version string) *Server {
	handler := NewHandler(repo, cache, bus, pipe, rules, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no actor required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (actor attribution required)
	router.Route("/", func(r chi.Router) {
		r.Use(ActorMiddleware)

		// CSV ingestion
		r.Post("/ingest", handler.Ingest)

		// Customer profiles
		r.Get("/customers", handler.ListCustomers)
		r.Get("/customers/{id}", handler.GetCustomer)
		r.Patch("/customers/{id}", handler.UpdateCustomer)
		r.Get("/customers/{id}/transactions", handler.GetCustomerTransactions)
		r.Get("/customers/{id}/explain", handler.ExplainCustomer)

		// Interventions
		r.Post("/customers/{id}/interventions", handler.TriggerInterventions)
		r.Get("/customers/{id}/interventions", handler.ListInterventions)
		r.Get("/interventions", handler.ListInterventions)
		r.Put("/interventions/{id}/status", handler.UpdateInterventionStatus)

		// Alerts
		r.Get("/alerts", handler.ListAlerts)
		r.Post("/alerts/{id}/read", handler.MarkAlertRead)
		r.Post("/alerts/clear", handler.ClearReadAlerts)

		// Scoring settings
		r.Get("/settings", handler.GetSettings)
		r.Put("/settings", handler.UpdateSettings)

		// Custom alert rule management
		r.Get("/rules", handler.ListRules)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)

		// Audit trail
		r.Get("/audit", handler.ListAuditLogs)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
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
