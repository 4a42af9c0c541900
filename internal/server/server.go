// Package server provides the HTTP server for the coordinator's admin API.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/helixsearch/indexcoord/internal/config"
	"github.com/helixsearch/indexcoord/internal/handler"
	"github.com/helixsearch/indexcoord/internal/health"
	"github.com/helixsearch/indexcoord/internal/middleware"
	"go.uber.org/zap"
)

// Server wraps the admin API's router and http.Server
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	handlers   *handler.Handlers
	health     *health.HealthChecker
	logger     *zap.Logger
}

// New creates the admin API server
func New(cfg *config.Config, handlers *handler.Handlers, healthChecker *health.HealthChecker, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	s := &Server{
		router:     router,
		httpServer: httpServer,
		handlers:   handlers,
		health:     healthChecker,
		logger:     logger,
	}
	s.setupRoutes(logger)
	return s
}

func (s *Server) setupRoutes(logger *zap.Logger) {
	rateLimiter := middleware.NewRateLimiter(50, 100, logger)
	chain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID,
		middleware.Logging(logger),
		rateLimiter.Limit,
	)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	s.router.HandleFunc("/health", s.health.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.health.ReadinessHandler).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()

	// Lifecycle triggers
	v1.HandleFunc("/tenants/{tenant_id}/reconnect", s.handlers.Reconnect).Methods(http.MethodPost)
	v1.HandleFunc("/tenants/{tenant_id}/sync", s.handlers.TriggerSync).Methods(http.MethodPost)
	v1.HandleFunc("/tenants/{tenant_id}", s.handlers.DeleteTenant).Methods(http.MethodDelete)

	// Status and inspection
	v1.HandleFunc("/tenants/{tenant_id}/locks", s.handlers.LockStatus).Methods(http.MethodGet)
	v1.HandleFunc("/tenants/{tenant_id}/queue", s.handlers.QueueStatus).Methods(http.MethodGet)
	v1.HandleFunc("/tenants/{tenant_id}/version", s.handlers.CurrentVersion).Methods(http.MethodGet)
	v1.HandleFunc("/admin/stats", s.handlers.Stats).Methods(http.MethodGet)
}

// Start begins serving; blocks until the listener fails or is closed
func (s *Server) Start() error {
	s.logger.Info("Starting admin API server", zap.String("address", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin API server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down admin API server")
	return s.httpServer.Shutdown(ctx)
}
