// Package api provides the HTTP server and request handlers.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/churnistic/churnistic/internal/banks"
	"github.com/churnistic/churnistic/internal/cards"
	"github.com/churnistic/churnistic/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, cardSvc *cards.Service, bankSvc *banks.Service, repo domain.Repository, cache domain.Cache, bus domain.EventBus, rateLimit int, version string) *Server {
	handler := NewHandler(cardSvc, bankSvc, repo, cache, bus, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no user required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (user required)
	router.Route("/", func(r chi.Router) {
		r.Use(AuthMiddleware)
		r.Use(RateLimitMiddleware(cache, rateLimit))

		// Eligibility checking
		r.Post("/eligibility/check", handler.CheckEligibility)

		// Application lifecycle
		r.Post("/applications", handler.ApplyForCard)
		r.Get("/applications", handler.ListApplications)
		r.Get("/applications/{id}", handler.GetApplication)
		r.Patch("/applications/{id}/status", handler.UpdateApplicationStatus)
		r.Post("/applications/{id}/spend", handler.UpdateSpend)
		r.Post("/applications/{id}/retention-offers", handler.AddRetentionOffer)
		r.Get("/applications/{id}/retention-offers", handler.ListRetentionOffers)

		// Card catalog
		r.Get("/cards", handler.ListCards)
		r.Get("/cards/{id}", handler.GetCard)
		r.Post("/cards", handler.CreateCard)

		// Bank catalog
		r.Get("/banks", handler.ListBanks)
		r.Get("/banks/{id}", handler.GetBank)
		r.Post("/banks", handler.CreateBank)
		r.Put("/banks/{id}", handler.UpdateBank)
		r.Delete("/banks/{id}", handler.DeleteBank)

		// Bank accounts and bonus tracking
		r.Post("/accounts", handler.OpenAccount)
		r.Get("/accounts", handler.ListAccounts)
		r.Get("/accounts/{id}", handler.GetAccount)
		r.Post("/accounts/{id}/deposits", handler.AddDirectDeposit)
		r.Post("/accounts/{id}/debits", handler.AddDebitTransaction)
		r.Get("/accounts/{id}/bonus-progress", handler.GetBonusProgress)

		// Custom rule management
		r.Get("/rules", handler.ListRules)
		r.Post("/rules", handler.CreateRule)
		r.Delete("/rules/{id}", handler.DeleteRule)
		r.Post("/rules/reload", handler.ReloadRules)
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
