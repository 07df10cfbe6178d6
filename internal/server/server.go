// Package server wires the HTTP surface: REST API, websocket streams, and
// the health endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	v1 "github.com/foremanhq/foreman/internal/api/v1"
	"github.com/foremanhq/foreman/internal/api/ws"
	"github.com/foremanhq/foreman/internal/auth"
	"github.com/foremanhq/foreman/internal/config"
	"github.com/foremanhq/foreman/internal/store/postgres"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Store        *postgres.Store
	Hub          *ws.Hub
	Orchestrator v1.SessionOrchestrator
	Keychain     *auth.Keychain
	Tickets      *auth.TicketService
}

// Server is the Foreman HTTP server.
type Server struct {
	cfg  *config.Config
	http *http.Server
}

// New builds the router and returns a Server ready to Start. The context
// bounds background middleware goroutines (rate limiter cleanup).
func New(ctx context.Context, cfg *config.Config, deps Deps) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	r.Get("/healthz", healthHandler(deps.Store))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewareRateLimit(ctx, cfg))
		r.Use(middlewareAPIKey(deps.Keychain))

		humaCfg := huma.DefaultConfig("Foreman API", "1.0.0")
		humaCfg.Servers = []*huma.Server{{URL: "/api/v1"}}
		api := humachi.New(r, humaCfg)

		registerAPIRoutes(api, deps)
	})

	// Websocket endpoints live outside the API-key group: browsers cannot set
	// headers on the upgrade request. Session streams are gated by a
	// short-lived ticket instead.
	r.Route("/ws", func(r chi.Router) {
		registerWSRoutes(r, deps.Hub)
	})

	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      r,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	log.Info().Str("addr", s.cfg.Server.Addr).Msg("server: listening")

	err := s.http.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Server.Start: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("server.Server.Shutdown: %w", err)
	}
	return nil
}

func healthHandler(store *postgres.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			log.Error().Err(err).Msg("server: health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
