package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/foremanhq/foreman/internal/api/v1"
	"github.com/foremanhq/foreman/internal/api/ws"
	"github.com/foremanhq/foreman/internal/auth"
	"github.com/foremanhq/foreman/internal/config"
	"github.com/foremanhq/foreman/internal/server/middleware"
)

func registerAPIRoutes(api huma.API, deps Deps) {
	v1.RegisterProjectRoutes(api, deps.Store)
	v1.RegisterTaskRoutes(api, deps.Store, deps.Hub)
	v1.RegisterSessionRoutes(api, deps.Store, deps.Orchestrator, deps.Tickets)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/sessions/{sessionID}", hub.ServeSession)
	r.Get("/board/{projectID}", hub.ServeBoard)
}

func middlewareRateLimit(ctx context.Context, cfg *config.Config) func(http.Handler) http.Handler {
	return middleware.RateLimitByIP(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
}

func middlewareAPIKey(keychain *auth.Keychain) func(http.Handler) http.Handler {
	return middleware.APIKeyAuth(keychain)
}
