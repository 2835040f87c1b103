// Package server wires the HTTP surface: chi router, middleware, handlers
// and the graceful shutdown ordering across HTTP, ingest, roster and the
// database.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/GustavPetterssonBjorklund/Statix/internal/config"
	"github.com/GustavPetterssonBjorklund/Statix/internal/db/bunx"
	"github.com/GustavPetterssonBjorklund/Statix/internal/identity"
	"github.com/GustavPetterssonBjorklund/Statix/internal/ingest"
	"github.com/GustavPetterssonBjorklund/Statix/internal/logging"
	"github.com/GustavPetterssonBjorklund/Statix/internal/metrics"
	"github.com/GustavPetterssonBjorklund/Statix/internal/nodeauth"
	"github.com/GustavPetterssonBjorklund/Statix/internal/repository"
	"github.com/GustavPetterssonBjorklund/Statix/internal/roster"
)

// Dependencies collects everything the router serves from.
type Dependencies struct {
	DB       *bun.DB
	Identity *identity.Service
	NodeAuth *nodeauth.Service
	Nodes    repository.NodeRepository
	Metrics  repository.MetricRepository
	Hub      *roster.Hub
	Ingestor *ingest.Ingestor
	Config   *config.Config
}

// Server owns the HTTP listener and the shutdown ordering.
type Server struct {
	deps Dependencies
	http *http.Server
	log  zerolog.Logger
}

// New builds the server around the given dependencies.
func New(deps Dependencies) *Server {
	return &Server{
		deps: deps,
		log:  logging.WithComponent("server"),
	}
}

// Router assembles the chi router per the HTTP surface contract.
func (s *Server) Router() chi.Router {
	d := s.deps
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(s.log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public surface.
	r.Get("/health", HandleHealth())
	r.Get("/db/health", HandleDBHealth(d.DB))
	r.Method("GET", "/metrics", metrics.Handler())
	r.Get("/auth/bootstrap/status", HandleBootstrapStatus(d.Identity))
	r.Post("/auth/bootstrap/claim", HandleBootstrapClaim(d.Identity))
	r.Post("/auth/login", HandleLogin(d.Identity))
	r.Post("/auth/set-password", HandleSetPassword(d.Identity))
	r.Post("/nodes/auth/exchange", HandleNodeExchange(d.NodeAuth))
	r.Get("/ws/nodes", roster.Handler(d.Hub, d.Config.CORSOrigins))

	// Bearer-authenticated surface.
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(d.Identity))

		r.Get("/auth/me", HandleMe())
		r.Post("/auth/logout", HandleLogout(d.Identity))

		r.Get("/nodes", HandleListNodes(d.Nodes))
		r.Get("/nodes/{nodeID}/metrics", HandleNodeMetrics(d.Nodes, d.Metrics))
		r.Post("/nodes/create", HandleCreateNode(d.NodeAuth))
		r.Delete("/nodes/{nodeID}", HandleDeleteNode(d.NodeAuth))
		r.Patch("/nodes/{nodeID}", HandleRenameNode(d.Nodes))

		// Admin-only identity administration.
		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Post("/auth/users", HandleCreateUser(d.Identity))
			r.Get("/auth/users", HandleListUsers(d.Identity))
			r.Post("/auth/users/{userID}/roles", HandleReplaceUserRoles(d.Identity))
			r.Get("/auth/roles", HandleListRoles(d.Identity))
			r.Post("/auth/roles", HandleCreateRole(d.Identity))
			r.Post("/auth/roles/{roleName}/permissions", HandleSetRolePermissions(d.Identity))
			r.Get("/auth/permissions", HandleListPermissions(d.Identity))
		})
	})

	return r
}

// Start binds the listener and serves until Shutdown.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              s.deps.Config.ServerAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info().Str("addr", s.deps.Config.ServerAddr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in dependency order: stop accepting HTTP, revoke the
// ingest subscription, close roster sockets, then close the database.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error

	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("http shutdown: %w", err)
		}
	}
	if s.deps.Ingestor != nil {
		s.deps.Ingestor.Stop()
	}
	if s.deps.Hub != nil {
		if err := s.deps.Hub.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("roster shutdown: %w", err)
		}
	}
	if s.deps.DB != nil {
		if err := bunx.Close(s.deps.DB); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("db close: %w", err)
		}
	}

	s.log.Info().Msg("server stopped")
	return firstErr
}
