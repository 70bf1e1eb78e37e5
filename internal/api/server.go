package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
	"github.com/ghost-forensics/ghost/internal/pipeline"
	"github.com/ghost-forensics/ghost/internal/rules"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP front door for GHOST. It owns the router, the
// handler wiring, and the listener lifecycle.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer wires the handler into a chi router with the full
// middleware stack. The case header requirement applies only to the
// case-scoped route group; health probes stay open.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, catalog *rules.Catalog, p *pipeline.Pipeline, version string) *Server {
	s := &Server{
		handler: NewHandler(repo, cache, bus, catalog, p, version),
		config:  cfg,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(CORSMiddleware)
	r.Use(RecoverMiddleware)
	r.Use(TracingMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))

	// Liveness and readiness probes carry no case context.
	r.Get("/health", s.handler.Health)
	r.Get("/ready", s.handler.Ready)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handler.Health)

		r.Group(func(r chi.Router) {
			r.Use(CaseMiddleware)

			r.Post("/analyze", s.handler.Analyze)

			r.Get("/runs", s.handler.ListRuns)
			r.Get("/runs/{id}", s.handler.GetRun)
			r.Get("/runs/{id}/summary", s.handler.GetRunSummary)
			r.Get("/runs/{id}/alerts", s.handler.GetRunAlerts)
			r.Get("/runs/{id}/links", s.handler.GetRunLinks)

			r.Get("/modules", s.handler.ListModules)
			r.Get("/modules/{name}", s.handler.GetModule)
			r.Put("/modules/{name}", s.handler.UpdateModule)
			r.Delete("/modules/{name}", s.handler.DeleteModule)
			r.Post("/modules/reload", s.handler.ReloadModules)
		})
	})

	return r
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the mux so tests can drive it with httptest.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() *Handler {
	return s.handler
}
