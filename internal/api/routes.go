// Package api implements the read-only admin HTTP surface: health,
// per-queue summaries, and task introspection. Submission and control
// (pause/resume/retry/delete) happen through the CLI against the same
// on-disk queues, never through this server.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jobtrellis/jobtrellis/internal/api/handlers"
	apiMiddleware "github.com/jobtrellis/jobtrellis/internal/api/middleware"
	"github.com/jobtrellis/jobtrellis/internal/config"
	"github.com/jobtrellis/jobtrellis/internal/queue"
)

// Server is the admin HTTP server, fronting one or more named queues.
type Server struct {
	router       *chi.Mux
	config       *config.Config
	adminHandler *handlers.AdminHandler
}

// NewServer builds a Server over queues, keyed by queue name.
func NewServer(cfg *config.Config, queues map[string]*queue.Queue) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		config:       cfg,
		adminHandler: handlers.NewAdminHandler(queues),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apiMiddleware.RequestLogger())
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.adminHandler.HealthCheck)

	s.router.Route("/queues", func(r chi.Router) {
		r.Use(apiMiddleware.ClientRateLimit(100))
		r.Get("/", s.adminHandler.ListQueues)
		r.Get("/{name}/tasks", s.adminHandler.ListTasks)
		r.Get("/{name}/tasks/{taskID}", s.adminHandler.GetTask)
	})

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
