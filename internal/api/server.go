// Package api provides the HTTP control surface for the reading log:
// library and session operations, book statistics, and the manual sync
// trigger.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/readingpal/readingpal/internal/http/response"
	"github.com/readingpal/readingpal/internal/service"
	"github.com/readingpal/readingpal/internal/sync"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	library   *service.LibraryService
	stats     *service.StatsService
	scheduler *sync.Scheduler
	engine    *sync.Engine
	router    *chi.Mux
	logger    *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(library *service.LibraryService, stats *service.StatsService, scheduler *sync.Scheduler, engine *sync.Engine, logger *slog.Logger) *Server {
	s := &Server{
		library:   library,
		stats:     stats,
		scheduler: scheduler,
		engine:    engine,
		router:    chi.NewRouter(),
		logger:    logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/books", func(r chi.Router) {
			r.Get("/", s.handleListBooks)
			r.Post("/", s.handleAddBook)
			r.Put("/order", s.handleReorderBooks)

			r.Route("/{title}", func(r chi.Router) {
				r.Delete("/", s.handleRemoveBook)
				r.Get("/stats", s.handleBookStats)
				r.Post("/finished", s.handleMarkFinished)
				r.Delete("/finished", s.handleReopen)
				r.Get("/sessions", s.handleListSessions)
				r.Post("/sessions", s.handleAddSession)
				r.Delete("/sessions/{index}", s.handleRemoveSession)
			})
		})

		r.Patch("/sessions/{id}/summary", s.handleUpdateSummary)

		r.Post("/sync", s.handleSyncNow)
		r.Get("/sync/status", s.handleSyncStatus)
	})
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{"status": "ok"}, s.logger)
}
