// Package api exposes the workflow engine's HTTP surface to the
// dashboard and to external cron triggers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/feedforge/feedforge/internal/config"
	"github.com/feedforge/feedforge/internal/core"
	"github.com/feedforge/feedforge/internal/logging"
	"github.com/feedforge/feedforge/internal/service"
)

// Workflow is the orchestrator surface the handlers depend on.
type Workflow interface {
	Trigger(ctx context.Context, req service.TriggerRequest) (*service.TriggerResult, error)
	Status(ctx context.Context, limit int) (*service.StatusReport, error)
}

// StuckRuns is the reaper surface the handlers depend on.
type StuckRuns interface {
	ListStuck(ctx context.Context, olderThan time.Duration) ([]*core.Run, error)
	Sweep(ctx context.Context) ([]core.RunID, error)
	Clear(ctx context.Context, id core.RunID) error
}

// SchedulerState is the scheduler surface the handlers depend on.
type SchedulerState interface {
	Status(ctx context.Context) (*service.SchedulerStatus, error)
}

// Server hosts the engine's REST endpoints.
type Server struct {
	router    chi.Router
	workflow  Workflow
	stuck     StuckRuns
	scheduler SchedulerState
	cfg       *config.Watcher
	logger    *logging.Logger
	startedAt time.Time
}

// NewServer creates an API server.
func NewServer(workflow Workflow, stuck StuckRuns, scheduler SchedulerState, cfg *config.Watcher, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		workflow:  workflow,
		stuck:     stuck,
		scheduler: scheduler,
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now().UTC(),
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.loggingMiddleware)

	// CORS for the dashboard frontend.
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)

	r.Route("/workflow", func(r chi.Router) {
		r.Post("/trigger", s.handleTrigger)
		r.Get("/status", s.handleStatus)
		r.Get("/stuck", s.handleListStuck)
		r.Post("/clear-stuck", s.handleClearStuck)
	})

	r.Get("/cron/daily-content", s.handleCronFire)

	r.Route("/scheduler", func(r chi.Router) {
		r.Get("/jobs", s.handleSchedulerJobs)
		r.Get("/status", s.handleSchedulerStatus)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
