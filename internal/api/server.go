// Package api serves the job-control HTTP API.
package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/eargollo/orgest/internal/api/handlers"
	"github.com/eargollo/orgest/internal/config"
	"github.com/eargollo/orgest/internal/job"
	"github.com/eargollo/orgest/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

// Server holds the HTTP server and all handler dependencies.
type Server struct {
	addr string
	srv  *http.Server
	log  *slog.Logger
}

// New wires all routes and returns a Server ready to Run. Jobs started
// over HTTP live as long as ctx.
func New(ctx context.Context, addr string, db *sql.DB, cfg *config.Config, mgr *job.Manager, sched *scheduler.Scheduler, version string, log *slog.Logger) *Server {
	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: Router(ctx, db, cfg, mgr, sched, version), ReadHeaderTimeout: 10 * time.Second},
		log:  log,
	}
}

// Router builds the chi router on its own so tests can drive it with
// httptest.
func Router(ctx context.Context, db *sql.DB, cfg *config.Config, mgr *job.Manager, sched *scheduler.Scheduler, version string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	statusH := &handlers.StatusHandler{DB: db, Manager: mgr, Sched: sched, Version: version}
	jobsH := &handlers.JobsHandler{DB: db, Manager: mgr, Cfg: cfg, BaseCtx: ctx}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", statusH.ServeHTTP)

		r.Post("/jobs", jobsH.Create)
		r.Get("/jobs", jobsH.List)
		r.Delete("/jobs/current", jobsH.Cancel)
		r.Get("/jobs/{id}", jobsH.Get)
	})
	return r
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
