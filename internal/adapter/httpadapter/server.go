// Package httpadapter serves the service's operational endpoints: health,
// readiness, metrics and a read-only view of the import job queue.
package httpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes health, readiness, metrics and job status HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz and /metrics routes.
// When jobs is non-nil it also serves GET /jobs and GET /jobs/{id}.
func NewServer(addr string, ready sharedobs.ReadinessChecker, jobs JobReader, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if jobs != nil {
		mux.HandleFunc("GET /jobs", listJobs(jobs, logger))
		mux.HandleFunc("GET /jobs/{id}", getJob(jobs, logger))
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// Check is one named readiness dependency.
type Check struct {
	Name    string
	Checker sharedobs.ReadinessChecker
}

// Readiness is ready when every check passes; checks run in order and the
// first failure is reported.
type Readiness []Check

func (r Readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.Checker.CheckReadiness(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
	}
	return nil
}
