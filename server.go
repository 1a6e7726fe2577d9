// Operational HTTP surface: status, health, metrics, and per-component
// restart. The server is itself a managed component, typically registered
// last so it only comes up once everything it reports on is running.
package conductor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server exposes the orchestrator's operational endpoints over HTTP.
type Server struct {
	addr   string
	orch   *Orchestrator
	logger Logger

	router chi.Router
	srv    *http.Server
}

// NewServer creates the operational HTTP server listening on addr.
func NewServer(addr string, orch *Orchestrator, logger Logger) *Server {
	s := &Server{
		addr:   addr,
		orch:   orch,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/status", s.handleStatus)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handleMetrics)
	r.Post("/components/{name}/restart", s.handleRestart)
	s.router = r

	return s
}

// Router returns the underlying router, mainly for tests and for mounting
// the operational endpoints under a larger mux.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start implements Component.
func (s *Server) Start(_ context.Context) error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// Surface immediate bind failures to the start hook instead of
	// reporting a running server that never listened.
	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
	}

	s.logger.Info("Operational HTTP server listening", "addr", s.addr)
	return nil
}

// Stop implements Component.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.orch.Status(r.Context()))
}

// handleHealthz reports the monitor's latest cycle. It is read-only: probes
// are run only by the scheduled monitor, never by a query. Before the first
// cycle completes the report is optimistically healthy.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	summary, ok := s.orch.Health().LastSummary()
	if !ok {
		summary = HealthSummary{Score: 100}
	}

	code := http.StatusOK
	if summary.Unhealthy > 0 {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, summary)
}

// handleMetrics reports the collector's latest cycle, empty before the
// first one completes. Read-only like handleHealthz.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	snapshot, _ := s.orch.Metrics().LastSnapshot()
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.orch.RestartComponent(name); err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrComponentNotFound):
			code = http.StatusNotFound
		case errors.Is(err, ErrSystemBusy):
			code = http.StatusConflict
		case errors.Is(err, ErrSystemNotRunning):
			code = http.StatusConflict
		}
		s.writeJSON(w, code, map[string]string{"error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"component": name, "status": string(StatusRunning)})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}
