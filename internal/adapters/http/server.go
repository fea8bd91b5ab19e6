package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aretw0/lockstep/pkg/domain"
)

// StateReader exposes the shared test state of a run.
type StateReader interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

// Server serves the live status of one harness run.
type Server struct {
	State   StateReader
	RunID   string
	Metrics http.Handler
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	RunID      string                    `json:"run_id"`
	Failure    domain.FailureCode        `json:"failure"`
	Milestones map[domain.Milestone]bool `json:"milestones"`
}

// NewHandler creates the status router. A nil metrics handler disables /metrics.
func NewHandler(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.Health)
	r.Get("/status", s.Status)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}
	return r
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status handles GET /status.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	snap, err := s.State.Snapshot(r.Context())
	if err != nil {
		http.Error(w, "failed to read shared state: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		RunID:      s.RunID,
		Failure:    snap.Failure,
		Milestones: snap.Milestones,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve listens on addr until ctx is done, then shuts the server down.
// It returns once the listener is closed. ready, when non-nil, receives the bound address.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if ready != nil {
		ready(ln.Addr())
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("status server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
