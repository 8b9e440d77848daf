package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Paintersrp/beatguard/internal/api"
	"github.com/Paintersrp/beatguard/internal/metrics"
)

const (
	statusPath  = "/api/v1/status"
	metricsPath = "/metrics"

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 2 * time.Second
	// statusTimeout bounds one status request; reading child stats walks
	// /proc and can stall on a wedged process.
	statusTimeout = 3 * time.Second
)

// Server serves the supervisor's status report and its Prometheus metrics.
type Server struct {
	status        api.Controller
	ln            net.Listener
	srv           *http.Server
	statusTimeout time.Duration
}

// Listen binds addr and returns a server reporting status from ctrl. Binding
// happens here so the caller can log the real address before serving.
func Listen(addr string, ctrl api.Controller) (*Server, error) {
	if ctrl == nil {
		return nil, errors.New("status server needs a controller")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind status server on %s: %w", addr, err)
	}
	return newServer(ln, ctrl), nil
}

func newServer(ln net.Listener, ctrl api.Controller) *Server {
	s := &Server{status: ctrl, ln: ln, statusTimeout: statusTimeout}
	mux := http.NewServeMux()
	mux.Handle(statusPath, getOnly(http.HandlerFunc(s.handleStatus)))
	mux.Handle(metricsPath, getOnly(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	return s
}

// Addr is the bound address, with the real port when ":0" was requested.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve handles requests until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	served := make(chan struct{})
	defer close(served)
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = s.srv.Shutdown(shutdownCtx)
		case <-served:
		}
	}()
	if err := s.srv.Serve(s.ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.statusTimeout)
	defer cancel()
	report, err := s.status.Status(ctx)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// getOnly answers anything but GET and HEAD with a JSON 405.
func getOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", http.MethodGet)
			writeJSON(w, http.StatusMethodNotAllowed, problem{
				Code:    "method_not_allowed",
				Message: fmt.Sprintf("%s %s is not supported, use GET", r.Method, r.URL.Path),
				Details: map[string]any{"path": r.URL.Path},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type problem struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func writeProblem(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, api.ErrNotStarted):
		// The child has not been spawned yet; clients should retry.
		status, code = http.StatusServiceUnavailable, "not_started"
		w.Header().Set("Retry-After", "1")
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "status_timeout"
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the body.
		status, code = 499, "client_closed"
	}
	writeJSON(w, status, problem{
		Code:    code,
		Message: err.Error(),
		Details: map[string]any{"path": r.URL.Path, "timestamp": time.Now().UTC()},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
