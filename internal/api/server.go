// Package api serves the local status endpoint: a loopback HTTP listener
// exposing connection state, session summary, prometheus metrics, and the
// TLS diagnostics report. It is operator tooling, not a public surface.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"chatlink/internal/config"
	"chatlink/internal/conn"
	"chatlink/internal/logging"
	"chatlink/internal/session"
	"chatlink/internal/tlsdiag"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ConnState exposes the orchestrator's current state. *conn.Orchestrator
// satisfies this.
type ConnState interface {
	State() conn.State
}

// SessionState exposes the current session snapshot. *session.Manager
// satisfies this.
type SessionState interface {
	Current() session.State
}

type Server struct {
	conn     ConnState
	sessions SessionState
	cfg      *config.Config
	reg      *prometheus.Registry
	log      logging.Logger
}

func NewServer(cs ConnState, ss SessionState, cfg *config.Config, reg *prometheus.Registry, log logging.Logger) *Server {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Server{conn: cs, sessions: ss, cfg: cfg, reg: reg, log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", s.handleStatus)
	r.Get("/tls/report", s.handleTLSReport)
	if s.reg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	}
	return r
}

// Serve blocks until ctx is cancelled, then shuts the listener down.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info(ctx, "status api listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type statusResponse struct {
	Connection  string         `json:"connection"`
	Environment string         `json:"environment"`
	Session     sessionSummary `json:"session"`
	Heartbeat   string         `json:"heartbeatInterval"`
}

type sessionSummary struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	ExpiresAt     string `json:"expiresAt,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.sessions.Current()
	summary := sessionSummary{Authenticated: st.Authenticated}
	if st.Authenticated {
		summary.Username = st.User.Username
		summary.ExpiresAt = st.ExpiresAt.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Connection:  s.conn.State().String(),
		Environment: s.cfg.Environment,
		Session:     summary,
		Heartbeat:   s.cfg.HeartbeatInterval.String(),
	})
}

func (s *Server) handleTLSReport(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	if host == "" {
		http.Error(w, "missing host parameter", http.StatusBadRequest)
		return
	}
	addr := r.URL.Query().Get("addr")
	if addr == "" {
		addr = net.JoinHostPort(host, "443")
	}

	report, err := tlsdiag.Probe(addr, host)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
