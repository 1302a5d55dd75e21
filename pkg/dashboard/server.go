// Package dashboard serves a read-only HTTP view of lock and drift state.
// It never mutates the workspace; every request recomputes from disk.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"phasegate/pkg/drift"
	"phasegate/pkg/lock"
	"phasegate/pkg/logx"
	"phasegate/pkg/phase"
)

// PhaseStatus is one phase's row in the status response.
type PhaseStatus struct {
	Phase  int          `json:"phase"`
	Name   string       `json:"name"`
	Active bool         `json:"active"`
	Lock   *lock.Lock   `json:"lock,omitempty"`
	Drift  drift.Result `json:"drift"`
}

// StatusResponse is the payload of GET /status.
type StatusResponse struct {
	Wave        int           `json:"wave"`
	Phases      []PhaseStatus `json:"phases"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Server is the status HTTP server.
type Server struct {
	graph    *phase.Graph
	store    *lock.Store
	detector *drift.Detector
	logger   *logx.Logger
	httpSrv  *http.Server
}

// NewServer creates a status server over the given stores.
func NewServer(graph *phase.Graph, store *lock.Store, detector *drift.Detector) *Server {
	return &Server{
		graph:    graph,
		store:    store,
		detector: detector,
		logger:   logx.NewLogger("dashboard"),
	}
}

// Handler returns the HTTP handler, exported for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/logs", s.handleLogs)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start begins serving on addr in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("status server listening on %s", ln.Addr())
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server failed: %v", err)
		}
	}()
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	wave := 1
	if raw := r.URL.Query().Get("wave"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid wave parameter", http.StatusBadRequest)
			return
		}
		wave = n
	}

	resp := StatusResponse{Wave: wave, GeneratedAt: time.Now().UTC()}
	locks := s.store.List(wave)
	for _, ph := range s.graph.Phases() {
		row := PhaseStatus{
			Phase:  int(ph),
			Name:   ph.String(),
			Active: s.graph.IsActive(ph),
			Lock:   locks[ph],
		}
		verdict, err := s.detector.Check(wave, ph)
		if err != nil {
			// A corrupt lock is reported, not hidden.
			verdict = drift.Result("ERROR")
		}
		row.Drift = verdict
		resp.Phases = append(resp.Phases, row)
	}

	writeJSON(w, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleLogs exposes the recent in-memory log entries, optionally filtered
// by debug domain.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logx.RecentEntries(r.URL.Query().Get("domain")))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
