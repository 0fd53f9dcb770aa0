// Package api exposes the control surface of the orchestrator: run
// submission, result polling, and live status over SSE and websockets.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/config"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/registry"
)

// Pipeline executes one healing run to completion.
type Pipeline interface {
	Execute(ctx context.Context, run *domain.Run)
}

// Server is the HTTP API server
type Server struct {
	registry *registry.Registry
	pipeline Pipeline
	cfg      *config.Config
	addr     string
	mux      *http.ServeMux
	sseHub   *SSEHub
}

// NewServer creates a new API server
func NewServer(reg *registry.Registry, pipeline Pipeline, cfg *config.Config, addr string) *Server {
	s := &Server{
		registry: reg,
		pipeline: pipeline,
		cfg:      cfg,
		addr:     addr,
		mux:      http.NewServeMux(),
		sseHub:   NewSSEHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/analyze", s.analyzeHandler())
	s.mux.HandleFunc("/api/results/", s.resultsHandler())
	s.mux.HandleFunc("/api/runs/", s.runSocketHandler())
	s.mux.HandleFunc("/api/config", s.configHandler())
	s.mux.HandleFunc("/api/health", s.healthHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go s.sseHub.Run()
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler returns the route mux, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

// RunUpdated publishes a run's current state to live subscribers. It
// satisfies the orchestrator's event sink.
func (s *Server) RunUpdated(run *domain.Run) {
	s.sseHub.TryBroadcast(SSEEvent{Type: "run_update", Data: runToResponse(run)})
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
