package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
	"github.com/hochfrequenz/ci-heal-orchestrator/internal/registry"
)

// AnalyzeRequest starts a healing run
type AnalyzeRequest struct {
	RepoURL    string `json:"repo_url"`
	TeamName   string `json:"team_name"`
	LeaderName string `json:"leader_name"`
}

// AnalyzeResponse acknowledges a started run
type AnalyzeResponse struct {
	RunID      string `json:"run_id"`
	Message    string `json:"message"`
	BranchName string `json:"branch_name"`
}

// RunResponse is the poll payload for one run
type RunResponse struct {
	RunID      string               `json:"run_id"`
	Status     string               `json:"status"`
	BranchName string               `json:"branch_name"`
	RepoURL    string               `json:"repo_url"`
	TeamName   string               `json:"team_name"`
	LeaderName string               `json:"leader_name"`
	StartedAt  string               `json:"started_at"`
	Live       *domain.LiveSnapshot `json:"live"`
	Result     *domain.Result       `json:"result"`
	Error      string               `json:"error,omitempty"`
}

// ConfigResponse reports which credentials are configured, masking the
// values themselves.
type ConfigResponse struct {
	GitHubPATSet bool   `json:"github_pat_set"`
	LLMAPIKeySet bool   `json:"llm_api_key_set"`
	LLMModel     string `json:"llm_model"`
}

func runToResponse(run *domain.Run) RunResponse {
	st := run.State()
	resp := RunResponse{
		RunID:      run.ID,
		Status:     string(st.Status),
		BranchName: run.BranchName,
		RepoURL:    run.RepoURL,
		TeamName:   run.TeamName,
		LeaderName: run.LeaderName,
		StartedAt:  run.StartedAt.Format(time.RFC3339),
		Result:     st.Result,
		Error:      st.Error,
	}
	if run.Live != nil {
		snap := run.Live.Snapshot()
		resp.Live = &snap
	}
	return resp
}

func (s *Server) analyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if !strings.HasPrefix(req.RepoURL, "http") {
			writeError(w, http.StatusBadRequest, "repo_url must be a valid HTTP/HTTPS URL")
			return
		}

		run := &domain.Run{
			ID:         uuid.NewString(),
			RepoURL:    req.RepoURL,
			TeamName:   req.TeamName,
			LeaderName: req.LeaderName,
			BranchName: domain.DeriveBranchName(req.TeamName, req.LeaderName),
			Status:     domain.RunQueued,
			StartedAt:  time.Now().UTC(),
			Live:       domain.NewLiveStatus(),
		}
		s.registry.Add(run)

		log.Printf("[api] starting run %s for %s", run.ID, run.RepoURL)
		go s.pipeline.Execute(context.Background(), run)

		writeJSON(w, AnalyzeResponse{
			RunID:      run.ID,
			Message:    "Pipeline started",
			BranchName: run.BranchName,
		})
	}
}

func (s *Server) resultsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		runID := strings.TrimPrefix(r.URL.Path, "/api/results/")
		if runID == "" || strings.Contains(runID, "/") {
			writeError(w, http.StatusBadRequest, "run ID required")
			return
		}

		run, err := s.registry.Get(runID)
		if err == registry.ErrNotFound {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, runToResponse(run))
	}
}

func (s *Server) configHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		writeJSON(w, ConfigResponse{
			GitHubPATSet: s.cfg.Git.PAT != "",
			LLMAPIKeySet: s.cfg.LLM.APIKey != "",
			LLMModel:     s.cfg.LLM.Model,
		})
	}
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}
