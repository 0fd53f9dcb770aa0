package api

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/ci-heal-orchestrator/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The reporting front end runs on its own origin during development
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsPushInterval = time.Second

// runSocketHandler streams live-status snapshots for one run over a
// websocket at /api/runs/{run_id}/ws. The feed closes once the run
// reaches a terminal state and the final snapshot has been sent.
func (s *Server) runSocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		runID := strings.TrimSuffix(path, "/ws")
		if runID == "" || runID == path {
			writeError(w, http.StatusBadRequest, "expected /api/runs/{run_id}/ws")
			return
		}

		run, err := s.registry.Get(runID)
		if err != nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[api] websocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		// Discard client frames, but notice disconnects
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(wsPushInterval)
		defer ticker.Stop()

		for {
			if err := conn.WriteJSON(runToResponse(run)); err != nil {
				return
			}
			st := run.State()
			if st.Status == domain.RunCompleted || st.Status == domain.RunFailed {
				return
			}
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}
		}
	}
}
