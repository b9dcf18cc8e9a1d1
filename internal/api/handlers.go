package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mattjoyce/tickroute/internal/scheduler"
)

// handleHealthz handles GET /healthz (no auth).
// A timer that is no longer running reports "degraded".
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	state := s.timer.State()
	status := "ok"
	if state != scheduler.StateRunning {
		status = "degraded"
	}

	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		TimerState:    string(state),
		Calls:         s.route.Snapshot().Calls,
		RunID:         s.config.RunID,
		ConfigHash:    s.config.ConfigHash,
	})
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{
		Timer: TimerResponse{
			State:    string(s.timer.State()),
			PeriodMS: s.timer.Period().Milliseconds(),
			Fired:    s.timer.Fired(),
			Failed:   s.timer.Failed(),
		},
		Route:         s.route.Snapshot(),
		EventsDropped: s.events.Dropped(),
	})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
