package api

import "github.com/mattjoyce/tickroute/internal/route"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	TimerState    string `json:"timer_state"`
	Calls         int64  `json:"calls"`
	RunID         string `json:"run_id,omitempty"`
	ConfigHash    string `json:"config_hash,omitempty"`
}

// TimerResponse describes the timer in GET /status.
type TimerResponse struct {
	State    string `json:"state"`
	PeriodMS int64  `json:"period_ms"`
	Fired    int64  `json:"fired"`
	Failed   int64  `json:"failed"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Timer TimerResponse  `json:"timer"`
	Route route.Snapshot `json:"route"`
	// EventsDropped counts hub deliveries skipped for slow /events clients.
	EventsDropped int64 `json:"events_dropped"`
}
