package watch

import (
	"encoding/json"
	"time"

	"github.com/mattjoyce/tickroute/internal/events"
)

// maxObservations bounds the table of recent observations.
const maxObservations = 20

// Observation is one route.observed event.
type Observation struct {
	Seq     int64
	Field   string
	Value   string
	Present bool
	At      time.Time
}

// RouteState is everything the watch view knows about the route, built from
// the event stream.
type RouteState struct {
	TimerState   string
	PeriodMS     int64
	Ticks        int64
	Failed       int64
	LastError    string
	LastTickAt   time.Time
	Observations []Observation // newest first

	lastID int64
}

// LastID is the newest hub event ID applied so far.
func (s *RouteState) LastID() int64 {
	return s.lastID
}

// Apply folds one event into the state. Unknown events are ignored, as are
// events at or below LastID, which a reconnecting stream may replay.
func (s *RouteState) Apply(e events.Event) {
	if e.ID != 0 {
		if e.ID <= s.lastID {
			return
		}
		s.lastID = e.ID
	}

	var data struct {
		PeriodMS int64  `json:"period_ms"`
		Seq      int64  `json:"seq"`
		Ticks    int64  `json:"ticks"`
		Failed   int64  `json:"failed"`
		Error    string `json:"error"`
		Field    string `json:"field"`
		Value    string `json:"value"`
		Present  bool   `json:"present"`
	}
	_ = json.Unmarshal(e.Data, &data)

	switch e.Type {
	case events.TimerStarted:
		s.TimerState = "running"
		s.PeriodMS = data.PeriodMS
	case events.TimerStopped:
		s.TimerState = "stopped"
		s.Ticks = data.Ticks
		s.Failed = data.Failed
	case events.TimerTick:
		s.TimerState = "running"
		if data.Seq > s.Ticks {
			s.Ticks = data.Seq
		}
		s.LastTickAt = e.At
	case events.TimerTickFailed:
		s.Failed++
		s.LastError = data.Error
	case events.RouteObserved:
		obs := Observation{
			Seq:     data.Seq,
			Field:   data.Field,
			Value:   data.Value,
			Present: data.Present,
			At:      e.At,
		}
		s.Observations = append([]Observation{obs}, s.Observations...)
		if len(s.Observations) > maxObservations {
			s.Observations = s.Observations[:maxObservations]
		}
	}
}

// Last returns the newest observation, if any.
func (s *RouteState) Last() (Observation, bool) {
	if len(s.Observations) == 0 {
		return Observation{}, false
	}
	return s.Observations[0], true
}
