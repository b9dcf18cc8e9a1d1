// Package route wires the per-tick stages: a Processor that counts calls and
// builds a Payload, and an Observer that logs one field of it. Route is the
// scheduler.Handler that runs them in order.
package route

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/tickroute/internal/events"
	"github.com/mattjoyce/tickroute/internal/scheduler"
)

// Config describes one route.
type Config struct {
	Name    string
	Fields  map[string]string
	Observe string
}

// Snapshot is a point-in-time view of a route.
type Snapshot struct {
	Name   string    `json:"name"`
	Calls  int64     `json:"calls"`
	Field  string    `json:"field"`
	Last   *LogEntry `json:"last,omitempty"`
	LastAt time.Time `json:"last_at,omitempty"`
}

// Route runs Processor then Observer for every tick.
type Route struct {
	name      string
	counter   *Counter
	processor *Processor
	observer  *Observer
	events    events.Publisher
	logger    *slog.Logger

	mu     sync.Mutex
	last   *LogEntry
	lastAt time.Time
}

var _ scheduler.Handler = (*Route)(nil)

// New builds a route with its own counter.
func New(cfg Config, hub events.Publisher, logger *slog.Logger) *Route {
	if hub == nil {
		hub = events.NewHub(128)
	}
	logger = logger.With("component", "route", "route", cfg.Name)

	counter := &Counter{}
	return &Route{
		name:      cfg.Name,
		counter:   counter,
		processor: NewProcessor(counter, NewPayloadFactory(cfg.Fields), logger),
		observer:  NewObserver(cfg.Observe, logger),
		events:    hub,
		logger:    logger,
	}
}

// Name returns the route name.
func (r *Route) Name() string {
	return r.name
}

// Calls returns the route's counter value.
func (r *Route) Calls() int64 {
	return r.counter.Value()
}

// HandleTick implements scheduler.Handler.
func (r *Route) HandleTick(ctx context.Context, tick scheduler.Tick) error {
	payload := r.processor.OnTick(ctx, tick)
	entry := r.observer.Observe(payload)

	r.mu.Lock()
	r.last = &entry
	r.lastAt = time.Now().UTC()
	r.mu.Unlock()

	r.events.Publish(events.RouteObserved, map[string]any{
		"route":      r.name,
		"seq":        tick.Seq,
		"calls":      payload.Seq,
		"payload_id": payload.ID,
		"field":      entry.Field,
		"value":      entry.Value,
		"present":    entry.Present,
	})

	// One scheduler per counter keeps these equal.
	if payload.Seq != tick.Seq {
		return fmt.Errorf("route %s: call count %d does not match tick %d", r.name, payload.Seq, tick.Seq)
	}
	return nil
}

// Snapshot returns the current count and the latest observation.
func (r *Route) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Name:   r.name,
		Calls:  r.counter.Value(),
		Field:  r.observer.Field(),
		LastAt: r.lastAt,
	}
	if r.last != nil {
		last := *r.last
		s.Last = &last
	}
	return s
}
