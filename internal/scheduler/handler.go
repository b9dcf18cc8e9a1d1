package scheduler

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_handler.go -package=mocks github.com/mattjoyce/tickroute/internal/scheduler Handler

// Handler does the work for one tick. Returned errors (and panics) are logged
// by the Timer; the tick is lost and the schedule carries on.
type Handler interface {
	HandleTick(ctx context.Context, tick Tick) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, tick Tick) error

func (f HandlerFunc) HandleTick(ctx context.Context, tick Tick) error {
	return f(ctx, tick)
}

// Tick is one firing of the timer.
type Tick struct {
	Seq         int64     `json:"seq"` // 1-indexed
	ScheduledAt time.Time `json:"scheduled_at"`
	FiredAt     time.Time `json:"fired_at"`
}

// Lateness is how far behind its schedule the tick fired.
func (t Tick) Lateness() time.Duration {
	return t.FiredAt.Sub(t.ScheduledAt)
}

// State is the lifecycle state of a Timer.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// Config describes a timer's cadence.
type Config struct {
	Name   string
	Period time.Duration
	// Delay before the first tick.
	Delay time.Duration
	// FixedRate schedules tick N at start+N*period; otherwise each tick is
	// scheduled one period after the previous one completed.
	FixedRate bool
	// RepeatCount stops the timer after that many ticks. 0 means forever.
	RepeatCount int
	// Timeout bounds the handler context of a single tick. 0 means unbounded.
	Timeout time.Duration
}
