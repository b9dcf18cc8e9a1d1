package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/tickroute/internal/events"
)

var (
	ErrAlreadyStarted = errors.New("timer already started")
	ErrStopped        = errors.New("timer stopped")
)

// Timer fires a Handler on a fixed-rate or fixed-delay schedule from a single
// goroutine. Ticks never overlap: a tick that overruns the period delays the
// next one, and a fixed-rate timer then fires back-to-back until it is on
// schedule again.
type Timer struct {
	cfg     Config
	handler Handler
	events  events.Publisher
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	started bool

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup

	fired  atomic.Int64
	failed atomic.Int64
}

// New creates a stopped Timer. Call Start to arm it.
func New(cfg Config, handler Handler, hub events.Publisher, logger *slog.Logger) *Timer {
	if hub == nil {
		hub = events.NewHub(128)
	}
	if cfg.Name == "" {
		cfg.Name = "timer"
	}
	return &Timer{
		cfg:     cfg,
		handler: handler,
		events:  hub,
		logger:  logger.With("component", "scheduler", "timer", cfg.Name),
		state:   StateStopped,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start arms the timer and returns once the tick loop is running.
// Errors here mean the timer could not be armed.
func (t *Timer) Start(ctx context.Context) error {
	if t.cfg.Period <= 0 {
		return fmt.Errorf("timer %q: period must be positive (got %s)", t.cfg.Name, t.cfg.Period)
	}
	if t.cfg.Delay < 0 {
		return fmt.Errorf("timer %q: delay must not be negative (got %s)", t.cfg.Name, t.cfg.Delay)
	}
	if t.handler == nil {
		return fmt.Errorf("timer %q: handler is nil", t.cfg.Name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return fmt.Errorf("timer %q: %w", t.cfg.Name, ErrAlreadyStarted)
	}
	select {
	case <-t.stopCh:
		return fmt.Errorf("timer %q: %w", t.cfg.Name, ErrStopped)
	default:
	}

	t.started = true
	t.state = StateRunning
	armedAt := time.Now()

	t.logger.Info("Starting timer",
		"period", t.cfg.Period,
		"delay", t.cfg.Delay,
		"fixed_rate", t.cfg.FixedRate,
		"repeat_count", t.cfg.RepeatCount,
	)
	t.events.Publish(events.TimerStarted, map[string]any{
		"timer":      t.cfg.Name,
		"period_ms":  t.cfg.Period.Milliseconds(),
		"fixed_rate": t.cfg.FixedRate,
		"at":         armedAt.UTC(),
	})

	t.wg.Add(1)
	go t.tickLoop(ctx, armedAt)
	return nil
}

// Stop cancels future ticks and waits for an in-flight tick to complete.
// Safe to call more than once, and before Start.
func (t *Timer) Stop() {
	// Closing under mu orders this against Start: either Start's wg.Add has
	// already happened, or Start will see stopCh closed and never add.
	t.mu.Lock()
	t.stopOnce.Do(func() {
		t.logger.Info("Stopping timer")
		close(t.stopCh)
	})
	t.mu.Unlock()
	t.wg.Wait()

	t.mu.Lock()
	t.state = StateStopped
	t.mu.Unlock()
}

// State reports whether the tick loop is running.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done is closed when the tick loop exits, whatever the reason.
// It is never closed for a timer that was not started.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}

// Fired returns the sequence number of the latest tick.
func (t *Timer) Fired() int64 {
	return t.fired.Load()
}

// Failed returns how many ticks ended in an error or panic.
func (t *Timer) Failed() int64 {
	return t.failed.Load()
}

// Period returns the configured period.
func (t *Timer) Period() time.Duration {
	return t.cfg.Period
}

func (t *Timer) tickLoop(ctx context.Context, armedAt time.Time) {
	defer t.wg.Done()
	defer close(t.done)
	defer t.finish()

	origin := armedAt.Add(t.cfg.Delay)
	next := origin

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for seq := int64(1); ; seq++ {
		select {
		case <-timer.C:
		case <-t.stopCh:
			return
		case <-ctx.Done():
			t.logger.Warn("Timer context cancelled, stopping tick loop")
			return
		}

		// A stop or cancellation that raced with the timer wins.
		select {
		case <-t.stopCh:
			return
		case <-ctx.Done():
			t.logger.Warn("Timer context cancelled, stopping tick loop")
			return
		default:
		}

		t.runTick(ctx, Tick{Seq: seq, ScheduledAt: next, FiredAt: time.Now()})

		if t.cfg.RepeatCount > 0 && seq >= int64(t.cfg.RepeatCount) {
			t.logger.Info("Repeat count reached", "ticks", seq)
			return
		}

		if t.cfg.FixedRate {
			// Computed from the origin so lateness never accumulates.
			next = origin.Add(time.Duration(seq) * t.cfg.Period)
		} else {
			next = time.Now().Add(t.cfg.Period)
		}
		timer.Reset(time.Until(next))
	}
}

func (t *Timer) finish() {
	t.mu.Lock()
	t.state = StateStopped
	t.mu.Unlock()

	t.events.Publish(events.TimerStopped, map[string]any{
		"timer":  t.cfg.Name,
		"ticks":  t.fired.Load(),
		"failed": t.failed.Load(),
	})
	t.logger.Info("Timer stopped", "ticks", t.fired.Load(), "failed", t.failed.Load())
}

// runTick runs the handler for one tick. Cancellation of ctx does not reach
// the handler; only the optional per-tick timeout does.
func (t *Timer) runTick(ctx context.Context, tick Tick) {
	t.fired.Store(tick.Seq)

	tickCtx := context.WithoutCancel(ctx)
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		tickCtx, cancel = context.WithTimeout(tickCtx, t.cfg.Timeout)
		defer cancel()
	}

	t.logger.Debug("Timer tick", "seq", tick.Seq, "lateness_ms", tick.Lateness().Milliseconds())
	t.events.Publish(events.TimerTick, tick)

	started := time.Now()
	err := t.invoke(tickCtx, tick)
	elapsed := time.Since(started)

	if err != nil {
		t.failed.Add(1)
		t.logger.Error("Tick failed", "seq", tick.Seq, "duration_ms", elapsed.Milliseconds(), "error", err)
		t.events.Publish(events.TimerTickFailed, map[string]any{
			"timer": t.cfg.Name,
			"seq":   tick.Seq,
			"error": err.Error(),
		})
		return
	}

	if t.cfg.FixedRate && elapsed > t.cfg.Period {
		t.logger.Warn("Tick overran period; following ticks will queue",
			"seq", tick.Seq,
			"duration_ms", elapsed.Milliseconds(),
			"period_ms", t.cfg.Period.Milliseconds(),
		)
	}
}

func (t *Timer) invoke(ctx context.Context, tick Tick) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick %d panicked: %v", tick.Seq, r)
		}
	}()
	return t.handler.HandleTick(ctx, tick)
}
