package route

import (
	"context"
	"log/slog"

	"github.com/mattjoyce/tickroute/internal/scheduler"
)

// Processor is the first stage of the route: it counts the call and builds
// the tick's payload.
type Processor struct {
	counter *Counter
	factory *PayloadFactory
	logger  *slog.Logger
}

func NewProcessor(counter *Counter, factory *PayloadFactory, logger *slog.Logger) *Processor {
	return &Processor{
		counter: counter,
		factory: factory,
		logger:  logger,
	}
}

// OnTick increments the counter, logs the new value and returns a new payload
// stamped with it.
func (p *Processor) OnTick(ctx context.Context, tick scheduler.Tick) *Payload {
	calls := p.counter.Increment()
	p.logger.InfoContext(ctx, "calls", "calls", calls, "seq", tick.Seq)
	return p.factory.New(calls)
}
