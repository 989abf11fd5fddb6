package hooks

import (
	"context"

	"github.com/raaf-ai/raaf-go/telemetry"
)

// Dispatcher publishes lifecycle events to a run-level bus and an
// agent-level bus, run-level first. Subscriber errors are
// caught and logged, never propagated: "Hook exceptions are caught, logged,
// and do not abort the run."
type Dispatcher struct {
	RunBus   Bus
	AgentBus Bus
	Logger   telemetry.Logger
}

// NewDispatcher constructs a Dispatcher over two fresh buses. log may be nil,
// in which case telemetry.NewNoopLogger() is used.
func NewDispatcher(log telemetry.Logger) *Dispatcher {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Dispatcher{RunBus: NewBus(), AgentBus: NewBus(), Logger: log}
}

// Dispatch publishes evt to the run-level bus, then the agent-level bus,
// logging and swallowing any subscriber error from either.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) {
	if err := d.RunBus.Publish(ctx, evt); err != nil {
		d.Logger.Warn(ctx, "run-level hook subscriber failed", "event_type", evt.Type(), "run_id", evt.RunID(), "error", err)
	}
	if err := d.AgentBus.Publish(ctx, evt); err != nil {
		d.Logger.Warn(ctx, "agent-level hook subscriber failed", "event_type", evt.Type(), "run_id", evt.RunID(), "error", err)
	}
}
