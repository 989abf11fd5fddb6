package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Noop implements Logger, Metrics, and Tracer as a single zero-cost value,
// used as the Runner's default observability backend so a caller who wires
// nothing still gets a valid Logger/Tracer rather than a nil check at every
// call site.
type Noop struct{}

// NewNoopLogger returns a Noop as a Logger.
func NewNoopLogger() Logger { return Noop{} }

// NewNoopMetrics returns a Noop as a Metrics.
func NewNoopMetrics() Metrics { return Noop{} }

// NewNoopTracer returns a Noop as a Tracer.
func NewNoopTracer() Tracer { return Noop{} }

func (Noop) Debug(context.Context, string, ...any) {}
func (Noop) Info(context.Context, string, ...any)  {}
func (Noop) Warn(context.Context, string, ...any)  {}
func (Noop) Error(context.Context, string, ...any) {}

func (Noop) IncCounter(string, float64, ...string)        {}
func (Noop) RecordTimer(string, time.Duration, ...string) {}
func (Noop) RecordGauge(string, float64, ...string)       {}

func (Noop) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (Noop) Span(context.Context) Span { return noopSpan{} }

type noopSpan struct{}

func (noopSpan) End(...trace.SpanEndOption)              {}
func (noopSpan) AddEvent(string, ...any)                 {}
func (noopSpan) SetStatus(codes.Code, string)            {}
func (noopSpan) RecordError(error, ...trace.EventOption) {}
