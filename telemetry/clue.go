package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

// instrumentationScope names the OTEL meter/tracer this module registers
// its run-loop instrumentation under.
const instrumentationScope = "github.com/raaf-ai/raaf-go/runner"

// Clue is the production observability backend: logging via
// goa.design/clue/log, metrics and tracing via the global OTEL providers
// (configure them with otel.SetMeterProvider/otel.SetTracerProvider, or
// clue.ConfigureOpenTelemetry, before starting a run). One Clue value
// satisfies Logger, Metrics, and Tracer, so a caller that wants all three
// backed by the same instrumentation scope can construct it once.
type Clue struct {
	meter  metric.Meter
	tracer trace.Tracer
}

// NewClue constructs a Clue bound to this module's instrumentation scope.
func NewClue() Clue {
	return Clue{meter: otel.Meter(instrumentationScope), tracer: otel.Tracer(instrumentationScope)}
}

// NewClueLogger returns a Clue as a Logger.
func NewClueLogger() Logger { return NewClue() }

// NewClueMetrics returns a Clue as a Metrics.
func NewClueMetrics() Metrics { return NewClue() }

// NewClueTracer returns a Clue as a Tracer.
func NewClueTracer() Tracer { return NewClue() }

func (Clue) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, fielders(msg, keyvals)...)
}

func (Clue) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, fielders(msg, keyvals)...)
}

func (Clue) Warn(ctx context.Context, msg string, keyvals ...any) {
	fs := fielders(msg, keyvals)
	fs = append(fs, log.KV{K: "severity", V: "warning"})
	log.Warn(ctx, fs...)
}

func (Clue) Error(ctx context.Context, msg string, keyvals ...any) {
	log.Error(ctx, nil, fielders(msg, keyvals)...)
}

func (c Clue) IncCounter(name string, value float64, tags ...string) {
	counter, err := c.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func (c Clue) RecordTimer(name string, duration time.Duration, tags ...string) {
	histogram, err := c.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	histogram.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagAttrs(tags)...))
}

// RecordGauge records value on a histogram suffixed "_gauge": OTEL has no
// synchronous gauge instrument, so a histogram is the closest fit for a
// point-in-time value recorded from the caller's goroutine.
func (c Clue) RecordGauge(name string, value float64, tags ...string) {
	histogram, err := c.meter.Float64Histogram(name + "_gauge")
	if err != nil {
		return
	}
	histogram.Record(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func (c Clue) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	newCtx, span := c.tracer.Start(ctx, name, opts...)
	return newCtx, clueSpan{span}
}

func (Clue) Span(ctx context.Context) Span { return clueSpan{trace.SpanFromContext(ctx)} }

type clueSpan struct{ span trace.Span }

func (s clueSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }
func (s clueSpan) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name, trace.WithAttributes(kvAttrs(attrs)...))
}
func (s clueSpan) SetStatus(code codes.Code, description string) { s.span.SetStatus(code, description) }
func (s clueSpan) RecordError(err error, opts ...trace.EventOption) { s.span.RecordError(err, opts...) }

// fielders renders msg plus a flat key/value slice as clue log.Fielders.
func fielders(msg string, keyvals []any) []log.Fielder {
	fs := []log.Fielder{log.KV{K: "msg", V: msg}}
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fs = append(fs, log.KV{K: key, V: keyvals[i+1]})
	}
	return fs
}

// tagAttrs renders a flat name/value tag slice as OTEL string attributes.
func tagAttrs(tags []string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}

// kvAttrs renders a flat key/value slice as typed OTEL attributes, falling
// back to a string for any value type AddEvent doesn't special-case.
func kvAttrs(keyvals []any) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, _ := keyvals[i].(string)
		switch v := keyvals[i+1].(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		default:
			attrs = append(attrs, attribute.String(key, ""))
		}
	}
	return attrs
}
