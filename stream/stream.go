// Package stream provides the minimal client-facing event delivery
// surface: the Sink interface the Runner publishes run events to, plus a
// no-op implementation. No SSE/WebSocket transport is implemented here;
// callers bring their own Sink.
package stream

import "context"

// EventType identifies which kind of conversation progress an Event
// describes. Unlike hooks.EventType (internal lifecycle observability),
// stream events are the subset a client-facing transport would forward.
type EventType string

const (
	EventItem     EventType = "item"
	EventToolCall EventType = "tool_call"
	EventHandoff  EventType = "handoff"
	EventFinal    EventType = "final"
)

// Event is a single client-facing update. Payload is left as `any` rather
// than a closed set of structs: concrete transports (not in scope here)
// decide how to marshal it.
type Event struct {
	Type      EventType
	RunID     string
	SessionID string
	Agent     string
	Payload   any
}

// Sink delivers streaming updates to clients over a transport the engine
// itself does not implement (SSE, WebSocket, a message bus). The Runner
// calls Publish alongside its hook dispatch on each new item; it never
// blocks on delivery semantics beyond the call returning.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// NoopSink discards every event. It is the Runner's default Sink so that
// callers who don't need client-facing streaming pay no cost for it.
type NoopSink struct{}

// Publish does nothing and never errors.
func (NoopSink) Publish(ctx context.Context, event Event) error { return nil }

var _ Sink = NoopSink{}
