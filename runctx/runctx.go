// Package runctx implements the Context Wrapper: the per-run mutable
// state a run loop owns and hands to hooks and tools as a read-write
// handle. Mutations are serialized by the single-threaded run loop;
// Context itself applies no locking of its own.
package runctx

import (
	"context"

	"github.com/google/uuid"

	"github.com/raaf-ai/raaf-go/item"
)

// Context is the per-run mutable state threaded through hooks, tools, and
// guardrails. It is distinct from a Go context.Context (carried alongside
// it, never replacing it) and is owned exclusively by the run loop that
// created it; external code must not mutate its fields other than through
// the accessor methods below.
type Context struct {
	// RunID identifies this run.
	RunID string
	// TraceID groups this run with related telemetry spans.
	TraceID string
	// GroupID optionally groups this run with sibling runs (e.g. a shared
	// conversation thread across multiple agent runs).
	GroupID string
	// SessionID identifies the external session this run is attached to,
	// if any.
	SessionID string

	// Metadata carries caller-supplied, run-scoped key/value data.
	Metadata map[string]any

	// CurrentAgent is the name of the agent executing the turn in
	// progress.
	CurrentAgent string
	// CurrentTurn is the 1-indexed turn number in progress.
	CurrentTurn int

	items []item.Item
}

// New constructs a Context for a fresh run. traceID/groupID default to
// freshly generated uuids when empty.
func New(sessionID, traceID, groupID string, metadata map[string]any) *Context {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	if groupID == "" {
		groupID = uuid.NewString()
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Context{
		RunID:     uuid.NewString(),
		TraceID:   traceID,
		GroupID:   groupID,
		SessionID: sessionID,
		Metadata:  metadata,
	}
}

// Items returns the accumulated item log in append order. The returned
// slice must not be mutated by the caller; use Append.
func (c *Context) Items() []item.Item {
	return c.items
}

// Append adds items to the run's item log in order. Items are immutable
// once appended.
func (c *Context) Append(items ...item.Item) {
	c.items = append(c.items, items...)
}

// ItemByID returns the item with the given id, if present.
func (c *Context) ItemByID(id string) (item.Item, bool) {
	for _, it := range c.items {
		if it.ItemID() == id {
			return it, true
		}
	}
	return item.Item(nil), false
}

// WithRunContext attaches c to a standard context.Context for propagation
// through call chains that only accept context.Context, such as
// agent.Tool.Handler.
func WithRunContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, runContextKey{}, c)
}

// FromContext retrieves a Context attached via WithRunContext.
func FromContext(ctx context.Context) (*Context, bool) {
	c, ok := ctx.Value(runContextKey{}).(*Context)
	return c, ok
}

type runContextKey struct{}
