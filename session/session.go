// Package session defines the external session-store collaborator: a
// durable conversation log the Runner may load from at the start of a run
// and append to as it progresses. The engine itself is stateless across
// runs; Store is an optional integration point, not part of the core.
package session

import "context"

// Message is one persisted conversation entry, shaped after the items
// protocol's message/tool fields rather than the engine's
// internal item.Item so that store implementations do not need to import
// the engine's item package.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
	ToolCalls  []ToolCallRef
}

// ToolCallRef is the minimal shape of a tool call attached to a persisted
// assistant message.
type ToolCallRef struct {
	ID            string
	Name          string
	ArgumentsJSON string
}

// Store is the external session-store interface the Runner consumes.
type Store interface {
	// Messages returns the persisted conversation for this session, oldest
	// first.
	Messages(ctx context.Context) ([]Message, error)
	// AddMessage appends one message to the session.
	AddMessage(ctx context.Context, msg Message) error
	// UpdateMetadata merges kv into the session's stored metadata.
	UpdateMetadata(ctx context.Context, kv map[string]any) error
}
