package agent

import (
	"context"
	"encoding/json"
)

// ToolKind distinguishes how a tool is executed.
type ToolKind string

const (
	// ToolKindLocal runs in-process via Handler.
	ToolKindLocal ToolKind = "local"
	// ToolKindHosted is executed remotely by the provider itself
	// (web_search, code_interpreter, file_search); the engine only
	// records that it ran.
	ToolKindHosted ToolKind = "hosted"
	// ToolKindHandoff is a synthetic tool auto-generated for a Handoff
	// target; invoking it routes to the handoff path rather than
	// producing an ordinary tool output.
	ToolKindHandoff ToolKind = "handoff"
)

// Handler executes a local tool call's arguments and returns a value to be
// stringified (or JSON-encoded if it is not already a string) into the
// ToolCallOutput. Returning a HandoffSentinel routes execution to the
// handoff path instead.
type Handler func(ctx context.Context, arguments json.RawMessage) (any, error)

// IdempotencyScope declares the scope in which repeated calls to a tool with
// identical arguments may be treated as redundant by orchestration layers.
// Tools are not idempotent across a transcript unless explicitly tagged.
type IdempotencyScope string

// IdempotencyScopeTranscript marks a tool idempotent across a run
// transcript: once a successful result exists in the transcript, identical
// repeat calls may be skipped and the prior output reused.
const IdempotencyScopeTranscript IdempotencyScope = "transcript"

// Tool is a callable exposed to the model: a local function, a hosted
// provider-executed capability, or a synthetic handoff tool.
type Tool struct {
	// Name is unique per agent.
	Name string
	// Description is shown to the model.
	Description string
	// Parameters is the tool's JSON schema, normalized to the strict
	// dialect before being sent to the provider.
	Parameters map[string]any
	// Kind distinguishes local/hosted/handoff dispatch.
	Kind ToolKind
	// Handler runs the tool when Kind is ToolKindLocal.
	Handler Handler
	// Idempotency optionally declares a dedup scope for repeated calls
	// with identical arguments, off by default.
	Idempotency IdempotencyScope
}

// HandoffSentinel is the value a Handler returns to indicate that this call
// should be routed to the handoff path rather than producing an ordinary
// ToolCallOutput.
type HandoffSentinel struct {
	TargetAgent string
	Data        any
}

// AsHandoffSentinel reports whether v is a HandoffSentinel, returning it if
// so.
func AsHandoffSentinel(v any) (HandoffSentinel, bool) {
	hs, ok := v.(HandoffSentinel)
	return hs, ok
}
