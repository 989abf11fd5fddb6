// Package provider defines the adapter contract the run loop calls: the
// interface a concrete LLM client implements, and the canonical
// Responses-items wire shapes that the rest of the engine
// builds requests in and parses responses from. Concrete adapters
// (anthropicadapter, openaiadapter, grpcadapter) translate this shape to a
// specific vendor API.
package provider

import (
	"context"

	"github.com/raaf-ai/raaf-go/item"
)

// Usage reports token accounting for a single provider call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Request is the canonical request shape passed to Provider.ResponsesCompletion.
type Request struct {
	// SystemPrompt is the resolved system instructions for the acting agent.
	SystemPrompt string
	// Input is the ordered list of items built by the runner after its
	// dedup-and-truncate pass.
	Input []item.WireItem
	// Model is the model identifier for the acting agent.
	Model string
	// Tools is the tool-definition list for the acting agent's transitive
	// tool set.
	Tools []ToolDef
	// PreviousResponseID, when non-empty, asks the provider to retain its
	// prior function_call/message items server-side so the caller can omit
	// them from Input.
	PreviousResponseID string
	// ModelParams carries provider-specific parameters (temperature,
	// top_p, tool_choice, response_format, ...) passed through verbatim.
	ModelParams map[string]any
}

// ToolDef is the wire shape of one tool definition.
type ToolDef struct {
	Type     string          `json:"type"`
	Name     string          `json:"name"`
	Function ToolDefFunction `json:"function"`
}

// ToolDefFunction is the nested function descriptor of a ToolDef.
type ToolDefFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// Response is the canonical response shape returned by
// Provider.ResponsesCompletion.
type Response struct {
	ID     string
	Output []item.WireItem
	Usage  Usage
	Model  string
}

// Provider is the adapter contract the engine calls, wrapped by retry.Policy
// at the call site.
type Provider interface {
	// ResponsesCompletion performs one non-streaming model call.
	ResponsesCompletion(ctx context.Context, req Request) (Response, error)
	// SupportsFunctionCalling reports whether this provider/model
	// combination accepts a Tools list at all.
	SupportsFunctionCalling() bool
}

// StreamChunk is one incrementally delivered piece of a streaming response.
// Streaming delivery itself lives outside this engine; this type exists
// only so an adapter that does support streaming has a named shape to
// return from StreamingProvider.StreamCompletion.
type StreamChunk struct {
	Output []item.WireItem
	Usage  *Usage
	Done   bool
}

// StreamingProvider is implemented by adapters that additionally support
// streaming completions. Presence of this interface (checked via a type
// assertion on a Provider) enables streaming call sites; its absence does
// not degrade non-streaming use.
type StreamingProvider interface {
	Provider
	StreamCompletion(ctx context.Context, req Request) (<-chan StreamChunk, error)
}
