package agent

import (
	"context"
	"regexp"
	"strings"
)

// InputFilterFunc transforms a handoff's input payload before it reaches the
// target agent (e.g. to strip internal fields).
type InputFilterFunc func(input any) (any, error)

// HandoffOnInvokeFunc is called when this specific handoff edge is taken,
// receiving the run context and the (possibly filtered) input payload. This
// is distinct from Agent.OnHandoff, which fires for every handoff landing on
// that agent regardless of which edge was used.
type HandoffOnInvokeFunc func(ctx context.Context, input any) error

// Handoff declares one edge of control transfer from the owning agent to
// Target. It presents to the model as a synthetic tool named ToolName;
// invoking that tool yields a HandoffSentinel routed to the handoff path
// rather than an ordinary tool output.
type Handoff struct {
	Target          *Agent
	ToolName        string
	ToolDescription string
	InputSchema     map[string]any
	InputFilter     InputFilterFunc
	OnHandoff       HandoffOnInvokeFunc
}

// ResolvedToolName returns h.ToolName, defaulting to
// "transfer_to_<snake_case(target.name)>" when unset.
func (h Handoff) ResolvedToolName() string {
	if h.ToolName != "" {
		return h.ToolName
	}
	if h.Target == nil {
		return ""
	}
	return "transfer_to_" + SnakeCase(h.Target.Name)
}

// ResolvedToolDescription returns h.ToolDescription, defaulting to the
// standard description naming the target agent.
func (h Handoff) ResolvedToolDescription() string {
	if h.ToolDescription != "" {
		return h.ToolDescription
	}
	if h.Target == nil {
		return ""
	}
	desc := "Handoff to the " + h.Target.Name + " agent to handle the request."
	if h.Target.HandoffDescription != "" {
		desc += " " + h.Target.HandoffDescription
	}
	return desc
}

// ResolvedInputSchema returns h.InputSchema, defaulting to an object schema
// with an optional "context" string property.
func (h Handoff) ResolvedInputSchema() map[string]any {
	if h.InputSchema != nil {
		return h.InputSchema
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"context": map[string]any{"type": "string"},
		},
	}
}

var (
	wordBoundaryRe = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	spaceRe        = regexp.MustCompile(`[\s\-]+`)
)

// SnakeCase converts a PascalCase, camelCase, or space/hyphen separated name
// into snake_case, used for synthesizing handoff tool names
// ("transfer_to_<snake_case(target.name)>").
func SnakeCase(name string) string {
	s := wordBoundaryRe.ReplaceAllString(name, "${1}_${2}")
	s = spaceRe.ReplaceAllString(s, "_")
	return strings.ToLower(s)
}
