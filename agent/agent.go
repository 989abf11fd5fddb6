package agent

import (
	"context"

	"github.com/raaf-ai/raaf-go/guardrail"
)

// ToolChoiceMode controls how the model is instructed to use tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceSpecific ToolChoiceMode = "specific"
)

// ToolChoice pairs a mode with the tool name when Mode is ToolChoiceSpecific.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// InstructionsFunc computes an agent's system instructions as a function of
// the current run metadata, for agents whose instructions are dynamic rather
// than a static string.
type InstructionsFunc func(ctx context.Context, meta map[string]any) (string, error)

// OnHandoffFunc is invoked when a handoff into this agent completes,
// receiving the name of the agent that handed off and the handoff's
// (possibly filtered) input payload.
type OnHandoffFunc func(ctx context.Context, fromAgent string, input any) error

// Agent is an immutable configuration: a named unit of instructions, model,
// tools, and handoff targets. Agent values are long-lived and shared across
// runs; a run never mutates an Agent. Per-run overrides (such as a
// reset_tool_choice clearing ToolChoice after a tool-using turn) live on a
// per-run shadow copy held by the runner, never on the Agent itself.
type Agent struct {
	// Name uniquely identifies the agent within a run.
	Name string
	// Instructions is used when InstructionsFunc is nil.
	Instructions string
	// InstructionsFunc, when set, takes precedence over Instructions.
	InstructionsFunc InstructionsFunc
	// Model is the model identifier passed to the provider.
	Model string
	// MaxTurns bounds the run's turn budget for this agent. Must be >= 1.
	MaxTurns int
	// Tools is the ordered list of tools directly owned by this agent.
	Tools []Tool
	// Handoffs is the ordered list of agents this agent may transfer
	// control to.
	Handoffs []Handoff
	// HandoffDescription is used as the default handoff_description when
	// another agent hands off to this one.
	HandoffDescription string
	// InputGuardrails run before the first model call of each turn.
	InputGuardrails []guardrail.Guardrail
	// OutputGuardrails run against the assistant content of each response.
	OutputGuardrails []guardrail.Guardrail
	// ResponseFormat, when set, is a strict JSON schema the final output
	// must conform to.
	ResponseFormat map[string]any
	// ToolChoice controls tool-use mode for this agent's turns.
	ToolChoice *ToolChoice
	// ResetToolChoice, if true, clears ToolChoice on the per-run shadow
	// after any turn that invoked a tool.
	ResetToolChoice bool
	// ModelSettings carries provider-specific parameters (temperature,
	// top_p, etc.) passed through verbatim.
	ModelSettings map[string]any
	// OnHandoff is invoked when control transfers into this agent.
	OnHandoff OnHandoffFunc
}

// ResolveInstructions returns the agent's system instructions, calling
// InstructionsFunc when set.
func (a *Agent) ResolveInstructions(ctx context.Context, meta map[string]any) (string, error) {
	if a.InstructionsFunc != nil {
		return a.InstructionsFunc(ctx, meta)
	}
	return a.Instructions, nil
}

// ToolByName returns the agent's own tool with the given name, or false if
// none matches. This does not consult transitively reachable tools from
// handoffs; use toolregistry.Collect for that.
func (a *Agent) ToolByName(name string) (Tool, bool) {
	for _, t := range a.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// HandoffByTargetName returns the Handoff in a.Handoffs whose target agent
// has the given name.
func (a *Agent) HandoffByTargetName(name string) (Handoff, bool) {
	for _, h := range a.Handoffs {
		if h.Target != nil && h.Target.Name == name {
			return h, true
		}
	}
	return Handoff{}, false
}

// Validate checks that MaxTurns >= 1 and handoff target names are unique.
func (a *Agent) Validate() error {
	if a.MaxTurns < 1 {
		return &InvalidAgentError{Agent: a.Name, Reason: "max_turns must be >= 1"}
	}
	seen := make(map[string]struct{}, len(a.Handoffs))
	for _, h := range a.Handoffs {
		if h.Target == nil {
			continue
		}
		if _, dup := seen[h.Target.Name]; dup {
			return &InvalidAgentError{Agent: a.Name, Reason: "duplicate handoff target name " + h.Target.Name}
		}
		seen[h.Target.Name] = struct{}{}
	}
	return nil
}

// InvalidAgentError reports a violated Agent invariant.
type InvalidAgentError struct {
	Agent  string
	Reason string
}

func (e *InvalidAgentError) Error() string {
	return "agent: " + e.Agent + ": " + e.Reason
}
