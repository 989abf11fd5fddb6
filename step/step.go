// Package step implements the Step Processor: one atomic turn of the run
// loop. A step calls the provider, runs output guardrails, categorizes
// the response, resolves handoffs, dispatches local tools in parallel,
// and decides what the run loop should do next.
package step

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/raaf-ai/raaf-go/agent"
	"github.com/raaf-ai/raaf-go/apperr"
	"github.com/raaf-ai/raaf-go/guardrail"
	"github.com/raaf-ai/raaf-go/handoff"
	"github.com/raaf-ai/raaf-go/hooks"
	"github.com/raaf-ai/raaf-go/item"
	"github.com/raaf-ai/raaf-go/provider"
	"github.com/raaf-ai/raaf-go/respproc"
	"github.com/raaf-ai/raaf-go/retry"
	"github.com/raaf-ai/raaf-go/telemetry"
	"github.com/raaf-ai/raaf-go/toolregistry"
)

// NextStepKind discriminates a StepResult's continuation.
type NextStepKind string

const (
	NextStepRunAgain    NextStepKind = "run_again"
	NextStepHandoff     NextStepKind = "handoff"
	NextStepFinalOutput NextStepKind = "final_output"
)

// NextStep is the tagged decision a Step produces.
type NextStep struct {
	Kind        NextStepKind
	Target      string // set when Kind == NextStepHandoff
	Input       any    // set when Kind == NextStepHandoff: the (possibly filtered) handoff payload
	FinalOutput any    // set when Kind == NextStepFinalOutput
}

// Result is the outcome of processing one step.
type Result struct {
	ModelResponse provider.Response
	PreStepItems  []item.Item
	NewStepItems  []item.Item
	ToolsUsed     []string
	NextStep      NextStep
	// ToolChoiceCleared reports whether this step's local-tool execution
	// should trigger the agent's ResetToolChoice behavior for subsequent
	// turns; the caller (runner) owns the
	// per-run shadow that actually clears ToolChoice.
	ToolChoiceCleared bool
}

// Processor executes steps for one run.
type Processor struct {
	Provider  provider.Provider
	Retry     *retry.Policy
	Hooks     *hooks.Dispatcher
	Logger    telemetry.Logger
	Bounds    toolregistry.Bounds
	RunID     string
	SessionID string
	// Stop, when non-nil, is polled before local tool dispatch. A true
	// result cancels the unstarted tools: each gets a cancellation
	// ToolCallOutput in the returned Result, and Execute returns
	// ExecutionStopped alongside it so the caller can still log the items.
	Stop func() bool
}

// Execute runs one atomic step for actingAgent, given the request to send
// and the run's current handoff chain (pre-append). It returns a Result
// and never errors for locally-recoverable conditions (unresolved/
// circular/too-long handoffs, invalid tool arguments, tool panics); it
// returns an error only for ModelBehaviorError, a provider error surfaced
// by retry exhaustion, a guardrail tripwire, or ExecutionStopped when Stop
// trips before local tool dispatch.
func (p *Processor) Execute(ctx context.Context, actingAgent *agent.Agent, req provider.Request, chain handoff.Chain) (Result, error) {
	var resp provider.Response
	err := p.Retry.Do(ctx, func(ctx context.Context) error {
		r, callErr := p.Provider.ResponsesCompletion(ctx, req)
		if callErr != nil {
			return callErr
		}
		resp = r
		return nil
	})
	if err != nil {
		if _, ok := apperr.AsProviderError(err); ok {
			return Result{}, err
		}
		return Result{}, &apperr.ProviderError{Operation: "responses_completion", Message: err.Error(), Cause: err}
	}

	for i, w := range resp.Output {
		if w.Type != item.WireTypeMessage && w.Type != item.WireTypeOutputText {
			continue
		}
		original := w.Text()
		content, tripped, guardrailName, gerr := guardrail.RunOutputChain(ctx, actingAgent.OutputGuardrails, original)
		if gerr != nil {
			return Result{}, fmt.Errorf("step: output guardrail %q: %w", guardrailName, gerr)
		}
		if tripped != nil {
			return Result{}, apperr.NewOutputGuardrailTripwireTriggered(guardrailName, original, tripped.OutputInfo)
		}
		if filtered, ok := content.(string); ok && filtered != original {
			resp.Output[i].Content = marshalTextContent(filtered)
		}
	}

	processed, err := respproc.Process(ctx, resp, actingAgent, p.Logger)
	if err != nil {
		return Result{}, err
	}

	result := Result{ModelResponse: resp, NewStepItems: append([]item.Item{}, processed.NewItems...), ToolsUsed: processed.ToolsUsed}

	nextStep, handoffItems := p.resolveHandoffs(actingAgent, processed, chain)
	result.NewStepItems = append(result.NewStepItems, handoffItems...)

	if len(processed.Functions) > 0 && p.Stop != nil && p.Stop() {
		for _, f := range processed.Functions {
			result.NewStepItems = append(result.NewStepItems, item.ToolCallOutput{
				CallID: f.CallID, Output: "execution stopped before this tool call started", Agent: actingAgent.Name,
			})
		}
		return result, &apperr.ExecutionStopped{Agent: actingAgent.Name}
	}

	outputs := p.dispatchFunctions(ctx, actingAgent, processed.Functions)
	var sentinels []agent.HandoffSentinel
	for _, out := range outputs {
		if out.Handoff != nil {
			sentinels = append(sentinels, *out.Handoff)
			continue
		}
		p.Bounds.Apply(&out)
		result.NewStepItems = append(result.NewStepItems, toolregistry.NewToolCallOutputItem(out))
	}

	if len(sentinels) > 0 {
		sentinelStep, sentinelItems := p.resolveSentinelHandoffs(actingAgent, sentinels, nextStep, chain)
		result.NewStepItems = append(result.NewStepItems, sentinelItems...)
		nextStep = sentinelStep
	}

	if actingAgent.ResetToolChoice && len(outputs) > 0 {
		result.ToolChoiceCleared = true
	}

	if nextStep.Kind != "" {
		result.NextStep = nextStep
		return result, nil
	}

	hadToolCalls := len(processed.Functions) > 0 || len(processed.Handoffs) > 0
	if !hadToolCalls {
		result.NextStep = NextStep{Kind: NextStepFinalOutput, FinalOutput: FinalOutputPayload(actingAgent, processed.NewItems)}
	} else {
		result.NextStep = NextStep{Kind: NextStepRunAgain}
	}
	return result, nil
}

// resolveHandoffs applies the single-handoff rule and cycle/chain
// validation, returning the NextStep decision (zero value if
// none was made, meaning the caller should fall through to its own
// terminality decision) plus any synthetic assistant error item to append.
func (p *Processor) resolveHandoffs(actingAgent *agent.Agent, processed respproc.ProcessedResponse, chain handoff.Chain) (NextStep, []item.Item) {
	if len(processed.Handoffs) == 0 {
		return NextStep{}, nil
	}
	if len(processed.Handoffs) > 1 {
		msg := item.Message{
			ID: item.NewID(), Role: item.RoleAssistant,
			Content: "Error: Multiple agent handoffs detected in a single turn; ignoring all and continuing with the current agent.",
			Agent:   actingAgent.Name,
		}
		return NextStep{Kind: NextStepRunAgain}, []item.Item{msg}
	}

	run := processed.Handoffs[0]
	targets := make([]string, 0, len(actingAgent.Handoffs))
	for _, h := range actingAgent.Handoffs {
		targets = append(targets, h.Target.Name)
	}
	decision := handoff.Validate(run.ToolName, targets, chain)

	switch decision.Outcome {
	case handoff.OutcomeOK:
		input := p.resolveHandoffInput(actingAgent, decision.Target, run.ArgumentsJSON)
		return NextStep{Kind: NextStepHandoff, Target: decision.Target, Input: input}, nil
	case handoff.OutcomeCircular:
		msg := item.Message{
			ID: item.NewID(), Role: item.RoleAssistant,
			Content: fmt.Sprintf("Error: circular handoff to %q blocked; continuing with %q.", decision.Target, actingAgent.Name),
			Agent:   actingAgent.Name,
		}
		return NextStep{Kind: NextStepRunAgain}, []item.Item{msg}
	case handoff.OutcomeChainTooLong:
		msg := item.Message{
			ID: item.NewID(), Role: item.RoleAssistant,
			Content: fmt.Sprintf("Error: handoff chain too long (max %d); continuing with %q.", handoff.MaxChainLength, actingAgent.Name),
			Agent:   actingAgent.Name,
		}
		return NextStep{Kind: NextStepRunAgain}, []item.Item{msg}
	default: // OutcomeUnresolved
		msg := item.Message{
			ID: item.NewID(), Role: item.RoleAssistant,
			Content: fmt.Sprintf("Error: could not resolve handoff target for %q; continuing with %q.", run.ToolName, actingAgent.Name),
			Agent:   actingAgent.Name,
		}
		return NextStep{Kind: NextStepRunAgain}, []item.Item{msg}
	}
}

// resolveSentinelHandoffs routes handoff sentinels returned by tool
// handlers. The single-handoff rule spans both mechanisms: a sentinel
// arriving on top of a tool-call handoff already decided this step, or two
// sentinels in one batch, is treated exactly like two handoff tool calls.
func (p *Processor) resolveSentinelHandoffs(actingAgent *agent.Agent, sentinels []agent.HandoffSentinel, decided NextStep, chain handoff.Chain) (NextStep, []item.Item) {
	if len(sentinels) > 1 || decided.Kind == NextStepHandoff {
		msg := item.Message{
			ID: item.NewID(), Role: item.RoleAssistant,
			Content: "Error: Multiple agent handoffs detected in a single turn; ignoring all and continuing with the current agent.",
			Agent:   actingAgent.Name,
		}
		return NextStep{Kind: NextStepRunAgain}, []item.Item{msg}
	}
	if decided.Kind == NextStepRunAgain {
		// A handoff tool call already failed validation this step and
		// left its own error item; keep that decision rather than letting
		// the sentinel sneak a second handoff through.
		return decided, nil
	}

	targets := make([]string, 0, len(actingAgent.Handoffs))
	for _, h := range actingAgent.Handoffs {
		targets = append(targets, h.Target.Name)
	}
	hs := sentinels[0]
	decision := handoff.ValidateTarget(hs.TargetAgent, targets, chain)

	switch decision.Outcome {
	case handoff.OutcomeOK:
		return NextStep{Kind: NextStepHandoff, Target: decision.Target, Input: hs.Data}, nil
	case handoff.OutcomeCircular:
		msg := item.Message{
			ID: item.NewID(), Role: item.RoleAssistant,
			Content: fmt.Sprintf("Error: circular handoff to %q blocked; continuing with %q.", decision.Target, actingAgent.Name),
			Agent:   actingAgent.Name,
		}
		return NextStep{Kind: NextStepRunAgain}, []item.Item{msg}
	case handoff.OutcomeChainTooLong:
		msg := item.Message{
			ID: item.NewID(), Role: item.RoleAssistant,
			Content: fmt.Sprintf("Error: handoff chain too long (max %d); continuing with %q.", handoff.MaxChainLength, actingAgent.Name),
			Agent:   actingAgent.Name,
		}
		return NextStep{Kind: NextStepRunAgain}, []item.Item{msg}
	default:
		msg := item.Message{
			ID: item.NewID(), Role: item.RoleAssistant,
			Content: fmt.Sprintf("Error: could not resolve handoff target %q; continuing with %q.", hs.TargetAgent, actingAgent.Name),
			Agent:   actingAgent.Name,
		}
		return NextStep{Kind: NextStepRunAgain}, []item.Item{msg}
	}
}

// resolveHandoffInput parses the handoff tool call's arguments and, when
// the matched edge declares an InputFilter, runs them through it.
// Unparseable or empty arguments degrade to nil rather than failing the
// handoff, since a handoff's argument schema defaults to an entirely
// optional object.
func (p *Processor) resolveHandoffInput(actingAgent *agent.Agent, targetName string, argumentsJSON json.RawMessage) any {
	var parsed any
	if len(argumentsJSON) > 0 {
		if err := json.Unmarshal(argumentsJSON, &parsed); err != nil {
			p.Logger.Warn(context.Background(), "step: could not parse handoff arguments", "target", targetName, "error", err)
			parsed = nil
		}
	}

	for _, h := range actingAgent.Handoffs {
		if h.Target == nil || h.Target.Name != targetName || h.InputFilter == nil {
			continue
		}
		filtered, err := h.InputFilter(parsed)
		if err != nil {
			p.Logger.Warn(context.Background(), "step: handoff input filter failed", "target", targetName, "error", err)
			return parsed
		}
		return filtered
	}
	return parsed
}

func (p *Processor) dispatchFunctions(ctx context.Context, actingAgent *agent.Agent, functions []respproc.ToolRunFunction) []toolregistry.CallOutput {
	if len(functions) == 0 {
		return nil
	}
	calls := make([]toolregistry.Call, 0, len(functions))
	for _, f := range functions {
		p.dispatchHook(ctx, hooks.NewToolStartEvent(p.RunID, p.SessionID, actingAgent.Name, f.ToolName, string(f.ArgumentsJSON), f.CallID))
		calls = append(calls, toolregistry.Call{
			CallID: f.CallID, Name: f.ToolName, ArgumentsJSON: f.ArgumentsJSON, Tool: f.Tool, Agent: actingAgent.Name,
		})
	}

	outputs := toolregistry.DispatchAll(ctx, calls)
	for _, out := range outputs {
		if out.IsError {
			p.dispatchHook(ctx, hooks.NewToolErrorEvent(p.RunID, p.SessionID, actingAgent.Name, "", out.CallID, out.Err))
		}
		p.dispatchHook(ctx, hooks.NewToolEndEvent(p.RunID, p.SessionID, actingAgent.Name, "", out.CallID, out.Output, out.IsError))
	}
	sort.SliceStable(outputs, func(i, j int) bool { return outputs[i].CallID < outputs[j].CallID })
	return outputs
}

func marshalTextContent(s string) json.RawMessage {
	b, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`""`)
	}
	return b
}

func (p *Processor) dispatchHook(ctx context.Context, evt hooks.Event) {
	if p.Hooks == nil {
		return
	}
	p.Hooks.Dispatch(ctx, evt)
}
