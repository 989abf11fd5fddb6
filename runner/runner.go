// Package runner implements the Run Loop / Runner: the public entry
// point that drives an agent through turns, following handoffs between
// agents, until it produces a final output or exhausts its turn budget.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/raaf-ai/raaf-go/agent"
	"github.com/raaf-ai/raaf-go/apperr"
	"github.com/raaf-ai/raaf-go/guardrail"
	"github.com/raaf-ai/raaf-go/handoff"
	"github.com/raaf-ai/raaf-go/hooks"
	"github.com/raaf-ai/raaf-go/item"
	"github.com/raaf-ai/raaf-go/memory"
	"github.com/raaf-ai/raaf-go/provider"
	"github.com/raaf-ai/raaf-go/retry"
	"github.com/raaf-ai/raaf-go/runctx"
	"github.com/raaf-ai/raaf-go/session"
	"github.com/raaf-ai/raaf-go/step"
	"github.com/raaf-ai/raaf-go/stream"
	"github.com/raaf-ai/raaf-go/telemetry"
	"github.com/raaf-ai/raaf-go/toolregistry"
)

// maxGeneratedItems and maxTotalItems cap a single request's input list;
// older items beyond them are truncated with a warning rather than sent.
const (
	maxGeneratedItems = 50
	maxTotalItems     = 100
)

// standardPromptPrefix is prepended to an agent's resolved instructions
// whenever it has handoffs and its instructions do not already contain it.
const standardPromptPrefix = `You are part of a multi-agent system designed to make agent coordination
and execution easy. Agents uses two primary abstraction: Agents and
Handoffs. An agent encompasses instructions and tools and can hand off a
conversation to another agent when appropriate. Handoffs are achieved by
calling a handoff function, generally named transfer_to_<agent_name>.
Transfers between agents are handled seamlessly in the background; do not
mention or draw attention to these transfers in your conversation with the
user.
`

// StopChecker is polled at each turn boundary; returning true raises
// ExecutionStopped from Run.
type StopChecker func() bool

// ToolResult is one structured per-tool outcome surfaced on RunResult,
//.11's "tool_results carries structured per-tool outputs".
type ToolResult struct {
	CallID    string
	Agent     string
	Output    string
	IsError   bool
	Timestamp time.Time
}

// TurnUsage records the provider usage charged to a single turn, letting
// callers audit where tokens went across a multi-turn, multi-agent run.
type TurnUsage struct {
	Turn  int
	Agent string
	Usage provider.Usage
}

// RunResult is the outcome of a completed run.
type RunResult struct {
	FinalOutput any
	Messages    []item.ProjectedMessage
	LastAgent   *agent.Agent
	Turns       int
	Usage       provider.Usage
	TurnUsages  []TurnUsage
	ToolResults []ToolResult
	Items       []item.Item
	Metadata    map[string]any
}

// Runner drives an agent run. Construct with New and functional options.
type Runner struct {
	provider     provider.Provider
	retryPolicy  *retry.Policy
	hooks        *hooks.Dispatcher
	logger       telemetry.Logger
	tracer       telemetry.Tracer
	bounds       toolregistry.Bounds
	sessionStore session.Store
	memoryStore  memory.Store
	stopChecker  StopChecker
	sink         stream.Sink

	contextManagement bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithProvider sets the model provider. Required.
func WithProvider(p provider.Provider) Option { return func(r *Runner) { r.provider = p } }

// WithRetryPolicy overrides the default retry policy (retry.NewPolicyFromEnv()).
func WithRetryPolicy(p *retry.Policy) Option { return func(r *Runner) { r.retryPolicy = p } }

// WithHooks sets the hook dispatcher.
func WithHooks(d *hooks.Dispatcher) Option { return func(r *Runner) { r.hooks = d } }

// WithLogger sets the structured logger.
func WithLogger(l telemetry.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithTracer sets the tracer used to wrap each turn in a span.
func WithTracer(t telemetry.Tracer) Option { return func(r *Runner) { r.tracer = t } }

// WithToolOutputBounds bounds tool output size before it is appended to the
// item log.
func WithToolOutputBounds(b toolregistry.Bounds) Option {
	return func(r *Runner) { r.bounds = b }
}

// WithSessionStore attaches an external session store the run loads history
// from and appends new messages to.
func WithSessionStore(s session.Store) Option { return func(r *Runner) { r.sessionStore = s } }

// WithMemoryStore attaches an external memory store, exposed through
// MemoryStore but not otherwise consulted by the run loop itself.
func WithMemoryStore(m memory.Store) Option { return func(r *Runner) { r.memoryStore = m } }

// MemoryStore returns the runner's attached memory store, or nil if none was
// configured. Tool handlers that need long-term memory access read it off
// the Runner they were registered against rather than through runctx.Context,
// since Context is scoped to run-level fields only.
func (r *Runner) MemoryStore() memory.Store { return r.memoryStore }

// WithStopChecker installs a cooperative-cancellation poll, checked at each
// turn boundary and before local tool dispatch.
func WithStopChecker(f StopChecker) Option { return func(r *Runner) { r.stopChecker = f } }

// WithSink attaches a client-facing streaming sink. The Runner publishes
// alongside its hook
// dispatch on each new item, handoff, and final output; it defaults to
// stream.NoopSink when not supplied.
func WithSink(s stream.Sink) Option { return func(r *Runner) { r.sink = s } }

// New constructs a Runner, defaulting the retry policy, hooks, logger, and
// tracer when not supplied.
func New(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.retryPolicy == nil {
		r.retryPolicy = retry.NewPolicyFromEnv()
	}
	if r.logger == nil {
		r.logger = telemetry.NewNoopLogger()
	}
	if r.hooks == nil {
		r.hooks = hooks.NewDispatcher(r.logger)
	}
	if r.tracer == nil {
		r.tracer = telemetry.NewNoopTracer()
	}
	if r.stopChecker == nil {
		r.stopChecker = func() bool { return false }
	}
	if r.sink == nil {
		r.sink = stream.NoopSink{}
	}
	r.contextManagement = contextManagementEnabledFromEnv()
	if tracingDisabledFromEnv() {
		r.hooks = hooks.NewDispatcher(telemetry.NewNoopLogger())
		r.tracer = telemetry.NewNoopTracer()
	}
	return r
}

// contextManagementEnabledFromEnv reads RAAF_CONTEXT_MANAGEMENT.
// Context management is the dedup-and-truncate pass buildRequestInput runs
// over the item log before each turn; it defaults on and is disabled only by
// an explicit falsy value ("0", "false", "off", "disabled"). Unparseable or
// absent values leave it enabled.
func contextManagementEnabledFromEnv() bool {
	v, ok := os.LookupEnv("RAAF_CONTEXT_MANAGEMENT")
	if !ok {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "off", "disabled", "disable":
		return false
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return enabled
}

// tracingDisabledFromEnv reads RAAF_DISABLE_TRACING. A truthy
// value forces both the hook dispatcher and the tracer to their no-op
// implementations regardless of WithHooks/WithTracer, so a caller can kill
// all telemetry fan-out for a deployment without touching wiring code.
func tracingDisabledFromEnv() bool {
	v, ok := os.LookupEnv("RAAF_DISABLE_TRACING")
	if !ok {
		return false
	}
	disabled, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return disabled
}

// Run drives startingAgent through turns against input until it produces a
// final output, raises MaxTurnsExceeded, or raises ExecutionStopped.
func (r *Runner) Run(ctx context.Context, startingAgent *agent.Agent, input string, sessionID string, metadata map[string]any) (*RunResult, error) {
	if r.provider == nil {
		return nil, fmt.Errorf("runner: provider is required")
	}
	if err := startingAgent.Validate(); err != nil {
		return nil, err
	}

	rc := runctx.New(sessionID, "", "", metadata)
	ctx = runctx.WithRunContext(ctx, rc)

	startingSystemPrompt, err := r.buildSystemPrompt(ctx, startingAgent, metadata)
	if err != nil {
		return nil, err
	}
	rc.Append(item.Message{ID: item.NewID(), Role: item.RoleSystem, Content: startingSystemPrompt, Agent: startingAgent.Name})

	originalInput := []item.Item{item.Message{ID: item.NewID(), Role: item.RoleUser, Content: input, Agent: startingAgent.Name}}

	if r.sessionStore != nil {
		history, err := r.sessionStore.Messages(ctx)
		if err != nil {
			return nil, fmt.Errorf("runner: load session: %w", err)
		}
		for _, m := range history {
			rc.Append(item.Message{ID: item.NewID(), Role: item.Role(m.Role), Content: m.Content, Agent: startingAgent.Name})
		}
	}
	rc.Append(originalInput...)

	currentAgent := startingAgent
	chain := handoff.Chain{startingAgent.Name}
	turns := 0
	var previousResponseID string
	var totalUsage provider.Usage
	var turnUsages []TurnUsage
	var toolResults []ToolResult

	processor := &step.Processor{
		Provider:  r.provider,
		Retry:     r.retryPolicy,
		Hooks:     r.hooks,
		Logger:    r.logger,
		Bounds:    r.bounds,
		RunID:     rc.RunID,
		SessionID: sessionID,
		Stop:      r.stopChecker,
	}

	toolChoiceShadow := make(map[string]*agent.ToolChoice)

	for {
		if r.stopChecker() {
			return nil, &apperr.ExecutionStopped{Agent: currentAgent.Name, Turn: turns}
		}

		rc.CurrentAgent = currentAgent.Name
		rc.CurrentTurn = turns
		r.hooks.Dispatch(ctx, hooks.NewAgentStartEvent(rc.RunID, sessionID, currentAgent.Name, turns))

		reqInput, err := r.buildRequestInput(currentAgent, rc, previousResponseID)
		if err != nil {
			return nil, err
		}

		if err := r.runInputGuardrails(ctx, currentAgent, originalInput); err != nil {
			return nil, err
		}

		systemPrompt, err := r.buildSystemPrompt(ctx, currentAgent, metadata)
		if err != nil {
			return nil, err
		}

		tools, err := toolregistry.ToolDefs(toolregistry.Collect(currentAgent))
		if err != nil {
			return nil, err
		}

		req := provider.Request{
			SystemPrompt:       systemPrompt,
			Input:              reqInput,
			Model:              currentAgent.Model,
			Tools:              tools,
			PreviousResponseID: previousResponseID,
			ModelParams:        r.modelParams(currentAgent, toolChoiceShadow),
		}

		ctxSpan, span := r.tracer.Start(ctx, "runner.turn")
		result, err := processor.Execute(ctxSpan, currentAgent, req, chain)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			var stopped *apperr.ExecutionStopped
			if errors.As(err, &stopped) {
				// Keep the cancellation outputs appended for unstarted
				// tools so the item log stays consistent.
				rc.Append(result.NewStepItems...)
			}
			return nil, err
		}
		span.End()

		totalUsage.InputTokens += result.ModelResponse.Usage.InputTokens
		totalUsage.OutputTokens += result.ModelResponse.Usage.OutputTokens
		totalUsage.TotalTokens += result.ModelResponse.Usage.TotalTokens
		turnUsages = append(turnUsages, TurnUsage{Turn: turns, Agent: currentAgent.Name, Usage: result.ModelResponse.Usage})

		for _, it := range result.NewStepItems {
			if out, ok := it.(item.ToolCallOutput); ok {
				toolResults = append(toolResults, ToolResult{CallID: out.CallID, Agent: out.Agent, Output: out.Output, Timestamp: time.Now()})
			}
		}
		rc.Append(result.NewStepItems...)

		for _, it := range result.NewStepItems {
			if err := r.sink.Publish(ctx, stream.Event{
				Type: stream.EventItem, RunID: rc.RunID, SessionID: sessionID, Agent: it.ItemAgent(), Payload: it,
			}); err != nil {
				r.logger.Warn(ctx, "runner: stream sink publish failed", "error", err)
			}
		}

		if r.sessionStore != nil {
			if err := r.persistToSession(ctx, result.NewStepItems); err != nil {
				return nil, fmt.Errorf("runner: persist session: %w", err)
			}
		}

		if result.ModelResponse.ID != "" {
			previousResponseID = result.ModelResponse.ID
		}

		if result.ToolChoiceCleared {
			toolChoiceShadow[currentAgent.Name] = nil
		}

		switch result.NextStep.Kind {
		case step.NextStepHandoff:
			target, ok := currentAgent.HandoffByTargetName(result.NextStep.Target)
			if !ok || target.Target == nil {
				return nil, &apperr.HandoffError{Agent: currentAgent.Name, Target: result.NextStep.Target, Reason: "resolved target not found on agent"}
			}
			if target.OnHandoff != nil {
				if err := target.OnHandoff(ctx, result.NextStep.Input); err != nil {
					r.logger.Warn(ctx, "runner: handoff edge callback failed", "from", currentAgent.Name, "to", target.Target.Name, "error", err)
				}
			}
			if target.Target.OnHandoff != nil {
				if err := target.Target.OnHandoff(ctx, currentAgent.Name, result.NextStep.Input); err != nil {
					r.logger.Warn(ctx, "runner: on_handoff callback failed", "from", currentAgent.Name, "to", target.Target.Name, "error", err)
				}
			}
			r.hooks.Dispatch(ctx, hooks.NewHandoffEvent(rc.RunID, sessionID, currentAgent.Name, target.Target.Name))
			if err := r.sink.Publish(ctx, stream.Event{
				Type: stream.EventHandoff, RunID: rc.RunID, SessionID: sessionID, Agent: currentAgent.Name,
				Payload: map[string]string{"from": currentAgent.Name, "to": target.Target.Name},
			}); err != nil {
				r.logger.Warn(ctx, "runner: stream sink publish failed", "error", err)
			}
			chain = append(chain, target.Target.Name)
			turns++
			if turns >= currentAgent.MaxTurns {
				return nil, &apperr.MaxTurnsExceeded{Agent: currentAgent.Name, Turns: turns, Max: currentAgent.MaxTurns}
			}
			currentAgent = target.Target
			continue

		case step.NextStepRunAgain:
			turns++
			if turns >= currentAgent.MaxTurns {
				return nil, &apperr.MaxTurnsExceeded{Agent: currentAgent.Name, Turns: turns, Max: currentAgent.MaxTurns}
			}
			continue

		case step.NextStepFinalOutput:
			turns++
			r.hooks.Dispatch(ctx, hooks.NewAgentEndEvent(rc.RunID, sessionID, currentAgent.Name, turns))
			if err := r.sink.Publish(ctx, stream.Event{
				Type: stream.EventFinal, RunID: rc.RunID, SessionID: sessionID, Agent: currentAgent.Name, Payload: result.NextStep.FinalOutput,
			}); err != nil {
				r.logger.Warn(ctx, "runner: stream sink publish failed", "error", err)
			}
			messages := make([]item.ProjectedMessage, 0, len(rc.Items()))
			for _, it := range rc.Items() {
				messages = append(messages, item.Project(it))
			}
			return &RunResult{
				FinalOutput: result.NextStep.FinalOutput,
				Messages:    messages,
				LastAgent:   currentAgent,
				Turns:       turns,
				Usage:       totalUsage,
				TurnUsages:  turnUsages,
				ToolResults: toolResults,
				Items:       rc.Items(),
				Metadata:    rc.Metadata,
			}, nil
		}
	}
}

// buildRequestInput assembles the next request's input: original input plus
// the run's item log so far, skipping function_call/message items already
// retained server-side by previousResponseID, always including
// function_call_output, deduping by id within the request being built, and
// enforcing the generated/total item hard caps. The dedup and the hard caps
// are together this run's "context management" pass; RAAF_CONTEXT_MANAGEMENT
// disables it, sending the provider the raw item log instead.
func (r *Runner) buildRequestInput(actingAgent *agent.Agent, rc *runctx.Context, previousResponseID string) ([]item.WireItem, error) {
	if !r.contextManagement {
		out := make([]item.WireItem, 0, len(rc.Items()))
		for _, it := range rc.Items() {
			w, err := item.ToWire(it)
			if err != nil {
				return nil, fmt.Errorf("runner: encode item: %w", err)
			}
			out = append(out, w)
		}
		return out, nil
	}

	requestItemIDs := make(map[string]struct{})
	var generated []item.Item
	for _, it := range rc.Items() {
		if previousResponseID != "" {
			switch it.(type) {
			case item.Message, item.ToolCall, item.HandoffCall:
				continue
			}
		}
		id := it.ItemID()
		if id != "" {
			if _, dup := requestItemIDs[id]; dup {
				continue
			}
			requestItemIDs[id] = struct{}{}
		}
		generated = append(generated, it)
	}

	truncatedGenerated := false
	if len(generated) > maxGeneratedItems {
		generated = generated[len(generated)-maxGeneratedItems:]
		truncatedGenerated = true
	}
	if len(generated) > maxTotalItems {
		generated = generated[len(generated)-maxTotalItems:]
	}
	if truncatedGenerated {
		r.logger.Warn(context.Background(), "runner: truncated generated items beyond hard cap", "agent", actingAgent.Name, "cap", maxGeneratedItems)
	}

	out := make([]item.WireItem, 0, len(generated))
	for _, it := range generated {
		w, err := item.ToWire(it)
		if err != nil {
			return nil, fmt.Errorf("runner: encode item: %w", err)
		}
		out = append(out, w)
		if id := it.ItemID(); id != "" {
			requestItemIDs[id] = struct{}{}
		}
	}
	if len(out) > maxTotalItems {
		r.logger.Warn(context.Background(), "runner: truncated total items beyond hard cap", "agent", actingAgent.Name, "cap", maxTotalItems)
		out = out[len(out)-maxTotalItems:]
	}
	return out, nil
}

func (r *Runner) runInputGuardrails(ctx context.Context, actingAgent *agent.Agent, input []item.Item) error {
	if len(actingAgent.InputGuardrails) == 0 {
		return nil
	}
	var content string
	for _, it := range input {
		if msg, ok := it.(item.Message); ok {
			content = msg.Content
		}
	}
	tripped, name, err := guardrail.RunInputChain(ctx, actingAgent.InputGuardrails, content)
	if err != nil {
		return fmt.Errorf("runner: input guardrail %q: %w", name, err)
	}
	if tripped != nil {
		return apperr.NewInputGuardrailTripwireTriggered(name, content, tripped.OutputInfo)
	}
	return nil
}

// buildSystemPrompt resolves the agent's instructions and prepends the
// standard multi-agent prefix when the agent has handoffs and its
// instructions lack it.
func (r *Runner) buildSystemPrompt(ctx context.Context, actingAgent *agent.Agent, metadata map[string]any) (string, error) {
	instructions, err := actingAgent.ResolveInstructions(ctx, metadata)
	if err != nil {
		return "", fmt.Errorf("runner: resolve instructions: %w", err)
	}
	if len(actingAgent.Handoffs) > 0 && !strings.Contains(instructions, standardPromptPrefix) {
		return standardPromptPrefix + "\n" + instructions, nil
	}
	return instructions, nil
}

func (r *Runner) modelParams(actingAgent *agent.Agent, shadow map[string]*agent.ToolChoice) map[string]any {
	params := make(map[string]any, len(actingAgent.ModelSettings)+1)
	for k, v := range actingAgent.ModelSettings {
		params[k] = v
	}
	tc := actingAgent.ToolChoice
	if cleared, visited := shadow[actingAgent.Name]; visited {
		tc = cleared
	}
	if tc != nil {
		switch tc.Mode {
		case agent.ToolChoiceSpecific:
			params["tool_choice"] = map[string]any{"type": "function", "name": tc.Name}
		default:
			params["tool_choice"] = string(tc.Mode)
		}
	}
	return params
}

func (r *Runner) persistToSession(ctx context.Context, items []item.Item) error {
	for _, it := range items {
		switch v := it.(type) {
		case item.Message:
			if err := r.sessionStore.AddMessage(ctx, session.Message{Role: string(v.Role), Content: v.Content}); err != nil {
				return err
			}
		case item.ToolCallOutput:
			if err := r.sessionStore.AddMessage(ctx, session.Message{Role: "tool", Content: v.Output, ToolCallID: v.CallID}); err != nil {
				return err
			}
		case item.ToolCall:
			if err := r.sessionStore.AddMessage(ctx, session.Message{
				Role: "assistant", ToolCalls: []session.ToolCallRef{{ID: v.CallID, Name: v.Name, ArgumentsJSON: string(v.ArgumentsJSON)}},
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
