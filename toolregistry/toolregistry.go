// Package toolregistry implements tool registration and dispatch:
// transitive tool-set collection across handoff targets, JSON schema
// preparation for the provider, and concurrent local-tool execution with
// per-call error isolation.
package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raaf-ai/raaf-go/agent"
	"github.com/raaf-ai/raaf-go/apperr"
	"github.com/raaf-ai/raaf-go/item"
	"github.com/raaf-ai/raaf-go/provider"
	"github.com/raaf-ai/raaf-go/schema"
)

// Collect returns the tool set offered to the model for a: a's own tools
// plus the (deduped by name, first-wins) tools of every agent transitively
// reachable via handoffs, plus a synthetic handoff tool for each of a's
// direct handoffs. Cycles in the handoff graph are broken by a visited
// set, deduping by name first-wins.
func Collect(a *agent.Agent) []agent.Tool {
	seen := make(map[string]struct{})
	visitedAgents := make(map[string]struct{})
	var out []agent.Tool

	add := func(t agent.Tool) {
		if _, dup := seen[t.Name]; dup {
			return
		}
		seen[t.Name] = struct{}{}
		out = append(out, t)
	}

	var walk func(ag *agent.Agent, direct bool)
	walk = func(ag *agent.Agent, direct bool) {
		if ag == nil {
			return
		}
		if _, dup := visitedAgents[ag.Name]; dup {
			return
		}
		visitedAgents[ag.Name] = struct{}{}

		for _, t := range ag.Tools {
			add(t)
		}
		for _, h := range ag.Handoffs {
			if direct {
				add(HandoffTool(h))
			}
			walk(h.Target, false)
		}
	}
	walk(a, true)
	return out
}

// HandoffTool builds the synthetic tool presented to the model for a
// handoff edge.
func HandoffTool(h agent.Handoff) agent.Tool {
	return agent.Tool{
		Name:        h.ResolvedToolName(),
		Description: h.ResolvedToolDescription(),
		Parameters:  h.ResolvedInputSchema(),
		Kind:        agent.ToolKindHandoff,
	}
}

// ToolDefs normalizes tools' schemas to the strict dialect and renders
// them as the provider wire shape.
func ToolDefs(tools []agent.Tool) ([]provider.ToolDef, error) {
	defs := make([]provider.ToolDef, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		normalized, err := schema.Normalize(params)
		if err != nil {
			return nil, fmt.Errorf("toolregistry: normalize schema for tool %q: %w", t.Name, err)
		}
		defs = append(defs, provider.ToolDef{
			Type: "function",
			Name: t.Name,
			Function: provider.ToolDefFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  normalized,
			},
		})
	}
	return defs, nil
}

// Call is one resolved local-tool invocation awaiting dispatch.
type Call struct {
	CallID        string
	Name          string
	ArgumentsJSON json.RawMessage
	Tool          agent.Tool
	Agent         string
	// IdempotencyKey, when non-empty, lets callers dedup retried
	// invocations across a process restart; the registry itself does not
	// enforce dedup, it only threads the key through to CallOutput for
	// the caller's own store.
	IdempotencyKey string
}

// CallOutput is the result of dispatching one Call.
type CallOutput struct {
	CallID         string
	Output         string
	Agent          string
	IsError        bool
	Err            error
	IdempotencyKey string
	StartedAt      time.Time
	Duration       time.Duration
	// Handoff is set when the tool's handler returned a HandoffSentinel;
	// the caller routes such an output to the handoff path instead of
	// appending it as an ordinary tool output item.
	Handoff *agent.HandoffSentinel
}

// Bounds optionally truncates a tool's stringified output when it exceeds a
// caller-configured size, recording how much was dropped.
type Bounds struct {
	MaxOutputBytes int
}

// Apply truncates out.Output in place when it exceeds b.MaxOutputBytes,
// returning the number of bytes dropped (0 if untouched).
func (b Bounds) Apply(out *CallOutput) int {
	if b.MaxOutputBytes <= 0 || len(out.Output) <= b.MaxOutputBytes {
		return 0
	}
	dropped := len(out.Output) - b.MaxOutputBytes
	out.Output = out.Output[:b.MaxOutputBytes]
	return dropped
}

// DispatchAll executes calls concurrently, isolating each call's error
// into its own CallOutput rather than failing the batch, then returns
// outputs ordered by CallID regardless of completion order.
func DispatchAll(ctx context.Context, calls []Call) []CallOutput {
	outputs := make([]CallOutput, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range calls {
		i, c := i, c
		g.Go(func() error {
			outputs[i] = dispatchOne(gctx, c)
			return nil
		})
	}
	_ = g.Wait() // dispatchOne never returns an error to the group; each call is isolated

	sort.SliceStable(outputs, func(i, j int) bool { return outputs[i].CallID < outputs[j].CallID })
	return outputs
}

func dispatchOne(ctx context.Context, c Call) CallOutput {
	start := time.Now()
	out := CallOutput{CallID: c.CallID, Agent: c.Agent, IdempotencyKey: c.IdempotencyKey, StartedAt: start}

	if c.Tool.Handler == nil {
		out.IsError = true
		out.Err = &apperr.ModelBehaviorError{Agent: c.Agent, Message: fmt.Sprintf("tool %q has no handler", c.Name)}
		out.Output = out.Err.Error()
		out.Duration = time.Since(start)
		return out
	}

	if c.Tool.Parameters != nil {
		if verr := schema.ValidateArguments(c.Tool.Parameters, c.ArgumentsJSON); verr != nil {
			out.IsError = true
			out.Err = &apperr.ModelBehaviorError{
				Agent: c.Agent, Message: fmt.Sprintf("invalid tool arguments for %q", c.Name), Cause: verr,
			}
			out.Output = out.Err.Error()
			out.Duration = time.Since(start)
			return out
		}
	}

	result, err := func() (res any, rerr error) {
		defer func() {
			if p := recover(); p != nil {
				rerr = fmt.Errorf("tool %q panicked: %v", c.Name, p)
			}
		}()
		return c.Tool.Handler(ctx, c.ArgumentsJSON)
	}()

	out.Duration = time.Since(start)
	if err != nil {
		out.IsError = true
		out.Err = err
		out.Output = err.Error()
		return out
	}

	if hs, ok := agent.AsHandoffSentinel(result); ok {
		out.Handoff = &hs
		out.Output = "transferring to " + hs.TargetAgent
		return out
	}

	out.Output = Stringify(result)
	return out
}

// Stringify renders a tool result as the ToolCallOutput.Output string:
// strings pass through, everything else is JSON-encoded.
func Stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// ParseArguments parses a tool call's raw JSON arguments, returning a
// ModelBehaviorError on failure instead of panicking.
func ParseArguments(agentName, toolName string, raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apperr.ModelBehaviorError{
			Agent: agentName, Message: fmt.Sprintf("invalid tool arguments for %q", toolName), Cause: err,
		}
	}
	return nil
}

// NewToolCallOutputItem wraps a CallOutput as an item.ToolCallOutput.
func NewToolCallOutputItem(out CallOutput) item.ToolCallOutput {
	return item.ToolCallOutput{CallID: out.CallID, Output: out.Output, Agent: out.Agent}
}
