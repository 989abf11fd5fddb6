// Package respproc implements the Response Processor: a single pass
// over a provider response's output items that categorizes each into a
// message, a handoff request, a local function call, or a hosted-tool
// record, without mutating the agent or the run.
package respproc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/raaf-ai/raaf-go/agent"
	"github.com/raaf-ai/raaf-go/apperr"
	"github.com/raaf-ai/raaf-go/item"
	"github.com/raaf-ai/raaf-go/provider"
	"github.com/raaf-ai/raaf-go/telemetry"
	"github.com/raaf-ai/raaf-go/toolregistry"
)

// ToolRunHandoff is a resolved request to invoke a handoff tool.
type ToolRunHandoff struct {
	CallID        string
	ToolName      string
	ArgumentsJSON json.RawMessage
	Item          item.HandoffCall
}

// ToolRunFunction is a resolved request to invoke a local function tool.
type ToolRunFunction struct {
	CallID        string
	ToolName      string
	ArgumentsJSON json.RawMessage
	Tool          agent.Tool
	Item          item.ToolCall
}

// hostedTypes enumerates wire item types the provider executes itself;
// the engine only records that they ran.
var hostedTypes = map[string]struct{}{
	item.WireTypeFileSearch:  {},
	item.WireTypeWebSearch:   {},
	item.WireTypeComputerUse: {},
	item.WireTypeLocalShell:  {},
}

// ProcessedResponse is the categorized result of one pass over a response's
// output.
type ProcessedResponse struct {
	NewItems        []item.Item
	Handoffs        []ToolRunHandoff
	Functions       []ToolRunFunction
	ComputerActions []item.WireItem
	LocalShellCalls []item.WireItem
	ToolsUsed       []string
}

// Process categorizes resp.Output for actingAgent, resolving each
// function_call's name against the agent's own tools, its handoff tools,
// and its transitively reachable tools. Unknown function names raise
// ModelBehaviorError; unknown item types degrade to a Message and are
// logged at Warn.
func Process(ctx context.Context, resp provider.Response, actingAgent *agent.Agent, log telemetry.Logger) (ProcessedResponse, error) {
	handoffNames := make(map[string]agent.Handoff, len(actingAgent.Handoffs))
	for _, h := range actingAgent.Handoffs {
		handoffNames[h.ResolvedToolName()] = h
	}
	localTools := make(map[string]agent.Tool)
	for _, t := range toolregistry.Collect(actingAgent) {
		if t.Kind == agent.ToolKindLocal || t.Kind == agent.ToolKindHosted {
			localTools[t.Name] = t
		}
	}

	var out ProcessedResponse
	for _, w := range resp.Output {
		switch w.Type {
		case item.WireTypeMessage, item.WireTypeOutputText:
			msg := item.Message{
				ID:      w.ID,
				Role:    messageRole(w.Role),
				Content: w.Text(),
				Agent:   actingAgent.Name,
			}
			out.NewItems = append(out.NewItems, msg)

		case item.WireTypeFunctionCall:
			id := w.ID
			if id == "" {
				id = item.NewID()
			}
			if _, isHandoff := handoffNames[w.Name]; isHandoff {
				hc := item.HandoffCall{
					ID: id, CallID: item.NormalizeCallID(w.CallID), Name: w.Name,
					ArgumentsJSON: w.Arguments, Agent: actingAgent.Name,
				}
				out.NewItems = append(out.NewItems, hc)
				out.Handoffs = append(out.Handoffs, ToolRunHandoff{
					CallID: hc.CallID, ToolName: w.Name, ArgumentsJSON: w.Arguments, Item: hc,
				})
				out.ToolsUsed = append(out.ToolsUsed, w.Name)
				continue
			}
			tool, ok := localTools[w.Name]
			if !ok {
				return out, &apperr.ModelBehaviorError{
					Agent: actingAgent.Name, Message: fmt.Sprintf("tool not found: %q", w.Name),
				}
			}
			tc := item.ToolCall{
				ID: id, CallID: item.NormalizeCallID(w.CallID), Name: w.Name,
				ArgumentsJSON: w.Arguments, Agent: actingAgent.Name,
			}
			out.NewItems = append(out.NewItems, tc)
			out.ToolsUsed = append(out.ToolsUsed, w.Name)
			if tool.Kind == agent.ToolKindHosted {
				// Hosted tools execute provider-side; the call item is
				// recorded but not dispatched through toolregistry.
				continue
			}
			out.Functions = append(out.Functions, ToolRunFunction{
				CallID: tc.CallID, ToolName: w.Name, ArgumentsJSON: w.Arguments, Tool: tool, Item: tc,
			})

		case item.WireTypeFunctionCallOutput:
			// Only ever appears on the request side; a provider would not
			// echo one back, but tolerate it defensively as a no-op.
			continue

		default:
			if _, hosted := hostedTypes[w.Type]; hosted {
				out.ToolsUsed = append(out.ToolsUsed, w.Type)
				switch w.Type {
				case item.WireTypeComputerUse:
					out.ComputerActions = append(out.ComputerActions, w)
				case item.WireTypeLocalShell:
					out.LocalShellCalls = append(out.LocalShellCalls, w)
				}
				out.NewItems = append(out.NewItems, item.Message{
					ID: w.ID, Role: item.RoleAssistant, Content: w.Text(), Agent: actingAgent.Name,
				})
				continue
			}
			if log != nil {
				log.Warn(ctx, "respproc: unknown output item type, degrading to message", "type", w.Type)
			}
			out.NewItems = append(out.NewItems, item.Message{
				ID: w.ID, Role: item.RoleAssistant, Content: w.Text(), Agent: actingAgent.Name,
			})
		}
	}
	return out, nil
}

func messageRole(wireRole string) item.Role {
	switch wireRole {
	case "user":
		return item.RoleUser
	case "system":
		return item.RoleSystem
	default:
		return item.RoleAssistant
	}
}
