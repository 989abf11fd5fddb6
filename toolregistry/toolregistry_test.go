package toolregistry_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaf-ai/raaf-go/agent"
	"github.com/raaf-ai/raaf-go/toolregistry"
)

func echoTool(name string) agent.Tool {
	return agent.Tool{
		Name: name,
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"msg": map[string]any{"type": "string"}},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct{ Msg string }
			_ = json.Unmarshal(args, &in)
			return in.Msg, nil
		},
	}
}

func TestCollect_DedupsAndBreaksCycles(t *testing.T) {
	billing := &agent.Agent{Name: "Billing", Tools: []agent.Tool{echoTool("shared")}}
	triage := &agent.Agent{Name: "Triage", Tools: []agent.Tool{echoTool("shared")}, Handoffs: []agent.Handoff{{Target: billing}}}
	billing.Handoffs = []agent.Handoff{{Target: triage}} // cycle back to triage

	tools := toolregistry.Collect(triage)

	names := make(map[string]int)
	for _, tl := range tools {
		names[tl.Name]++
	}
	assert.Equal(t, 1, names["shared"], "first-wins dedup should keep a single copy of the shared tool name")
	assert.Equal(t, 1, names["transfer_to_billing"])
}

func TestDispatchAll_OrdersByCallIDAndIsolatesPanics(t *testing.T) {
	okTool := echoTool("ok")
	panicTool := agent.Tool{Name: "boom", Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
		panic("kaboom")
	}}

	calls := []toolregistry.Call{
		{CallID: "call_2", Name: "boom", Tool: panicTool},
		{CallID: "call_1", Name: "ok", Tool: okTool, ArgumentsJSON: json.RawMessage(`{"msg":"hi"}`)},
	}

	outputs := toolregistry.DispatchAll(context.Background(), calls)
	require.Len(t, outputs, 2)
	assert.Equal(t, "call_1", outputs[0].CallID)
	assert.Equal(t, "hi", outputs[0].Output)
	assert.False(t, outputs[0].IsError)

	assert.Equal(t, "call_2", outputs[1].CallID)
	assert.True(t, outputs[1].IsError)
}

func TestBounds_ApplyTruncates(t *testing.T) {
	b := toolregistry.Bounds{MaxOutputBytes: 4}
	out := toolregistry.CallOutput{Output: "abcdefgh"}
	dropped := b.Apply(&out)
	assert.Equal(t, "abcd", out.Output)
	assert.Equal(t, 4, dropped)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", toolregistry.Stringify(nil))
	assert.Equal(t, "hello", toolregistry.Stringify("hello"))
	assert.Equal(t, `{"a":1}`, toolregistry.Stringify(map[string]int{"a": 1}))
}

func TestDispatchAll_RejectsArgumentsNotMatchingDeclaredSchema(t *testing.T) {
	typedTool := agent.Tool{
		Name: "add",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"a": map[string]any{"type": "number"}, "b": map[string]any{"type": "number"}},
			"required":   []string{"a", "b"},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) { return "unreachable", nil },
	}

	calls := []toolregistry.Call{
		{CallID: "call_1", Name: "add", Tool: typedTool, ArgumentsJSON: json.RawMessage(`{"a":"not a number","b":3}`)},
	}
	outputs := toolregistry.DispatchAll(context.Background(), calls)
	require.Len(t, outputs, 1)
	assert.True(t, outputs[0].IsError)
	assert.Contains(t, outputs[0].Output, "invalid tool arguments")
}

func TestToolDefs_NormalizesSchema(t *testing.T) {
	defs, err := toolregistry.ToolDefs([]agent.Tool{echoTool("greet")})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, false, defs[0].Function.Parameters["additionalProperties"])
}
