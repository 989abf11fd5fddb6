package runner_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaf-ai/raaf-go/agent"
	"github.com/raaf-ai/raaf-go/apperr"
	"github.com/raaf-ai/raaf-go/hooks"
	"github.com/raaf-ai/raaf-go/item"
	"github.com/raaf-ai/raaf-go/provider"
	"github.com/raaf-ai/raaf-go/runner"
	"github.com/raaf-ai/raaf-go/telemetry"
)

type recordingSubscriber struct{ seen []hooks.Event }

func (s *recordingSubscriber) HandleEvent(ctx context.Context, evt hooks.Event) error {
	s.seen = append(s.seen, evt)
	return nil
}

func textWire(id, text string) item.WireItem {
	content, _ := json.Marshal(text)
	return item.WireItem{Type: item.WireTypeMessage, ID: id, Role: "assistant", Content: content}
}

// scriptedProvider returns one scripted Response per call, replaying the
// final entry for any calls beyond the script length.
type scriptedProvider struct {
	responses []provider.Response
	calls     int
}

func (s *scriptedProvider) ResponsesCompletion(ctx context.Context, req provider.Request) (provider.Response, error) {
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	return s.responses[i], nil
}
func (s *scriptedProvider) SupportsFunctionCalling() bool { return true }

func TestRun_SingleTurnFinalOutput(t *testing.T) {
	a := &agent.Agent{Name: "Triage", MaxTurns: 3, Instructions: "You triage requests."}
	p := &scriptedProvider{responses: []provider.Response{
		{ID: "r1", Output: []item.WireItem{textWire("m1", "the answer is 42")}},
	}}
	r := runner.New(runner.WithProvider(p))

	result, err := r.Run(context.Background(), a, "what is the answer?", "sess1", nil)
	require.NoError(t, err)
	assert.Equal(t, "the answer is 42", result.FinalOutput)
	assert.Equal(t, a, result.LastAgent)
	assert.Equal(t, 1, result.Turns)

	require.GreaterOrEqual(t, len(result.Messages), 3)
	assert.Equal(t, item.RoleSystem, result.Messages[0].Role)
	assert.Equal(t, "You triage requests.", result.Messages[0].Content)
	assert.Equal(t, item.RoleUser, result.Messages[1].Role)
	assert.Equal(t, "what is the answer?", result.Messages[1].Content)
	assert.Equal(t, item.RoleAssistant, result.Messages[2].Role)
	assert.Equal(t, "the answer is 42", result.Messages[2].Content)
}

func TestRun_MaxTurnsExceeded(t *testing.T) {
	tool := agent.Tool{
		Name: "loop", Kind: agent.ToolKindLocal,
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) { return "again", nil },
	}
	a := &agent.Agent{Name: "Looper", MaxTurns: 1, Tools: []agent.Tool{tool}}
	resp := provider.Response{ID: "r1", Output: []item.WireItem{
		{Type: item.WireTypeFunctionCall, ID: "fc_1", CallID: "fc_1", Name: "loop", Arguments: json.RawMessage(`{}`)},
	}}
	p := &scriptedProvider{responses: []provider.Response{resp}}
	r := runner.New(runner.WithProvider(p))

	_, err := r.Run(context.Background(), a, "go", "sess1", nil)
	require.Error(t, err)
	var maxTurns *apperr.MaxTurnsExceeded
	assert.ErrorAs(t, err, &maxTurns)
}

func TestRun_HandoffSwitchesAgentAndContinues(t *testing.T) {
	billing := &agent.Agent{Name: "Billing", MaxTurns: 3, Instructions: "You handle billing."}
	triage := &agent.Agent{Name: "Triage", MaxTurns: 3, Instructions: "You triage.", Handoffs: []agent.Handoff{{Target: billing}}}

	p := &scriptedProvider{responses: []provider.Response{
		{ID: "r1", Output: []item.WireItem{
			{Type: item.WireTypeFunctionCall, ID: "fc_1", CallID: "fc_1", Name: "transfer_to_billing", Arguments: json.RawMessage(`{}`)},
		}},
		{ID: "r2", Output: []item.WireItem{textWire("m2", "your balance is $0")}},
	}}
	r := runner.New(runner.WithProvider(p))

	result, err := r.Run(context.Background(), triage, "what do I owe?", "sess1", nil)
	require.NoError(t, err)
	assert.Equal(t, "your balance is $0", result.FinalOutput)
	assert.Equal(t, billing, result.LastAgent)
	// The handoff-emitting turn and the final-output turn each consume
	// one of the turn budget.
	assert.Equal(t, 2, result.Turns)
}

func TestRun_RequiresProvider(t *testing.T) {
	a := &agent.Agent{Name: "Triage", MaxTurns: 3}
	r := runner.New()
	_, err := r.Run(context.Background(), a, "hi", "sess1", nil)
	assert.Error(t, err)
}

func TestNew_DisableTracingEnvOverridesSuppliedHooks(t *testing.T) {
	t.Setenv("RAAF_DISABLE_TRACING", "true")

	dispatcher := hooks.NewDispatcher(telemetry.NewNoopLogger())
	sub := &recordingSubscriber{}
	_, err := dispatcher.RunBus.Register(sub)
	require.NoError(t, err)

	a := &agent.Agent{Name: "Triage", MaxTurns: 3}
	p := &scriptedProvider{responses: []provider.Response{
		{ID: "r1", Output: []item.WireItem{textWire("m1", "done")}},
	}}
	r := runner.New(runner.WithProvider(p), runner.WithHooks(dispatcher))

	_, err = r.Run(context.Background(), a, "hi", "sess1", nil)
	require.NoError(t, err)
	assert.Empty(t, sub.seen, "RAAF_DISABLE_TRACING should force the runner onto a no-op dispatcher")
}

func TestRun_ContextManagementEnvDisablesDedupAndCaps(t *testing.T) {
	t.Setenv("RAAF_CONTEXT_MANAGEMENT", "off")

	a := &agent.Agent{Name: "Triage", MaxTurns: 3}
	p := &scriptedProvider{responses: []provider.Response{
		{ID: "r1", Output: []item.WireItem{textWire("m1", "done")}},
	}}
	r := runner.New(runner.WithProvider(p))

	result, err := r.Run(context.Background(), a, "hi", "sess1", nil)
	require.NoError(t, err)
	assert.Equal(t, "done", result.FinalOutput)
}

// recordingProvider captures every request so tests can assert on the exact
// wire input the runner built for each turn.
type recordingProvider struct {
	responses []provider.Response
	requests  []provider.Request
}

func (p *recordingProvider) ResponsesCompletion(ctx context.Context, req provider.Request) (provider.Response, error) {
	i := len(p.requests)
	p.requests = append(p.requests, req)
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	return p.responses[i], nil
}
func (p *recordingProvider) SupportsFunctionCalling() bool { return true }

func TestRun_ToolCallThenAnswer(t *testing.T) {
	add := agent.Tool{
		Name: "add", Kind: agent.ToolKindLocal,
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"a": map[string]any{"type": "number"}, "b": map[string]any{"type": "number"}},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct{ A, B int }
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return in.A + in.B, nil
		},
	}
	a := &agent.Agent{Name: "Calc", MaxTurns: 3, Tools: []agent.Tool{add}}
	p := &scriptedProvider{responses: []provider.Response{
		{ID: "r1", Output: []item.WireItem{
			{Type: item.WireTypeFunctionCall, ID: "fc_1", CallID: "fc_1", Name: "add", Arguments: json.RawMessage(`{"a":2,"b":3}`)},
		}},
		{ID: "r2", Output: []item.WireItem{textWire("m2", "5")}},
	}}
	r := runner.New(runner.WithProvider(p))

	result, err := r.Run(context.Background(), a, "add 2 and 3", "sess1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Turns)
	require.Len(t, result.ToolResults, 1)
	assert.Equal(t, "5", result.ToolResults[0].Output)

	n := len(result.Items)
	require.GreaterOrEqual(t, n, 3)
	_, isCall := result.Items[n-3].(item.ToolCall)
	out, isOutput := result.Items[n-2].(item.ToolCallOutput)
	msg, isMsg := result.Items[n-1].(item.Message)
	assert.True(t, isCall)
	require.True(t, isOutput)
	assert.Equal(t, "5", out.Output)
	require.True(t, isMsg)
	assert.Equal(t, "5", msg.Content)
}

func TestRun_CircularHandoffBlockedAndRunContinues(t *testing.T) {
	billing := &agent.Agent{Name: "Billing", MaxTurns: 5}
	triage := &agent.Agent{Name: "Triage", MaxTurns: 5}
	triage.Handoffs = []agent.Handoff{{Target: billing}}
	billing.Handoffs = []agent.Handoff{{Target: triage}}

	p := &scriptedProvider{responses: []provider.Response{
		{ID: "r1", Output: []item.WireItem{
			{Type: item.WireTypeFunctionCall, ID: "fc_1", CallID: "fc_1", Name: "transfer_to_billing", Arguments: json.RawMessage(`{}`)},
		}},
		{ID: "r2", Output: []item.WireItem{
			{Type: item.WireTypeFunctionCall, ID: "fc_2", CallID: "fc_2", Name: "transfer_to_triage", Arguments: json.RawMessage(`{}`)},
		}},
		{ID: "r3", Output: []item.WireItem{textWire("m3", "done")}},
	}}
	r := runner.New(runner.WithProvider(p))

	result, err := r.Run(context.Background(), triage, "help", "sess1", nil)
	require.NoError(t, err, "a circular handoff is recovered locally, not surfaced")
	assert.Equal(t, billing, result.LastAgent)
	assert.Equal(t, "done", result.FinalOutput)

	var sawCircularNote bool
	for _, m := range result.Messages {
		if m.Role == item.RoleAssistant && strings.Contains(m.Content, "circular") {
			sawCircularNote = true
		}
	}
	assert.True(t, sawCircularNote, "the blocked handoff should leave a synthetic assistant error message")
}

func TestRun_DedupWithPreviousResponseID(t *testing.T) {
	add := agent.Tool{
		Name: "add", Kind: agent.ToolKindLocal,
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) { return "5", nil },
	}
	a := &agent.Agent{Name: "Calc", MaxTurns: 3, Tools: []agent.Tool{add}}
	p := &recordingProvider{responses: []provider.Response{
		{ID: "r1", Output: []item.WireItem{
			{Type: item.WireTypeFunctionCall, ID: "fc_123", CallID: "fc_123", Name: "add", Arguments: json.RawMessage(`{"a":2,"b":3}`)},
		}},
		{ID: "r2", Output: []item.WireItem{textWire("m2", "5")}},
	}}
	r := runner.New(runner.WithProvider(p))

	_, err := r.Run(context.Background(), a, "add", "sess1", nil)
	require.NoError(t, err)
	require.Len(t, p.requests, 2)

	second := p.requests[1]
	assert.Equal(t, "r1", second.PreviousResponseID)
	var sawOutput bool
	for _, w := range second.Input {
		assert.NotEqual(t, item.WireTypeFunctionCall, w.Type, "provider retains function_call items server-side")
		assert.NotEqual(t, item.WireTypeMessage, w.Type, "provider retains message items server-side")
		if w.Type == item.WireTypeFunctionCallOutput {
			sawOutput = true
			assert.Equal(t, "call_123", w.CallID, "fc_ ids must be echoed back with the call_ prefix")
		}
	}
	assert.True(t, sawOutput, "function_call_output must always be re-sent")
}

func TestRun_ParallelToolExecution(t *testing.T) {
	wait := agent.Tool{
		Name: "wait", Kind: agent.ToolKindLocal,
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			time.Sleep(50 * time.Millisecond)
			return "ok", nil
		},
	}
	a := &agent.Agent{Name: "Sleeper", MaxTurns: 3, Tools: []agent.Tool{wait}}
	p := &scriptedProvider{responses: []provider.Response{
		{ID: "r1", Output: []item.WireItem{
			{Type: item.WireTypeFunctionCall, ID: "fc_3", CallID: "call_3", Name: "wait", Arguments: json.RawMessage(`{}`)},
			{Type: item.WireTypeFunctionCall, ID: "fc_1", CallID: "call_1", Name: "wait", Arguments: json.RawMessage(`{}`)},
			{Type: item.WireTypeFunctionCall, ID: "fc_2", CallID: "call_2", Name: "wait", Arguments: json.RawMessage(`{}`)},
		}},
		{ID: "r2", Output: []item.WireItem{textWire("m2", "done")}},
	}}
	r := runner.New(runner.WithProvider(p))

	start := time.Now()
	result, err := r.Run(context.Background(), a, "sleep", "sess1", nil)
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Less(t, elapsed, 150*time.Millisecond, "three 50ms tools must run concurrently, not sequentially")

	var outputOrder []string
	for _, it := range result.Items {
		if out, ok := it.(item.ToolCallOutput); ok {
			outputOrder = append(outputOrder, out.CallID)
		}
	}
	assert.Equal(t, []string{"call_1", "call_2", "call_3"}, outputOrder)
}

func TestRun_UsageSumsAcrossTurns(t *testing.T) {
	loop := agent.Tool{
		Name: "loop", Kind: agent.ToolKindLocal,
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) { return "again", nil },
	}
	a := &agent.Agent{Name: "Counter", MaxTurns: 3, Tools: []agent.Tool{loop}}
	p := &scriptedProvider{responses: []provider.Response{
		{ID: "r1", Usage: provider.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, Output: []item.WireItem{
			{Type: item.WireTypeFunctionCall, ID: "fc_1", CallID: "fc_1", Name: "loop", Arguments: json.RawMessage(`{}`)},
		}},
		{ID: "r2", Usage: provider.Usage{InputTokens: 20, OutputTokens: 8, TotalTokens: 28}, Output: []item.WireItem{textWire("m2", "done")}},
	}}
	r := runner.New(runner.WithProvider(p))

	result, err := r.Run(context.Background(), a, "go", "sess1", nil)
	require.NoError(t, err)
	assert.Equal(t, provider.Usage{InputTokens: 30, OutputTokens: 13, TotalTokens: 43}, result.Usage)
	require.Len(t, result.TurnUsages, 2)
	assert.Equal(t, 15, result.TurnUsages[0].Usage.TotalTokens)
	assert.Equal(t, 28, result.TurnUsages[1].Usage.TotalTokens)
}

func TestRun_StopCheckerRaisesExecutionStopped(t *testing.T) {
	a := &agent.Agent{Name: "Triage", MaxTurns: 3}
	p := &scriptedProvider{responses: []provider.Response{
		{ID: "r1", Output: []item.WireItem{textWire("m1", "never reached")}},
	}}
	r := runner.New(runner.WithProvider(p), runner.WithStopChecker(func() bool { return true }))

	_, err := r.Run(context.Background(), a, "hi", "sess1", nil)
	require.Error(t, err)
	var stopped *apperr.ExecutionStopped
	assert.ErrorAs(t, err, &stopped)
}
