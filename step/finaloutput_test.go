package step_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaf-ai/raaf-go/agent"
	"github.com/raaf-ai/raaf-go/item"
	"github.com/raaf-ai/raaf-go/step"
)

func assistantMsg(content string) []item.Item {
	return []item.Item{item.Message{ID: "m1", Role: item.RoleAssistant, Content: content, Agent: "Triage"}}
}

func TestFinalOutputPayload_PlainTextPassesThrough(t *testing.T) {
	a := &agent.Agent{Name: "Triage", MaxTurns: 3}
	out := step.FinalOutputPayload(a, assistantMsg("just words"))
	assert.Equal(t, "just words", out)
}

func TestFinalOutputPayload_ParsesBraceContent(t *testing.T) {
	a := &agent.Agent{Name: "Triage", MaxTurns: 3}
	out := step.FinalOutputPayload(a, assistantMsg(`{"score": 7, "ok": true}`))
	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(7), m["score"])
	assert.Equal(t, true, m["ok"])
}

func TestFinalOutputPayload_ParsesCodeFencedJSON(t *testing.T) {
	a := &agent.Agent{Name: "Triage", MaxTurns: 3}
	out := step.FinalOutputPayload(a, assistantMsg("```json\n{\"answer\": 42}\n```"))
	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(42), m["answer"])
}

func TestFinalOutputPayload_NormalizesTopLevelSpacedKeys(t *testing.T) {
	a := &agent.Agent{Name: "Triage", MaxTurns: 3}
	out := step.FinalOutputPayload(a, assistantMsg(`{"Market Name": "EMEA", "nested": {"Inner Key": 1}}`))
	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "EMEA", m["market_name"])
	assert.NotContains(t, m, "Market Name")

	nested, ok := m["nested"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, nested, "Inner Key", "normalization applies only at the top level")
}

func TestFinalOutputPayload_ResponseFormatForcesRepairAttempt(t *testing.T) {
	a := &agent.Agent{Name: "Triage", MaxTurns: 3, ResponseFormat: map[string]any{"type": "object"}}
	out := step.FinalOutputPayload(a, assistantMsg(`Status: {"status": "ok",}`))
	m, ok := out.(map[string]any)
	require.True(t, ok, "a trailing comma should be repaired when a response format is declared")
	assert.Equal(t, "ok", m["status"])
}

func TestFinalOutputPayload_UnrepairableContentReturnsRawString(t *testing.T) {
	a := &agent.Agent{Name: "Triage", MaxTurns: 3, ResponseFormat: map[string]any{"type": "object"}}
	out := step.FinalOutputPayload(a, assistantMsg("no json here at all"))
	assert.Equal(t, "no json here at all", out)
}
