package agent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaf-ai/raaf-go/agent"
)

func TestAgent_Validate_RejectsZeroMaxTurns(t *testing.T) {
	a := &agent.Agent{Name: "A", MaxTurns: 0}
	err := a.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_turns")
}

func TestAgent_Validate_RejectsDuplicateHandoffTargetNames(t *testing.T) {
	b := &agent.Agent{Name: "B", MaxTurns: 1}
	a := &agent.Agent{
		Name:     "A",
		MaxTurns: 1,
		Handoffs: []agent.Handoff{{Target: b}, {Target: b}},
	}
	err := a.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate handoff target name")
}

func TestAgent_Validate_AcceptsWellFormedAgent(t *testing.T) {
	b := &agent.Agent{Name: "B", MaxTurns: 1}
	c := &agent.Agent{Name: "C", MaxTurns: 1}
	a := &agent.Agent{
		Name:     "A",
		MaxTurns: 1,
		Handoffs: []agent.Handoff{{Target: b}, {Target: c}},
	}
	assert.NoError(t, a.Validate())
}

func TestAgent_ToolByName(t *testing.T) {
	a := &agent.Agent{
		Name:  "A",
		Tools: []agent.Tool{{Name: "search"}, {Name: "lookup"}},
	}
	tool, ok := a.ToolByName("lookup")
	require.True(t, ok)
	assert.Equal(t, "lookup", tool.Name)

	_, ok = a.ToolByName("missing")
	assert.False(t, ok)
}

func TestAgent_HandoffByTargetName(t *testing.T) {
	b := &agent.Agent{Name: "Billing"}
	a := &agent.Agent{Name: "Triage", Handoffs: []agent.Handoff{{Target: b}}}

	h, ok := a.HandoffByTargetName("Billing")
	require.True(t, ok)
	assert.Same(t, b, h.Target)

	_, ok = a.HandoffByTargetName("Ghost")
	assert.False(t, ok)
}

func TestAgent_ResolveInstructions_PrefersFunc(t *testing.T) {
	a := &agent.Agent{
		Name:         "A",
		Instructions: "static",
		InstructionsFunc: func(ctx context.Context, meta map[string]any) (string, error) {
			return "dynamic:" + meta["x"].(string), nil
		},
	}
	out, err := a.ResolveInstructions(context.Background(), map[string]any{"x": "y"})
	require.NoError(t, err)
	assert.Equal(t, "dynamic:y", out)
}

func TestAgent_ResolveInstructions_FallsBackToStatic(t *testing.T) {
	a := &agent.Agent{Name: "A", Instructions: "static"}
	out, err := a.ResolveInstructions(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "static", out)
}

func TestAsHandoffSentinel(t *testing.T) {
	hs, ok := agent.AsHandoffSentinel(agent.HandoffSentinel{TargetAgent: "Billing"})
	require.True(t, ok)
	assert.Equal(t, "Billing", hs.TargetAgent)

	_, ok = agent.AsHandoffSentinel("not a sentinel")
	assert.False(t, ok)
}
