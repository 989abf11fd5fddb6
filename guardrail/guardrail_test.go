package guardrail_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaf-ai/raaf-go/guardrail"
)

func ok(name string) guardrail.Guardrail {
	return guardrail.Func{GuardrailName: name, Check: func(ctx context.Context, content any) (guardrail.Result, error) {
		return guardrail.Result{}, nil
	}}
}

func tripwire(name string) guardrail.Guardrail {
	return guardrail.Func{GuardrailName: name, Check: func(ctx context.Context, content any) (guardrail.Result, error) {
		return guardrail.Result{TripwireTriggered: true, OutputInfo: map[string]any{"reason": "blocked"}}, nil
	}}
}

func failing(name string, err error) guardrail.Guardrail {
	return guardrail.Func{GuardrailName: name, Check: func(ctx context.Context, content any) (guardrail.Result, error) {
		return guardrail.Result{}, err
	}}
}

func filtering(name, replacement string) guardrail.Guardrail {
	return guardrail.Func{GuardrailName: name, Check: func(ctx context.Context, content any) (guardrail.Result, error) {
		return guardrail.Result{OutputInfo: map[string]any{"filtered_output": replacement}}, nil
	}}
}

func TestResult_FilteredOutput(t *testing.T) {
	r := guardrail.Result{OutputInfo: map[string]any{"filtered_output": "clean"}}
	v, has := r.FilteredOutput()
	require.True(t, has)
	assert.Equal(t, "clean", v)

	_, has = guardrail.Result{}.FilteredOutput()
	assert.False(t, has)
}

func TestRunInputChain_AllPass(t *testing.T) {
	tripped, name, err := guardrail.RunInputChain(context.Background(), []guardrail.Guardrail{ok("a"), ok("b")}, "hello")
	require.NoError(t, err)
	assert.Nil(t, tripped)
	assert.Empty(t, name)
}

func TestRunInputChain_StopsAtFirstTripwire(t *testing.T) {
	calledThird := false
	third := guardrail.Func{GuardrailName: "third", Check: func(ctx context.Context, content any) (guardrail.Result, error) {
		calledThird = true
		return guardrail.Result{}, nil
	}}
	tripped, name, err := guardrail.RunInputChain(context.Background(), []guardrail.Guardrail{ok("a"), tripwire("b"), third}, "hello")
	require.NoError(t, err)
	require.NotNil(t, tripped)
	assert.Equal(t, "b", name)
	assert.False(t, calledThird)
}

func TestRunInputChain_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	tripped, name, err := guardrail.RunInputChain(context.Background(), []guardrail.Guardrail{failing("a", boom)}, "hello")
	assert.Nil(t, tripped)
	assert.Equal(t, "a", name)
	assert.ErrorIs(t, err, boom)
}

func TestRunOutputChain_AppliesFilterToLaterGuardrails(t *testing.T) {
	var seen []any
	recorder := guardrail.Func{GuardrailName: "recorder", Check: func(ctx context.Context, content any) (guardrail.Result, error) {
		seen = append(seen, content)
		return guardrail.Result{}, nil
	}}
	final, tripped, name, err := guardrail.RunOutputChain(context.Background(), []guardrail.Guardrail{filtering("f", "redacted"), recorder}, "raw")
	require.NoError(t, err)
	assert.Nil(t, tripped)
	assert.Empty(t, name)
	assert.Equal(t, "redacted", final)
	require.Len(t, seen, 1)
	assert.Equal(t, "redacted", seen[0])
}

func TestRunOutputChain_StopsAtTripwireAndReturnsContentSoFar(t *testing.T) {
	final, tripped, name, err := guardrail.RunOutputChain(context.Background(), []guardrail.Guardrail{filtering("f", "redacted"), tripwire("g")}, "raw")
	require.NoError(t, err)
	require.NotNil(t, tripped)
	assert.Equal(t, "g", name)
	assert.Equal(t, "redacted", final)
}
