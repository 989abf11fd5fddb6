// Package guardrail implements Guardrails: input validators that run
// before the first model call of a turn, and output validators that run
// against each response's assistant content, either of which may trip a
// tripwire or (output only) filter content without tripping.
package guardrail

import "context"

// Result is what a Guardrail's Run returns.
type Result struct {
	// TripwireTriggered, when true, causes the engine to raise a
	// guardrail tripwire error carrying Content/Metadata.
	TripwireTriggered bool
	// OutputInfo carries arbitrary diagnostic metadata. An output
	// guardrail that wants to filter content without tripping sets
	// OutputInfo["filtered_output"] to the replacement payload.
	OutputInfo map[string]any
}

// FilteredOutput returns OutputInfo["filtered_output"] and whether it was
// set.
func (r Result) FilteredOutput() (any, bool) {
	if r.OutputInfo == nil {
		return nil, false
	}
	v, ok := r.OutputInfo["filtered_output"]
	return v, ok
}

// Guardrail validates (and, for output guardrails, may rewrite) a single
// piece of content.
type Guardrail interface {
	Name() string
	Run(ctx context.Context, content any) (Result, error)
}

// Func adapts a plain function to the Guardrail interface.
type Func struct {
	GuardrailName string
	Check         func(ctx context.Context, content any) (Result, error)
}

func (f Func) Name() string { return f.GuardrailName }

func (f Func) Run(ctx context.Context, content any) (Result, error) {
	return f.Check(ctx, content)
}

// RunInputChain runs every input guardrail in order against content,
// stopping and returning the first tripped Result (with its guardrail name)
// or the first error encountered.
func RunInputChain(ctx context.Context, chain []Guardrail, content any) (tripped *Result, trippedBy string, err error) {
	for _, g := range chain {
		res, rerr := g.Run(ctx, content)
		if rerr != nil {
			return nil, g.Name(), rerr
		}
		if res.TripwireTriggered {
			r := res
			return &r, g.Name(), nil
		}
	}
	return nil, "", nil
}

// RunOutputChain runs every output guardrail in order against content,
// applying any filtered_output from a non-tripped result to the content
// seen by the next guardrail in the chain. It returns the final (possibly
// filtered) content, or a tripped Result with its guardrail name, or the
// first error encountered.
func RunOutputChain(ctx context.Context, chain []Guardrail, content any) (finalContent any, tripped *Result, trippedBy string, err error) {
	current := content
	for _, g := range chain {
		res, rerr := g.Run(ctx, current)
		if rerr != nil {
			return current, nil, g.Name(), rerr
		}
		if res.TripwireTriggered {
			r := res
			return current, &r, g.Name(), nil
		}
		if filtered, ok := res.FilteredOutput(); ok {
			current = filtered
		}
	}
	return current, nil, "", nil
}
