// Package apperr defines the typed error taxonomy surfaced to callers of the
// run loop. Every exported type carries enough structured context (agent,
// turn, tool, guardrail) for a caller to explain a failure without parsing a
// message string, following the Message/Cause chain style of a ToolError.
package apperr

import (
	"errors"
	"fmt"
)

// MaxTurnsExceeded is raised when a run's turn budget is exhausted before a
// final output was produced.
type MaxTurnsExceeded struct {
	Agent string
	Turns int
	Max   int
}

func (e *MaxTurnsExceeded) Error() string {
	return fmt.Sprintf("apperr: agent %q exceeded max turns (%d >= %d)", e.Agent, e.Turns, e.Max)
}

// ExecutionStopped is raised when the caller-supplied stop checker reported
// true at a turn boundary or before a tool dispatch.
type ExecutionStopped struct {
	Agent string
	Turn  int
}

func (e *ExecutionStopped) Error() string {
	return fmt.Sprintf("apperr: execution stopped for agent %q at turn %d", e.Agent, e.Turn)
}

// ModelBehaviorError is raised when the provider returns output the engine
// cannot reconcile with the agent's declared tool set: an unknown tool name,
// malformed tool arguments, or an unparseable response.
type ModelBehaviorError struct {
	Agent   string
	Turn    int
	Message string
	Cause   error
}

func (e *ModelBehaviorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("apperr: model behavior error (agent=%q turn=%d): %s: %v", e.Agent, e.Turn, e.Message, e.Cause)
	}
	return fmt.Sprintf("apperr: model behavior error (agent=%q turn=%d): %s", e.Agent, e.Turn, e.Message)
}

func (e *ModelBehaviorError) Unwrap() error { return e.Cause }

// HandoffError is raised when handoff resolution fails in a way the engine
// cannot locally recover from (this taxonomy entry exists for completeness;
// the step processor recovers ordinary resolution failures, cycles, and
// chain-length violations into an assistant error item rather than raising).
type HandoffError struct {
	Agent  string
	Target string
	Reason string
}

func (e *HandoffError) Error() string {
	return fmt.Sprintf("apperr: handoff error (agent=%q target=%q): %s", e.Agent, e.Target, e.Reason)
}

// GuardrailTripwireTriggered is the common shape shared by input and output
// guardrail trips.
type GuardrailTripwireTriggered struct {
	Direction string // "input" or "output"
	Guardrail string
	Content   any
	Metadata  map[string]any
}

func (e *GuardrailTripwireTriggered) Error() string {
	return fmt.Sprintf("apperr: %s guardrail %q tripped", e.Direction, e.Guardrail)
}

// InputGuardrailTripwireTriggered wraps GuardrailTripwireTriggered for input
// guardrails so callers can errors.As against a distinct type.
type InputGuardrailTripwireTriggered struct{ GuardrailTripwireTriggered }

// NewInputGuardrailTripwireTriggered constructs an input-side trip error.
func NewInputGuardrailTripwireTriggered(guardrail string, content any, metadata map[string]any) *InputGuardrailTripwireTriggered {
	return &InputGuardrailTripwireTriggered{GuardrailTripwireTriggered{
		Direction: "input", Guardrail: guardrail, Content: content, Metadata: metadata,
	}}
}

// OutputGuardrailTripwireTriggered wraps GuardrailTripwireTriggered for
// output guardrails so callers can errors.As against a distinct type.
type OutputGuardrailTripwireTriggered struct{ GuardrailTripwireTriggered }

// NewOutputGuardrailTripwireTriggered constructs an output-side trip error.
func NewOutputGuardrailTripwireTriggered(guardrail string, content any, metadata map[string]any) *OutputGuardrailTripwireTriggered {
	return &OutputGuardrailTripwireTriggered{GuardrailTripwireTriggered{
		Direction: "output", Guardrail: guardrail, Content: content, Metadata: metadata,
	}}
}

// InvalidSchema is raised when strict-schema normalization encounters a
// construct it refuses to normalize (currently: additionalProperties=true).
type InvalidSchema struct {
	Path   string
	Reason string
}

func (e *InvalidSchema) Error() string {
	return fmt.Sprintf("apperr: invalid schema at %q: %s", e.Path, e.Reason)
}

// ProviderErrorKind classifies a provider failure into a small set of
// categories, mirroring a typed, inspectable ProviderError used for retry and
// UX decisions.
type ProviderErrorKind string

const (
	ProviderErrorKindAuth           ProviderErrorKind = "auth"
	ProviderErrorKindInvalidRequest ProviderErrorKind = "invalid_request"
	ProviderErrorKindRateLimited    ProviderErrorKind = "rate_limited"
	ProviderErrorKindUnavailable    ProviderErrorKind = "unavailable"
	ProviderErrorKindUnknown        ProviderErrorKind = "unknown"
)

// ProviderError describes an authenticated or exhausted failure from a model
// provider. It is the error surfaced once the retry policy gives up, or
// immediately for non-retryable kinds such as auth failures.
type ProviderError struct {
	Provider  string
	Operation string
	HTTP      int
	Kind      ProviderErrorKind
	Code      string
	Message   string
	RequestID string
	Retryable bool
	Cause     error
}

func (e *ProviderError) Error() string {
	op := e.Operation
	if op == "" {
		op = "request"
	}
	status := ""
	if e.HTTP > 0 {
		status = fmt.Sprintf("%d ", e.HTTP)
	}
	code := ""
	if e.Code != "" {
		code = e.Code + ": "
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = "provider error"
	}
	return fmt.Sprintf("apperr: %s %s %s(%s): %s", e.Provider, e.Kind, status, op, code+msg)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// AsProviderError returns the first ProviderError in err's chain, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// PublicMessage renders a ProviderError's kind as copy fit for display in a
// chat UI, looking the kind up in PublicProviderCopy and falling back to
// PublicProviderCopyDefault for an unmapped or zero-value kind. Callers may
// replace or edit PublicProviderCopy at process startup to localize or
// rebrand this text without forking the module.
func (e *ProviderError) PublicMessage() string {
	if msg, ok := PublicProviderCopy[e.Kind]; ok {
		return msg
	}
	return PublicProviderCopyDefault
}

// PublicProviderCopy maps each ProviderErrorKind to the sentence
// PublicMessage shows a caller's end user. Mutate this map (it is not copied
// per call) before any run starts to rebrand the wording; it is not safe to
// edit concurrently with an in-flight run.
var PublicProviderCopy = map[ProviderErrorKind]string{
	ProviderErrorKindRateLimited:    "The assistant is getting throttled by its model provider. Please wait a moment and try again.",
	ProviderErrorKindUnavailable:    "The assistant's model provider is temporarily unreachable. Please try again shortly.",
	ProviderErrorKindInvalidRequest: "The assistant's model provider rejected this request as malformed.",
	ProviderErrorKindAuth:           "The assistant could not authenticate with its model provider.",
	ProviderErrorKindUnknown:        "The assistant's model provider returned an unexpected error. Please try again.",
}

// PublicProviderCopyDefault is shown for a ProviderErrorKind absent from
// PublicProviderCopy.
var PublicProviderCopyDefault = "The assistant's model provider returned an error. Please try again."
