// Package handoff implements the Handoff Resolver: target-name
// inference from a "transfer_to_<suffix>" tool name, cycle detection, and
// chain-length enforcement. Handoffs are tool-based only; no text or JSON
// content is ever parsed for handoff intent.
package handoff

import (
	"strings"
)

// MaxChainLength is the maximum number of agents (including the initial
// one) a single run's handoff chain may grow to before a
// HandoffChainTooLong condition is raised.
const MaxChainLength = 5

// ToolNamePrefix is the fixed prefix of every synthetic handoff tool name.
const ToolNamePrefix = "transfer_to_"

// Chain tracks the sequence of agent names a run has transferred control
// through, starting with the initial agent.
type Chain []string

// Contains reports whether name already appears in the chain.
func (c Chain) Contains(name string) bool {
	for _, n := range c {
		if n == name {
			return true
		}
	}
	return false
}

// TooLong reports whether the chain has already reached MaxChainLength,
// i.e. whether appending one more agent is no longer allowed. Checked
// before every switch.
func (c Chain) TooLong() bool {
	return len(c) >= MaxChainLength
}

// compoundWords is a small heuristic table for inferring a PascalCase
// agent name from a lowercase, no-separator tool name suffix (e.g.
// "transfer_to_triageagent" -> "TriageAgent"). Fixed, not
// runtime-extensible.
var compoundWords = map[string]string{
	"triageagent":  "TriageAgent",
	"salesagent":   "SalesAgent",
	"supportagent": "SupportAgent",
	"billingagent": "BillingAgent",
	"weatheragent": "WeatherAgent",
	"bookingagent": "BookingAgent",
	"refundagent":  "RefundAgent",
}

// SuffixFromToolName strips ToolNamePrefix from a handoff tool name. It
// returns the input unchanged if the prefix is absent.
func SuffixFromToolName(toolName string) string {
	return strings.TrimPrefix(toolName, ToolNamePrefix)
}

// candidateNames produces the ordered list of name spellings derived from
// a tool-name suffix, before they are checked against the
// available-targets list: the suffix verbatim, its PascalCase form if it
// already looks PascalCase, an underscore-split capitalization, a
// compound-word table lookup, and a last-resort capitalize-first.
func candidateNames(suffix string) []string {
	candidates := []string{suffix}

	if isPascalCase(suffix) {
		candidates = append(candidates, suffix)
	}

	if strings.Contains(suffix, "_") {
		candidates = append(candidates, capitalizeParts(suffix, "_"))
	}

	if canon, ok := compoundWords[strings.ToLower(suffix)]; ok {
		candidates = append(candidates, canon)
	}

	candidates = append(candidates, capitalizeFirst(suffix))
	return candidates
}

func isPascalCase(s string) bool {
	if s == "" {
		return false
	}
	if s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	return !strings.ContainsAny(s, "_- ")
}

func capitalizeParts(s, sep string) string {
	parts := strings.Split(s, sep)
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(capitalizeFirst(p))
	}
	return b.String()
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Resolve maps a "transfer_to_<suffix>" tool name to the canonical target
// agent name in availableTargets: exact match of
// the raw suffix, then each heuristic candidate spelling, first by direct
// match against availableTargets and then by substring match in either
// direction. Returns ok=false when no target matches.
func Resolve(toolName string, availableTargets []string) (target string, ok bool) {
	suffix := SuffixFromToolName(toolName)

	for _, candidate := range candidateNames(suffix) {
		for _, avail := range availableTargets {
			if candidate == avail {
				return avail, true
			}
		}
	}
	for _, candidate := range candidateNames(suffix) {
		lc := strings.ToLower(candidate)
		for _, avail := range availableTargets {
			la := strings.ToLower(avail)
			if strings.Contains(la, lc) || strings.Contains(lc, la) {
				return avail, true
			}
		}
	}
	return "", false
}

// Outcome classifies what should happen when a handoff tool call is
// validated against the run's current chain.
type Outcome string

const (
	// OutcomeOK means the target is valid and the chain is not full; the
	// caller should switch the current agent to Target.
	OutcomeOK Outcome = "ok"
	// OutcomeUnresolved means no target matched Resolve.
	OutcomeUnresolved Outcome = "unresolved"
	// OutcomeCircular means the target already appears in the chain.
	OutcomeCircular Outcome = "circular"
	// OutcomeChainTooLong means the chain has already reached
	// MaxChainLength.
	OutcomeChainTooLong Outcome = "chain_too_long"
)

// Decision is the result of validating one handoff tool call.
type Decision struct {
	Outcome Outcome
	Target  string
}

// Validate resolves toolName against availableTargets and checks it against
// chain's cycle/length invariants: a target already in the chain is
// circular, a chain at MaxChainLength cannot grow.
// The cycle check is evaluated before the chain-length check, and each has
// its own outcome so the caller can report the precise reason.
func Validate(toolName string, availableTargets []string, chain Chain) Decision {
	target, ok := Resolve(toolName, availableTargets)
	if !ok {
		return Decision{Outcome: OutcomeUnresolved}
	}
	return ValidateTarget(target, availableTargets, chain)
}

// ValidateTarget checks an already-resolved target name (e.g. from a
// handoff sentinel returned by a tool) against availableTargets and the
// chain's cycle/length invariants. Unlike Validate it requires an exact
// name match; no tool-name inference is applied.
func ValidateTarget(target string, availableTargets []string, chain Chain) Decision {
	found := false
	for _, a := range availableTargets {
		if a == target {
			found = true
			break
		}
	}
	if !found {
		return Decision{Outcome: OutcomeUnresolved, Target: target}
	}
	if chain.Contains(target) {
		return Decision{Outcome: OutcomeCircular, Target: target}
	}
	if chain.TooLong() {
		return Decision{Outcome: OutcomeChainTooLong, Target: target}
	}
	return Decision{Outcome: OutcomeOK, Target: target}
}
