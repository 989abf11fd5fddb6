package hooks

import "context"

// EventType identifies which lifecycle phase an Event describes.
type EventType string

const (
	AgentStart EventType = "on_agent_start"
	AgentEnd   EventType = "on_agent_end"
	ToolStart  EventType = "on_tool_start"
	ToolEnd    EventType = "on_tool_end"
	ToolError  EventType = "on_tool_error"
	Handoff    EventType = "on_handoff"
)

// Event is the interface every hook event implements. Subscribers use a type
// switch on the concrete event to access phase-specific fields.
type Event interface {
	Type() EventType
	RunID() string
	SessionID() string
}

type base struct {
	EvtType   EventType
	Run       string
	Session   string
	Agent     string
}

func (b base) Type() EventType  { return b.EvtType }
func (b base) RunID() string    { return b.Run }
func (b base) SessionID() string { return b.Session }

// AgentStartEvent fires when a turn is about to begin for Agent.
type AgentStartEvent struct {
	base
	Turn int
}

// NewAgentStartEvent constructs an AgentStartEvent.
func NewAgentStartEvent(runID, sessionID, agent string, turn int) *AgentStartEvent {
	return &AgentStartEvent{base: base{EvtType: AgentStart, Run: runID, Session: sessionID, Agent: agent}, Turn: turn}
}

// AgentEndEvent fires when a run reaches a terminal state under Agent.
type AgentEndEvent struct {
	base
	Turns int
}

// NewAgentEndEvent constructs an AgentEndEvent.
func NewAgentEndEvent(runID, sessionID, agent string, turns int) *AgentEndEvent {
	return &AgentEndEvent{base: base{EvtType: AgentEnd, Run: runID, Session: sessionID, Agent: agent}, Turns: turns}
}

// ToolStartEvent fires immediately before a local tool call is invoked.
type ToolStartEvent struct {
	base
	ToolName      string
	ArgumentsJSON string
	CallID        string
}

// NewToolStartEvent constructs a ToolStartEvent.
func NewToolStartEvent(runID, sessionID, agent, toolName, argumentsJSON, callID string) *ToolStartEvent {
	return &ToolStartEvent{
		base:          base{EvtType: ToolStart, Run: runID, Session: sessionID, Agent: agent},
		ToolName:      toolName,
		ArgumentsJSON: argumentsJSON,
		CallID:        callID,
	}
}

// ToolEndEvent fires after a local tool call returns a result (success or
// recovered error).
type ToolEndEvent struct {
	base
	ToolName string
	CallID   string
	Output   string
	IsError  bool
}

// NewToolEndEvent constructs a ToolEndEvent.
func NewToolEndEvent(runID, sessionID, agent, toolName, callID, output string, isError bool) *ToolEndEvent {
	return &ToolEndEvent{
		base:     base{EvtType: ToolEnd, Run: runID, Session: sessionID, Agent: agent},
		ToolName: toolName, CallID: callID, Output: output, IsError: isError,
	}
}

// ToolErrorEvent fires when a local tool call panics or returns a Go error
// (distinct from ToolEndEvent's IsError, which covers a recovered tool-level
// failure surfaced as output rather than a call failure).
type ToolErrorEvent struct {
	base
	ToolName string
	CallID   string
	Err      error
}

// NewToolErrorEvent constructs a ToolErrorEvent.
func NewToolErrorEvent(runID, sessionID, agent, toolName, callID string, err error) *ToolErrorEvent {
	return &ToolErrorEvent{
		base:     base{EvtType: ToolError, Run: runID, Session: sessionID, Agent: agent},
		ToolName: toolName, CallID: callID, Err: err,
	}
}

// HandoffEvent fires when control transfers from one agent to another.
type HandoffEvent struct {
	base
	From string
	To   string
}

// NewHandoffEvent constructs a HandoffEvent. Agent is set to From for
// consistency with the other event constructors.
func NewHandoffEvent(runID, sessionID, from, to string) *HandoffEvent {
	return &HandoffEvent{base: base{EvtType: Handoff, Run: runID, Session: sessionID, Agent: from}, From: from, To: to}
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event Event) error

// HandleEvent calls f.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error { return f(ctx, event) }
