// Package agent declares the static configuration types that make up a
// multi-agent system: Agent, Tool, and Handoff. These types are
// immutable once constructed and are shared read-only across runs; all
// mutable per-run state lives in runctx.Context instead.
package agent

// Ident is the strong type for agent names. Use this type when referencing
// agents in maps or APIs to avoid accidental mixing with free-form strings.
type Ident string

// ToolIdent is the strong type for tool names, unique within a single
// agent's tool set.
type ToolIdent string
