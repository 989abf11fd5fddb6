// Package agentconfig loads Agent/Tool/Handoff declarations from YAML: a
// package-level Load function reads a file, yaml.Unmarshals it into a
// tagged struct, and validates required fields before returning.
//
// A Document is static, declarative data: agent names, instructions, model
// identifiers, turn budgets, and the *names* of tools/guardrails/handoff
// targets. It cannot carry Go callables, so Build resolves those names
// against caller-supplied registries (a ToolSet and a GuardrailSet) and
// wires handoffs across agents declared in the same document. This
// supplements the programmatic construction API (callers building
// agent.Agent values directly in Go); it does not replace it.
package agentconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/raaf-ai/raaf-go/agent"
	"github.com/raaf-ai/raaf-go/guardrail"
)

// Document is the top-level YAML shape: an ordered list of agent
// declarations.
type Document struct {
	Version int              `yaml:"version" json:"version"`
	Agents  []AgentConfig    `yaml:"agents" json:"agents"`
}

// AgentConfig declares one agent. Tools, InputGuardrails, and
// OutputGuardrails name entries in the ToolSet/GuardrailSet passed to
// Build; Handoffs name other AgentConfig.Name values in the same Document.
type AgentConfig struct {
	Name               string           `yaml:"name" json:"name"`
	Instructions       string           `yaml:"instructions" json:"instructions"`
	Model              string           `yaml:"model" json:"model"`
	MaxTurns           int              `yaml:"max_turns" json:"max_turns"`
	HandoffDescription string           `yaml:"handoff_description,omitempty" json:"handoff_description,omitempty"`
	Tools              []string         `yaml:"tools,omitempty" json:"tools,omitempty"`
	Handoffs           []HandoffConfig  `yaml:"handoffs,omitempty" json:"handoffs,omitempty"`
	InputGuardrails    []string         `yaml:"input_guardrails,omitempty" json:"input_guardrails,omitempty"`
	OutputGuardrails   []string         `yaml:"output_guardrails,omitempty" json:"output_guardrails,omitempty"`
	ToolChoice         string           `yaml:"tool_choice,omitempty" json:"tool_choice,omitempty"`
	ResetToolChoice    bool             `yaml:"reset_tool_choice,omitempty" json:"reset_tool_choice,omitempty"`
	ModelSettings      map[string]any   `yaml:"model_settings,omitempty" json:"model_settings,omitempty"`
}

// HandoffConfig declares one outgoing handoff edge by target agent name.
type HandoffConfig struct {
	Target          string `yaml:"target" json:"target"`
	ToolName        string `yaml:"tool_name,omitempty" json:"tool_name,omitempty"`
	ToolDescription string `yaml:"tool_description,omitempty" json:"tool_description,omitempty"`
}

// ToolSet resolves a declared tool name to its runnable agent.Tool.
type ToolSet map[string]agent.Tool

// GuardrailSet resolves a declared guardrail name to its runnable
// guardrail.Guardrail.
type GuardrailSet map[string]guardrail.Guardrail

// Load reads and parses a Document from a YAML file at path.
func Load(path string) (*Document, error) {
	if path == "" {
		return nil, fmt.Errorf("agentconfig: path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agentconfig: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses a Document from raw YAML bytes and validates required
// fields.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("agentconfig: parse document: %w", err)
	}
	if len(doc.Agents) == 0 {
		return nil, fmt.Errorf("agentconfig: document declares no agents")
	}
	seen := make(map[string]struct{}, len(doc.Agents))
	for i, a := range doc.Agents {
		if a.Name == "" {
			return nil, fmt.Errorf("agentconfig: agent %d missing name", i)
		}
		if _, dup := seen[a.Name]; dup {
			return nil, fmt.Errorf("agentconfig: duplicate agent name %q", a.Name)
		}
		seen[a.Name] = struct{}{}
		if a.MaxTurns < 0 {
			return nil, fmt.Errorf("agentconfig: agent %q has negative max_turns", a.Name)
		}
	}
	return &doc, nil
}

// Build resolves every agent in the Document against tools and guardrails,
// wires handoffs between agents declared in the same Document, and returns
// the resulting agents keyed by name. Every referenced tool, guardrail, and
// handoff target must be present; Build fails closed rather than silently
// dropping an unresolved reference.
func (d *Document) Build(tools ToolSet, guardrails GuardrailSet) (map[string]*agent.Agent, error) {
	agents := make(map[string]*agent.Agent, len(d.Agents))
	for _, cfg := range d.Agents {
		maxTurns := cfg.MaxTurns
		if maxTurns == 0 {
			maxTurns = 1
		}
		agents[cfg.Name] = &agent.Agent{
			Name:               cfg.Name,
			Instructions:       cfg.Instructions,
			Model:              cfg.Model,
			MaxTurns:           maxTurns,
			HandoffDescription: cfg.HandoffDescription,
			ResetToolChoice:    cfg.ResetToolChoice,
			ModelSettings:      cfg.ModelSettings,
		}
	}

	for _, cfg := range d.Agents {
		a := agents[cfg.Name]

		for _, name := range cfg.Tools {
			t, ok := tools[name]
			if !ok {
				return nil, fmt.Errorf("agentconfig: agent %q references unknown tool %q", cfg.Name, name)
			}
			a.Tools = append(a.Tools, t)
		}
		for _, name := range cfg.InputGuardrails {
			g, ok := guardrails[name]
			if !ok {
				return nil, fmt.Errorf("agentconfig: agent %q references unknown input guardrail %q", cfg.Name, name)
			}
			a.InputGuardrails = append(a.InputGuardrails, g)
		}
		for _, name := range cfg.OutputGuardrails {
			g, ok := guardrails[name]
			if !ok {
				return nil, fmt.Errorf("agentconfig: agent %q references unknown output guardrail %q", cfg.Name, name)
			}
			a.OutputGuardrails = append(a.OutputGuardrails, g)
		}
		if cfg.ToolChoice != "" {
			a.ToolChoice = &agent.ToolChoice{Mode: agent.ToolChoiceMode(cfg.ToolChoice)}
		}
		for _, h := range cfg.Handoffs {
			target, ok := agents[h.Target]
			if !ok {
				return nil, fmt.Errorf("agentconfig: agent %q declares handoff to unknown agent %q", cfg.Name, h.Target)
			}
			a.Handoffs = append(a.Handoffs, agent.Handoff{
				Target:          target,
				ToolName:        h.ToolName,
				ToolDescription: h.ToolDescription,
			})
		}
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}
	return agents, nil
}
