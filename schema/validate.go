package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateArguments compiles declared (the tool's normalized strict schema)
// and validates argumentsJSON against it before dispatch.
// An empty argumentsJSON is treated as "{}" to match ParseArguments'
// leniency toward an omitted arguments object. The returned error wraps the
// jsonschema validation error message; callers fold it into a
// ModelBehaviorError the same way they already do for JSON-parse failures.
func ValidateArguments(declared map[string]any, argumentsJSON json.RawMessage) error {
	if len(declared) == 0 {
		return nil
	}
	raw, err := json.Marshal(declared)
	if err != nil {
		return fmt.Errorf("schema: marshal declared schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("schema: decode declared schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	const resourceURL = "mem://tool-arguments-schema.json"
	if err := c.AddResource(resourceURL, doc); err != nil {
		return fmt.Errorf("schema: add resource: %w", err)
	}
	compiled, err := c.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("schema: compile declared schema: %w", err)
	}

	args := argumentsJSON
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := compiled.Validate(instance); err != nil {
		return fmt.Errorf("arguments do not satisfy tool schema: %w", err)
	}
	return nil
}

// CompileCheck verifies that a normalized schema document compiles as a
// valid JSON Schema, for callers that want to fail fast on a malformed
// tool schema before sending it to a provider.
func CompileCheck(s map[string]any) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("schema: marshal for compile check: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("schema: decode for compile check: %w", err)
	}
	c := jsonschema.NewCompiler()
	const resourceURL = "mem://normalized-schema.json"
	if err := c.AddResource(resourceURL, doc); err != nil {
		return fmt.Errorf("schema: add resource: %w", err)
	}
	if _, err := c.Compile(resourceURL); err != nil {
		return fmt.Errorf("schema: compile: %w", err)
	}
	return nil
}
