// Package schema implements the Schema Normalizer: transforming a JSON
// schema document into the "strict" dialect the model API requires for tool
// parameters and structured outputs (every property required,
// additionalProperties=false, no implicit optionality).
package schema

import (
	"fmt"

	"github.com/raaf-ai/raaf-go/apperr"
)

// Normalize transforms s into the strict schema dialect the model API
// requires: objects gain additionalProperties=false, every declared
// property becomes required unless an explicit required list is present,
// single-element allOf is flattened, and default:null is dropped.
// It returns a new document; the input is not mutated. Normalize is
// idempotent: Normalize(Normalize(s)) deep-equals Normalize(s).
func Normalize(s map[string]any) (map[string]any, error) {
	out, err := normalizeNode(s, "$")
	if err != nil {
		return nil, err
	}
	asMap, _ := out.(map[string]any)
	return asMap, nil
}

func normalizeNode(node any, path string) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		return normalizeObject(v, path)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			n, err := normalizeNode(elem, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return node, nil
	}
}

func normalizeObject(m map[string]any, path string) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == "default" && v == nil {
			continue
		}
		out[k] = v
	}

	if ap, ok := out["additionalProperties"]; ok {
		if b, isBool := ap.(bool); isBool && b {
			return nil, &apperr.InvalidSchema{Path: path, Reason: "additionalProperties=true is not permitted in strict mode"}
		}
	}

	if typ, _ := out["type"].(string); typ == "object" || hasProperties(out) {
		props, hasProps := out["properties"].(map[string]any)
		if !hasProps {
			props = map[string]any{}
		}
		normalizedProps := make(map[string]any, len(props))
		for name, ps := range props {
			np, err := normalizeNode(ps, path+".properties."+name)
			if err != nil {
				return nil, err
			}
			normalizedProps[name] = np
		}
		out["properties"] = normalizedProps

		if _, hasRequired := out["required"]; !hasRequired {
			req := make([]string, 0, len(normalizedProps))
			for name := range normalizedProps {
				req = append(req, name)
			}
			sortStrings(req)
			out["required"] = req
		}
		out["additionalProperties"] = false
	}

	if allOf, ok := out["allOf"].([]any); ok && len(allOf) == 1 {
		delete(out, "allOf")
		parent, err := normalizeNode(allOf[0], path+".allOf[0]")
		if err != nil {
			return nil, err
		}
		if pm, ok := parent.(map[string]any); ok {
			for k, v := range pm {
				out[k] = v
			}
		}
	} else if ok {
		normalized := make([]any, len(allOf))
		for i, elem := range allOf {
			n, err := normalizeNode(elem, fmt.Sprintf("%s.allOf[%d]", path, i))
			if err != nil {
				return nil, err
			}
			normalized[i] = n
		}
		out["allOf"] = normalized
	}

	if anyOf, ok := out["anyOf"].([]any); ok {
		normalized := make([]any, len(anyOf))
		for i, elem := range anyOf {
			n, err := normalizeNode(elem, fmt.Sprintf("%s.anyOf[%d]", path, i))
			if err != nil {
				return nil, err
			}
			normalized[i] = n
		}
		out["anyOf"] = normalized
	}

	if items, ok := out["items"]; ok {
		n, err := normalizeNode(items, path+".items")
		if err != nil {
			return nil, err
		}
		out["items"] = n
	}

	for _, key := range []string{"$defs", "definitions"} {
		if defs, ok := out[key].(map[string]any); ok {
			normalized := make(map[string]any, len(defs))
			for name, def := range defs {
				n, err := normalizeNode(def, fmt.Sprintf("%s.%s.%s", path, key, name))
				if err != nil {
					return nil, err
				}
				normalized[name] = n
			}
			out[key] = normalized
		}
	}

	return out, nil
}

func hasProperties(m map[string]any) bool {
	_, ok := m["properties"]
	return ok
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
