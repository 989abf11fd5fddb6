package step

import (
	"strings"
	"unicode"

	"github.com/raaf-ai/raaf-go/agent"
	"github.com/raaf-ai/raaf-go/item"
	"github.com/raaf-ai/raaf-go/jsonrepair"
)

// FinalOutputPayload computes the value returned as StepResult.FinalOutput
// for a terminal step.12: when the agent declares a
// ResponseFormat, or when the last assistant message looks like JSON
// (begins with "{" or is code-fenced as json), attempt a best-effort JSON
// repair and, on success, return the parsed value with top-level keys
// containing spaces normalized to snake_case. Otherwise the raw string
// content is returned unchanged.
func FinalOutputPayload(actingAgent *agent.Agent, newItems []item.Item) any {
	content := lastAssistantContent(newItems)
	if content == "" {
		return content
	}
	if actingAgent.ResponseFormat == nil && !looksLikeJSON(content) {
		return content
	}
	parsed, ok := jsonrepair.Repair(content)
	if !ok {
		return content
	}
	if m, ok := parsed.(map[string]any); ok {
		return normalizeTopLevelKeys(m)
	}
	return parsed
}

func lastAssistantContent(items []item.Item) string {
	for i := len(items) - 1; i >= 0; i-- {
		if msg, ok := items[i].(item.Message); ok && msg.Role == item.RoleAssistant {
			return msg.Content
		}
	}
	return ""
}

func looksLikeJSON(s string) bool {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") {
		return true
	}
	if strings.HasPrefix(trimmed, "```json") {
		return true
	}
	return false
}

// normalizeTopLevelKeys rewrites top-level map keys containing spaces to
// snake_case ("Market Name" -> "market_name"). Applies only at the top
// level; nested maps are left as parsed.
func normalizeTopLevelKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if strings.ContainsAny(k, " \t") {
			out[spaceKeyToSnake(k)] = v
		} else {
			out[k] = v
		}
	}
	return out
}

func spaceKeyToSnake(k string) string {
	fields := strings.Fields(k)
	for i, f := range fields {
		fields[i] = strings.ToLower(strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return '_'
		}, f))
	}
	return strings.Join(fields, "_")
}
