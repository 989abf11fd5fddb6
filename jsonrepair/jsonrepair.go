// Package jsonrepair implements best-effort recovery of JSON embedded in
// free text: code-fenced blocks, trailing commas, single-quoted
// strings, bare keys, and quoted scalars that should be native JSON types.
package jsonrepair

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	codeFenceRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	bareKeyRe     = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	quotedBoolRe  = regexp.MustCompile(`:\s*"(true|false|null)"`)
	quotedNumRe   = regexp.MustCompile(`:\s*"(-?\d+(?:\.\d+)?)"`)
)

// Repair attempts to parse s as JSON, applying a sequence of increasingly
// aggressive recovery heuristics until one succeeds. It never returns an
// error; ok is false if no strategy produced valid JSON.
func Repair(s string) (value any, ok bool) {
	if v, ok := tryParse(s); ok {
		return v, true
	}

	candidate := s
	if m := codeFenceRe.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
		if v, ok := tryParse(candidate); ok {
			return v, true
		}
	}

	candidate = trailingComma.ReplaceAllString(candidate, "$1")
	if v, ok := tryParse(candidate); ok {
		return v, true
	}

	candidate = singleToDoubleQuoted(candidate)
	if v, ok := tryParse(candidate); ok {
		return v, true
	}

	candidate = bareKeyRe.ReplaceAllString(candidate, `$1"$2"$3`)
	if v, ok := tryParse(candidate); ok {
		return v, true
	}

	candidate = quotedBoolRe.ReplaceAllString(candidate, ": $1")
	candidate = quotedNumRe.ReplaceAllString(candidate, ": $1")
	if v, ok := tryParse(candidate); ok {
		return v, true
	}

	if sub, found := longestBracedSubstring(candidate); found {
		if v, ok := tryParse(sub); ok {
			return v, true
		}
	}

	return nil, false
}

func tryParse(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &v); err != nil {
		return nil, false
	}
	return v, true
}

// singleToDoubleQuoted rewrites single-quoted keys/strings to double-quoted
// form. It is a heuristic scanner, not a full JSON tokenizer: it walks the
// string tracking whether it is inside a single- or double-quoted run and
// swaps delimiters, leaving escaped quotes alone.
func singleToDoubleQuoted(s string) string {
	var b strings.Builder
	inSingle := false
	inDouble := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			b.WriteByte(c)
			b.WriteByte(s[i+1])
			i++
			continue
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			b.WriteByte('"')
			continue
		case c == '"' && !inSingle:
			inDouble = !inDouble
		}
		b.WriteByte(c)
	}
	return b.String()
}

// longestBracedSubstring extracts the longest substring starting with `{` or
// `[` and ending with the matching closing bracket, used as a last resort to
// pull JSON out of surrounding prose.
func longestBracedSubstring(s string) (string, bool) {
	best := ""
	for _, open := range []byte{'{', '['} {
		close := byte('}')
		if open == '[' {
			close = ']'
		}
		start := strings.IndexByte(s, open)
		if start < 0 {
			continue
		}
		end := strings.LastIndexByte(s, close)
		if end <= start {
			continue
		}
		if candidate := s[start : end+1]; len(candidate) > len(best) {
			best = candidate
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}
