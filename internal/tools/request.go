package tools

import (
	"encoding/json"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
)

const requestPrefix = "TOOL_REQUEST:"

type rawRequest struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

// ExtractRequests scans response for every "TOOL_REQUEST: {...}" marker
// and returns the parsed requests in order of appearance. Malformed
// markers are skipped, not treated as errors — a bad tool request never
// halts the round.
func ExtractRequests(response string) []Request {
	var out []Request
	remaining := response
	for {
		idx := strings.Index(remaining, requestPrefix)
		if idx == -1 {
			return out
		}
		remaining = remaining[idx+len(requestPrefix):]
		payload, rest, ok := extractJSONObject(remaining)
		remaining = rest
		if !ok {
			continue
		}
		repaired, err := jsonrepair.RepairJSON(payload)
		if err != nil {
			repaired = payload
		}
		var rr rawRequest
		if err := json.Unmarshal([]byte(repaired), &rr); err != nil || rr.Name == "" {
			continue
		}
		out = append(out, Request{Name: rr.Name, Arguments: rr.Arguments})
	}
}

// extractJSONObject finds the first brace-balanced {...} substring at
// or after the start of s (after trimming leading whitespace/fences)
// and returns it plus everything after it.
func extractJSONObject(s string) (payload string, rest string, ok bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", s, false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], s[i+1:], true
			}
		}
	}
	return "", s, false
}
