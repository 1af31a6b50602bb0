package llm

import (
	"strings"
)

// ExtractJSON pulls a JSON object out of a model reply. A fenced ```json
// block wins; otherwise the text from the first '{' to the last '}' is
// returned. It returns "" when the reply has no object.
func ExtractJSON(reply string) string {
	if block, ok := fencedBlock(reply); ok {
		reply = block
	}
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return ""
	}
	return reply[start : end+1]
}

// fencedBlock returns the body of the first ``` fence
func fencedBlock(s string) (string, bool) {
	open := strings.Index(s, "```")
	if open < 0 {
		return "", false
	}
	rest := s[open+3:]
	// skip the language tag line
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	closeIdx := strings.Index(rest, "```")
	if closeIdx < 0 {
		return "", false
	}
	return rest[:closeIdx], true
}

// IsFenced reports whether the reply wraps its payload in a code fence
func IsFenced(reply string) bool {
	_, ok := fencedBlock(reply)
	return ok
}
