package llm

import "strings"

// extractJSON pulls a JSON document out of a model reply that may be wrapped
// in markdown fences or surrounded by prose.
func extractJSON(s string) string {
	for _, fence := range []string{"```json", "```"} {
		if idx := strings.Index(s, fence); idx != -1 {
			rest := s[idx+len(fence):]
			if end := strings.Index(rest, "```"); end != -1 {
				return strings.TrimSpace(rest[:end])
			}
		}
	}

	// Fall back to the outermost brace or bracket pair.
	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		open := strings.IndexByte(s, pair[0])
		close := strings.LastIndexByte(s, pair[1])
		if open != -1 && close > open {
			return strings.TrimSpace(s[open : close+1])
		}
	}
	return strings.TrimSpace(s)
}
