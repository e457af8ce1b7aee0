package genai

import "strings"

// StripFences removes a markdown code fence wrapper from collaborator
// output. Models frequently wrap JSON answers in ```json blocks even when
// asked for bare JSON.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
