package reasoner

import "strings"

func normalizeLower(s string) string { return strings.ToLower(s) }

func contains(haystack, needle string) bool { return strings.Contains(haystack, needle) }

// stripCodeFence removes leading/trailing Markdown code-fence noise
// (```json ... ``` or ``` ... ```) that chat-style models often wrap
// their JSON output in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx != -1 {
		firstLine := strings.TrimSpace(s[:idx])
		if firstLine == "json" || firstLine == "" {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
