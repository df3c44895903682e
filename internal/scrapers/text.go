package scrapers

import "strings"

// normalize lowercases text for case-insensitive substring matching
// against the relevance and breaking-change lexicons.
func normalize(s string) string {
	return strings.ToLower(s)
}

func contains(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}
