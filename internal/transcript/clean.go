package transcript

import (
	"strings"
	"unicode"
)

// minExtractionLength is the shortest fragment worth keeping.
const minExtractionLength = 10

// CleanExtraction trims a captured fragment and reports whether it is worth
// keeping. Short fragments, JSON-looking text and bare file paths are
// rejected.
func CleanExtraction(s string) (string, bool) {
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '`' || r == '"' || r == '\'' || r == ',' || r == ';' || r == ':'
	})
	if len([]rune(s)) < minExtractionLength {
		return "", false
	}
	if LooksLikeJSON(s) {
		return "", false
	}
	if looksLikePath(s) {
		return "", false
	}
	return s, true
}

// LooksLikeJSON reports whether s is, or is a fragment of, a JSON document.
func LooksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if s[0] == '{' || s[0] == '[' {
		return true
	}
	return strings.Contains(s, `{"`) || strings.Contains(s, `":`)
}

// looksLikePath reports whether s is a single path token.
func looksLikePath(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	return strings.HasPrefix(s, "/") ||
		strings.HasPrefix(s, "~/") ||
		strings.HasPrefix(s, "./") ||
		strings.HasPrefix(s, "../") ||
		strings.Count(s, "/") >= 2 ||
		strings.Contains(s, `\`)
}
