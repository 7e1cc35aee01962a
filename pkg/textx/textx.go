// Package textx holds small text helpers shared by the scraper and the
// research pipeline.
package textx

import (
	"strings"
)

// SanitizeText strips control characters except tab, newline and carriage
// return, and trims surrounding whitespace. Scraped pages and PDF
// extractions routinely carry NUL bytes and stray control sequences that upset
// both Postgres and the model providers.
func SanitizeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Truncate cuts s to at most max bytes, preferring a word boundary in the
// second half of the cut, and marks the cut with an ellipsis.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if i := strings.LastIndexByte(cut, ' '); i > max/2 {
		cut = cut[:i]
	}
	return cut + " …"
}
