// Package text provides text normalization and chunking for speech synthesis.
package text

import (
	"regexp"
	"strings"
)

const whitespaceRegexPattern = `\s+`

// Punctuation folded to ASCII before fingerprinting.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

var (
	whitespacePattern = regexp.MustCompile(whitespaceRegexPattern)

	punctuationReplacer = strings.NewReplacer(
		emDash, "-",
		enDash, "-",
		figureDash, "-",
		ellipsisChar, ellipsis,
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
	)
)

// Normalize collapses whitespace runs and folds typographic quotes and dashes,
// so inputs that sound identical share a cache fingerprint.
func Normalize(input string) string {
	if input == "" {
		return input
	}

	normalized := punctuationReplacer.Replace(input)
	normalized = whitespacePattern.ReplaceAllString(normalized, " ")

	return strings.TrimSpace(normalized)
}
