package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripAccents removes combining marks, e.g. "Amazônia" -> "Amazonia".
func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	res, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return res
}

// FoldName normalizes a biome or column name for comparison: trimmed,
// lower-cased, accents removed, inner whitespace collapsed to single spaces.
func FoldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = stripAccents(s)
	return strings.Join(strings.Fields(s), " ")
}
