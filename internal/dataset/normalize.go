package dataset

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldMarks decomposes to NFD, strips combining marks, and recomposes.
// "Ramaḍān" folds to "Ramadan".
var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeMonth canonicalizes a lunar month name for lookup: diacritics are
// folded, letters are lowercased, and punctuation commonly used in
// transliteration (apostrophes, hyphens, ʿayn/hamza marks) is dropped.
// "Sha'bān", "Shaʿban" and "shaban" all normalize to "shaban".
func NormalizeMonth(name string) string {
	folded, _, err := transform.String(foldMarks, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := false
	for _, r := range strings.TrimSpace(folded) {
		switch {
		// Modifier letters (ʿayn, hamza in transliteration) count as letters
		// to unicode but are punctuation for our purposes.
		case unicode.Is(unicode.Lm, r):
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			// Apostrophes, hyphens, ʿ, ʾ and similar are dropped entirely.
		}
	}
	return strings.TrimSpace(b.String())
}
