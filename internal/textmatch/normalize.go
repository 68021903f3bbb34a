// Package textmatch compares free-text search terms against noisy catalog titles.
package textmatch

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// 55" / 55” / 55'' are written out before punctuation is stripped
	inchMarkRe = regexp.MustCompile(`(\d+)\s*("|”|'')`)
	// a unit ends at a space or the end of text
	unitRe     = regexp.MustCompile(`(\d+) (kg|l|cm|m|gb|tb|pulgadas)( |$)`)
)

// Normalize lower-cases text, replaces punctuation with spaces, glues
// measurement units onto their number ("17 Kg" -> "17kg") and collapses
// whitespace. Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	text = inchMarkRe.ReplaceAllString(text, "${1}pulgadas")
	text = strings.ToLower(text)

	text = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, text)

	text = strings.Join(strings.Fields(text), " ")
	return unitRe.ReplaceAllString(text, "$1$2$3")
}
