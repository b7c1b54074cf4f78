package shared

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases text and strips combining marks so that "Devolução",
// "DEVOLUCAO" and "devolucao" compare equal. Surrounding whitespace is
// trimmed and inner runs of whitespace collapse to a single space.
func Fold(text string) string {
	if text == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, text)
	if err != nil {
		stripped = text
	}
	lowered := cases.Lower(language.Und).String(stripped)
	return strings.Join(strings.Fields(lowered), " ")
}
