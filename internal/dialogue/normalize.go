package dialogue

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize prepares recognized text for keyword containment checks: Hangul
// is composed to NFC and every whitespace rune is dropped. The result must
// not be used for number extraction, "1 2개" would read as 12.
func Normalize(raw string) string {
	s := norm.NFC.String(raw)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
