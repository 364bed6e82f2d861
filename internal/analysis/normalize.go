package analysis

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// spaceFolder maps every Unicode space rune (including NBSP, which warehouse
// exports are full of) onto a plain ASCII space so the collapse step sees a
// single separator class.
var spaceFolder = runes.Map(func(r rune) rune {
	if unicode.IsSpace(r) {
		return ' '
	}
	return r
})

// Normalize canonicalizes a cell value for comparison: fold all whitespace to
// single spaces, trim the ends and lowercase. Upstream reports disagree on
// casing and padding for the same logical value, so every membership test and
// predicate in the pipeline compares normalized forms.
func Normalize(s string) string {
	folded, _, err := transform.String(spaceFolder, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.Join(strings.Fields(folded), " "))
}
