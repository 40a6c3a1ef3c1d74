package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Tokenize splits text into lowercase NFC tokens on anything that is not a
// letter or a digit. Hangul typed on different keyboards arrives both
// precomposed and as conjoining jamo, so normalization has to come first or
// identical words never match.
func Tokenize(text string) []string {
	s := strings.ToLower(norm.NFC.String(text))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
