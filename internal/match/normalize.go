package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Normalize maps a title or query to its canonical comparison form: Unicode
// case folding, punctuation to spaces, whitespace collapsed. "The Show!"
// and "THE  show" both normalize to "the show".
func Normalize(s string) string {
	// A cases.Caser is stateful, so it cannot be shared across goroutines.
	folded := cases.Fold().String(s)

	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}

		return ' '
	}, folded)

	return strings.Join(strings.Fields(mapped), " ")
}

// Tokens splits a string into normalized tokens. Short tokens are kept:
// show titles are brief and articles carry real signal there.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// tokenPrefix reports whether query forms a leading token sequence of
// title. Token-wise, not character-wise: "the show" is not a prefix of
// "the showrunner".
func tokenPrefix(query, title []string) bool {
	if len(query) == 0 || len(query) > len(title) {
		return false
	}

	for i, tok := range query {
		if title[i] != tok {
			return false
		}
	}

	return true
}
