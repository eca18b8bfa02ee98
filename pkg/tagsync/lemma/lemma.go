// Package lemma picks the single lemma stored for a tagged token.
package lemma

import "strings"

const (
	// Separator delimits alternative lemmata in tagger output.
	Separator = "|"
	// UncertainMarker is appended by the tagger to guessed lemmata.
	UncertainMarker = "?"
)

// Resolve returns the lemma to store for a token.
//
// A nil raw lemma (the tagger did not know the token) resolves to the covered
// text as it appears in the document. Otherwise the last of the
// "|"-separated alternatives wins, and one trailing "?" is dropped.
func Resolve(raw *string, covered string) string {
	var picked string
	if raw == nil {
		picked = covered
	} else {
		picked = last(*raw)
	}
	return strings.TrimSuffix(picked, UncertainMarker)
}

func last(raw string) string {
	candidates := strings.Split(raw, Separator)
	// trailing empty alternatives are skipped; with nothing left the raw string stands
	for i := len(candidates) - 1; i >= 0; i-- {
		if candidates[i] != "" {
			return candidates[i]
		}
	}
	return raw
}
