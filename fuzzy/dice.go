// Package fuzzy implements the Dice (bigram) coefficient used for entity
// name deduplication across parallel searches and cross-lens joins. Dice
// is chosen over edit-distance because it tolerates
// token reorderings common in company names while staying O(n+m).
package fuzzy

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultNameThreshold is the similarity threshold used when no caller
// override is supplied.
const DefaultNameThreshold = 0.85

// normalize applies NFC normalization and casefolds the input so
// "Acme Inc." and "ACME INC" (or full-width variants) tokenize identically
// ahead of bigram extraction.
func normalize(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}

// bigrams returns the set of consecutive rune pairs in s, as a multiset
// encoded by counting occurrences (Dice's coefficient is defined over
// multisets of bigrams, not just unique bigrams).
func bigrams(s string) map[string]int {
	runes := []rune(s)
	set := make(map[string]int, len(runes))
	if len(runes) < 2 {
		if len(runes) == 1 {
			set[string(runes)]++
		}
		return set
	}
	for i := 0; i < len(runes)-1; i++ {
		set[string(runes[i:i+2])]++
	}
	return set
}

// DiceCoefficient returns the Dice (Sørensen–Dice) bigram similarity of a
// and b in [0,1]: 2 * |intersection| / (|bigrams(a)| + |bigrams(b)|).
// Two empty strings are defined as similarity 0 (no evidence of a match).
func DiceCoefficient(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == nb {
		if na == "" {
			return 0
		}
		return 1
	}

	ba, bb := bigrams(na), bigrams(nb)
	totalA, totalB := 0, 0
	for _, c := range ba {
		totalA += c
	}
	for _, c := range bb {
		totalB += c
	}
	if totalA == 0 || totalB == 0 {
		return 0
	}

	intersection := 0
	for gram, ca := range ba {
		if cb, ok := bb[gram]; ok {
			if ca < cb {
				intersection += ca
			} else {
				intersection += cb
			}
		}
	}

	return 2 * float64(intersection) / float64(totalA+totalB)
}

// Matches reports whether a and b are similar enough to be considered the
// same entity at the given threshold.
func Matches(a, b string, threshold float64) bool {
	return DiceCoefficient(a, b) >= threshold
}
