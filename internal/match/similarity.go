package match

import "math"

// fingerprint is a term-frequency vector over normalized tokens.
type fingerprint struct {
	tokens map[string]float64
	norm   float64
}

func newFingerprint(tokens []string) fingerprint {
	counts := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}

	var norm float64
	for _, count := range counts {
		norm += count * count
	}

	return fingerprint{tokens: counts, norm: math.Sqrt(norm)}
}

func cosine(a, b fingerprint) float64 {
	if a.norm == 0 || b.norm == 0 {
		return 0
	}

	var dot float64

	for tok, count := range a.tokens {
		if other, ok := b.tokens[tok]; ok {
			dot += count * other
		}
	}

	if dot == 0 {
		return 0
	}

	return dot / (a.norm * b.norm)
}

// Similarity scores how close two strings are on token overlap, in [0, 1].
// Stateless; inputs are normalized internally so callers can pass raw
// titles.
func Similarity(a, b string) float64 {
	return cosine(newFingerprint(Tokens(a)), newFingerprint(Tokens(b)))
}
