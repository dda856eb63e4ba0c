package similarity

import (
	"context"
	"strings"
)

// Jaccard computes |A∩B| / |A∪B| over lowercased whitespace-tokenized
// word sets. It has no external dependency and never fails — it is the
// last link in the fallback chain.
type Jaccard struct{}

func (Jaccard) Name() string { return "jaccard" }

func (Jaccard) Similarity(_ context.Context, a, b string) (float64, error) {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0, nil
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0, nil
	}
	return clamp01(float64(intersection) / float64(union)), nil
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
