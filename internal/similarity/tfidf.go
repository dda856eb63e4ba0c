package similarity

import (
	"context"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// TFIDF fits a vectorizer over the two-document corpus formed by each
// call's (a, b) pair and returns the cosine similarity of their TF-IDF
// vectors. Fitting per call-pair (rather than maintaining a persistent
// corpus) keeps the backend stateless and avoids vocabulary drift
// between unrelated similarity calls.
type TFIDF struct{}

func (TFIDF) Name() string { return "tfidf" }

func (TFIDF) Similarity(_ context.Context, a, b string) (float64, error) {
	docA := strings.Fields(strings.ToLower(a))
	docB := strings.Fields(strings.ToLower(b))
	if len(docA) == 0 || len(docB) == 0 {
		return 0, nil
	}

	vocab := buildVocab(docA, docB)
	if len(vocab) == 0 {
		return 0, nil
	}

	idf := make([]float64, len(vocab))
	for term, idx := range vocab {
		df := 0
		if containsTerm(docA, term) {
			df++
		}
		if containsTerm(docB, term) {
			df++
		}
		// Smoothed IDF over a 2-document corpus: ln((1+N)/(1+df)) + 1.
		idf[idx] = math.Log(3.0/float64(1+df)) + 1
	}

	vecA := tfVector(docA, vocab, idf)
	vecB := tfVector(docB, vocab, idf)

	normA := floats.Norm(vecA, 2)
	normB := floats.Norm(vecB, 2)
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	dot := floats.Dot(vecA, vecB)
	return clamp01(dot / (normA * normB)), nil
}

func buildVocab(docs ...[]string) map[string]int {
	vocab := make(map[string]int)
	for _, doc := range docs {
		for _, term := range doc {
			if _, ok := vocab[term]; !ok {
				vocab[term] = len(vocab)
			}
		}
	}
	return vocab
}

func containsTerm(doc []string, term string) bool {
	for _, t := range doc {
		if t == term {
			return true
		}
	}
	return false
}

func tfVector(doc []string, vocab map[string]int, idf []float64) []float64 {
	counts := make(map[string]int, len(doc))
	for _, t := range doc {
		counts[t]++
	}
	vec := make([]float64, len(vocab))
	total := float64(len(doc))
	for term, idx := range vocab {
		if c, ok := counts[term]; ok {
			vec[idx] = (float64(c) / total) * idf[idx]
		}
	}
	return vec
}
