package similarity

import (
	"context"
	"hash/fnv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// embeddingDims is the fixed width of the hashed bag-of-words
// embedding. No pretrained sentence-embedding runtime is available, so
// this backend deterministically hashes tokens into a fixed-width
// vector (the "hashing trick") — it honors the embed(text) -> vector
// contract and is swappable behind the Backend interface if a real
// embedding client is wired in later.
const embeddingDims = 256

// Embedding is the top-of-chain backend: a deterministic hashed
// bag-of-words vector space with cosine similarity via gonum/floats.
type Embedding struct{}

func (Embedding) Name() string { return "embedding" }

func (Embedding) Similarity(_ context.Context, a, b string) (float64, error) {
	vecA := Embed(a)
	vecB := Embed(b)

	normA := floats.Norm(vecA, 2)
	normB := floats.Norm(vecB, 2)
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	dot := floats.Dot(vecA, vecB)
	return clamp01(dot / (normA * normB)), nil
}

// Embed hashes text into a fixed-width embeddingDims vector. Exported
// so the embedding cache (C3 L2) can store and retrieve it directly.
func Embed(text string) []float64 {
	vec := make([]float64, embeddingDims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		bucket := int(h.Sum32() % embeddingDims)
		vec[bucket]++
	}
	return vec
}
