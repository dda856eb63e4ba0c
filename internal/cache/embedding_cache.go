package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// EmbeddingVersion is bumped whenever the embedding backend's vector
// space changes incompatibly. Per the binding resolution in
// SPEC_FULL.md, a version bump requires an operator-invoked Clear() —
// there is no automatic re-embedding.
const EmbeddingVersion = 1

// EmbeddingCache is the L2 tier: text -> embedding vector, permanent
// (no TTL), never invalidated by decision writes since embeddings of
// immutable text never change.
type EmbeddingCache struct {
	lru *LRU[string, []float64]
}

// NewEmbeddingCache builds the L2 cache with the given capacity.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	return &EmbeddingCache{lru: NewLRU[string, []float64](capacity)}
}

// EmbeddingKey derives the L2 cache key: sha256(text) | embedding_version.
func EmbeddingKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s|%d", hex.EncodeToString(sum[:]), EmbeddingVersion)
}

// Get returns the cached embedding for key, if present.
func (c *EmbeddingCache) Get(key string) ([]float64, bool) {
	return c.lru.Get(key)
}

// Put stores vec under key with no expiry.
func (c *EmbeddingCache) Put(key string, vec []float64) {
	c.lru.Set(key, vec, 0)
}

// Clear empties the cache. The only supported trigger is an
// operator-invoked model-version change or full reset.
func (c *EmbeddingCache) Clear() {
	c.lru.Clear()
}

// Stats returns the L2 tier's cumulative counters.
func (c *EmbeddingCache) Stats() Stats {
	return c.lru.Stats()
}
