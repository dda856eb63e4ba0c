package cache

import (
	"sync"
	"time"
)

// TieredCache composes the L1 query cache and L2 embedding cache behind
// one handle, the unit the retriever and graph integration depend on.
type TieredCache struct {
	Query     *QueryCache
	Embedding *EmbeddingCache

	mu               sync.Mutex
	lastInvalidation time.Time
}

// NewTieredCache builds both tiers with the given capacities and L1 TTL.
func NewTieredCache(l1Capacity, l2Capacity int, l1TTL time.Duration) *TieredCache {
	return &TieredCache{
		Query:     NewQueryCache(l1Capacity, l1TTL),
		Embedding: NewEmbeddingCache(l2Capacity),
	}
}

// OnDecisionStored invalidates the L1 tier (event-invalidation) without
// touching L2 (embeddings of immutable text never change).
func (t *TieredCache) OnDecisionStored() {
	t.Query.InvalidateAll()
	t.mu.Lock()
	t.lastInvalidation = time.Now()
	t.mu.Unlock()
}

// CombinedStats reports per-tier stats, combined hit rate, and the
// timestamp of the last L1 invalidation.
type CombinedStats struct {
	L1               Stats
	L2               Stats
	CombinedHitRate  float64
	LastInvalidation time.Time
}

// Stats snapshots both tiers.
func (t *TieredCache) Stats() CombinedStats {
	l1 := t.Query.Stats()
	l2 := t.Embedding.Stats()
	totalHits := l1.Hits + l2.Hits
	totalLookups := totalHits + l1.Misses + l2.Misses

	t.mu.Lock()
	last := t.lastInvalidation
	t.mu.Unlock()

	var combined float64
	if totalLookups > 0 {
		combined = float64(totalHits) / float64(totalLookups)
	}
	return CombinedStats{L1: l1, L2: l2, CombinedHitRate: combined, LastInvalidation: last}
}
