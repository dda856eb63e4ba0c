package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCache_KeyIncludesThresholdAndMaxResults(t *testing.T) {
	k1 := QueryKey("what should we do", 0.5, 5)
	k2 := QueryKey("what should we do", 0.6, 5)
	k3 := QueryKey("what should we do", 0.5, 10)
	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestQueryCache_PutGet(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	key := QueryKey("deploy question", 0.5, 3)
	results := []QueryResult{{DecisionID: "d1", Question: "deploy question", Similarity: 0.9}}
	c.Put(key, results)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, results, got)
}

func TestQueryCache_TTLExpires(t *testing.T) {
	c := NewQueryCache(10, 10*time.Millisecond)
	key := QueryKey("q", 0.5, 3)
	c.Put(key, []QueryResult{{DecisionID: "d1"}})
	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestTieredCache_OnDecisionStoredInvalidatesL1Only(t *testing.T) {
	tc := NewTieredCache(10, 10, time.Minute)
	qKey := QueryKey("q", 0.5, 3)
	eKey := EmbeddingKey("some text")

	tc.Query.Put(qKey, []QueryResult{{DecisionID: "d1"}})
	tc.Embedding.Put(eKey, []float64{1, 2, 3})

	tc.OnDecisionStored()

	_, l1ok := tc.Query.Get(qKey)
	assert.False(t, l1ok, "L1 must be invalidated on decision write")

	l2val, l2ok := tc.Embedding.Get(eKey)
	assert.True(t, l2ok, "L2 must survive decision writes, embeddings are immutable")
	assert.Equal(t, []float64{1, 2, 3}, l2val)
}

func TestTieredCache_InvalidateAllCompletesUnder10ms(t *testing.T) {
	tc := NewTieredCache(100, 100, time.Minute)
	for i := 0; i < 100; i++ {
		tc.Query.Put(QueryKey(string(rune(i)), 0.5, 3), []QueryResult{{DecisionID: "d"}})
	}
	start := time.Now()
	tc.OnDecisionStored()
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestTieredCache_CombinedStats(t *testing.T) {
	tc := NewTieredCache(10, 10, time.Minute)
	qKey := QueryKey("q", 0.5, 3)
	tc.Query.Put(qKey, []QueryResult{{DecisionID: "d1"}})
	tc.Query.Get(qKey)
	tc.Query.Get("miss")

	stats := tc.Stats()
	assert.Equal(t, int64(1), stats.L1.Hits)
	assert.Equal(t, int64(1), stats.L1.Misses)
	assert.InDelta(t, 0.5, stats.CombinedHitRate, 1e-9)
	assert.True(t, stats.LastInvalidation.IsZero(), "no decision has been stored yet")
}

func TestEmbeddingCache_VersionedKey(t *testing.T) {
	k := EmbeddingKey("hello world")
	assert.Contains(t, k, "|1")
}

func TestEmbeddingCache_ClearRemovesAll(t *testing.T) {
	c := NewEmbeddingCache(10)
	c.Put("k1", []float64{1})
	c.Clear()
	_, ok := c.Get("k1")
	assert.False(t, ok)
}
