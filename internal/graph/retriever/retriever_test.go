package retriever

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.aicounsel.server/internal/cache"
	"dev.aicounsel.server/internal/graph/store"
	"dev.aicounsel.server/internal/similarity"
)

type fakeStore struct {
	decisions map[string]store.DecisionNode
	order     []string
}

func newFakeStore() *fakeStore { return &fakeStore{decisions: make(map[string]store.DecisionNode)} }

func (f *fakeStore) add(node store.DecisionNode) {
	f.decisions[node.ID] = node
	f.order = append(f.order, node.ID)
}

func (f *fakeStore) SaveDecision(node store.DecisionNode) error { f.add(node); return nil }
func (f *fakeStore) GetDecision(id string) (*store.DecisionNode, error) {
	n, ok := f.decisions[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}
func (f *fakeStore) ListDecisions(limit, offset int) ([]store.DecisionNode, error) {
	var out []store.DecisionNode
	for i := len(f.order) - 1; i >= 0; i-- {
		out = append(out, f.decisions[f.order[i]])
	}
	if offset < len(out) {
		out = out[offset:]
	} else {
		out = nil
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
func (f *fakeStore) SaveStance(store.Stance) (int64, error)                      { return 0, nil }
func (f *fakeStore) GetStances(string) ([]store.Stance, error)                   { return nil, nil }
func (f *fakeStore) SaveSimilarity(store.SimilarityEdge) error                   { return nil }
func (f *fakeStore) GetSimilar(string, float64, int) ([]store.ScoredNode, error) { return nil, nil }
func (f *fakeStore) Close() error                                                { return nil }

func TestRetriever_FindRelevant_FiltersAndSorts(t *testing.T) {
	fs := newFakeStore()
	fs.add(store.DecisionNode{ID: "d1", Question: "deploy the payments service", Timestamp: time.Now()})
	fs.add(store.DecisionNode{ID: "d2", Question: "deploy payments service to prod", Timestamp: time.Now()})
	fs.add(store.DecisionNode{ID: "d3", Question: "pick a color for the logo", Timestamp: time.Now()})

	detector := similarity.NewDetector(nil, similarity.Jaccard{})
	r := New(fs, detector, nil, 1000, DefaultAdaptiveK)

	results, err := r.FindRelevant(context.Background(), "deploy the payments service now", 0.2, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestRetriever_CacheHitAvoidsRecompute(t *testing.T) {
	fs := newFakeStore()
	fs.add(store.DecisionNode{ID: "d1", Question: "roll back the release", Timestamp: time.Now()})

	detector := similarity.NewDetector(nil, similarity.Jaccard{})
	tiered := cache.NewTieredCache(10, 10, time.Minute)
	r := New(fs, detector, tiered, 1000, DefaultAdaptiveK)

	_, err := r.FindRelevant(context.Background(), "roll back the release", 0.1, 5)
	require.NoError(t, err)

	stats := r.GetCacheStats()
	require.NotNil(t, stats)
	assert.Equal(t, int64(1), stats.L1.Misses)

	_, err = r.FindRelevant(context.Background(), "roll back the release", 0.1, 5)
	require.NoError(t, err)
	stats = r.GetCacheStats()
	assert.Equal(t, int64(1), stats.L1.Hits)
}

func TestRetriever_CacheDisabledReturnsNilStats(t *testing.T) {
	fs := newFakeStore()
	detector := similarity.NewDetector(nil, similarity.Jaccard{})
	r := New(fs, detector, nil, 1000, DefaultAdaptiveK)
	assert.Nil(t, r.GetCacheStats())
}

func TestRetriever_AdaptiveK(t *testing.T) {
	fs := newFakeStore()
	for i := 0; i < 5; i++ {
		fs.add(store.DecisionNode{ID: string(rune('a' + i)), Question: "q", Timestamp: time.Now()})
	}
	detector := similarity.NewDetector(nil, similarity.Jaccard{})
	r := New(fs, detector, nil, 1000, DefaultAdaptiveK)
	assert.Equal(t, DefaultAdaptiveK.SmallResults, r.ResolveMaxResults(0))
}
