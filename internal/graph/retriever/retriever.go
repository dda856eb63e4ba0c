// Package retriever implements the decision-graph lookup path: given a
// query question, return the top-K most similar past decisions using
// the L1 cache, the store, and a similarity backend, in that order.
package retriever

import (
	"context"

	"dev.aicounsel.server/internal/cache"
	"dev.aicounsel.server/internal/graph/store"
	"dev.aicounsel.server/internal/similarity"
)

// Scored pairs a decision with the similarity score that surfaced it.
type Scored struct {
	Node  store.DecisionNode
	Score float64
}

// CacheStats mirrors cache.CombinedStats for callers that only depend
// on this package; nil when the retriever was built with caching disabled.
type CacheStats = cache.CombinedStats

// Retriever implements find_relevant: L1 consult, store scan + score +
// filter + sort + truncate on miss, then L1 store with TTL.
type Retriever struct {
	store      store.Store
	detector   *similarity.Detector
	tiered     *cache.TieredCache // nil when caching is disabled
	queryWindow int
	adaptiveK  AdaptiveK
}

// AdaptiveK selects a result count when the caller passes none,
// bucketed by how many decisions currently exist.
type AdaptiveK struct {
	SmallDBMax   int // inclusive upper bound of the "small" bucket
	MediumDBMax  int // inclusive upper bound of the "medium" bucket
	SmallResults int
	MediumResults int
	LargeResults int
}

// DefaultAdaptiveK matches §4.5's reference thresholds.
var DefaultAdaptiveK = AdaptiveK{
	SmallDBMax: 100, MediumDBMax: 1000,
	SmallResults: 5, MediumResults: 3, LargeResults: 2,
}

// New builds a retriever. Pass a nil tiered cache to disable caching
// entirely (get_cache_stats then always returns nil).
func New(s store.Store, detector *similarity.Detector, tiered *cache.TieredCache, queryWindow int, adaptiveK AdaptiveK) *Retriever {
	return &Retriever{store: s, detector: detector, tiered: tiered, queryWindow: queryWindow, adaptiveK: adaptiveK}
}

// ResolveMaxResults applies the adaptive-K heuristic when maxResults is
// the caller's "use the default" sentinel (0 or negative).
func (r *Retriever) ResolveMaxResults(maxResults int) int {
	if maxResults > 0 {
		return maxResults
	}
	decisions, err := r.store.ListDecisions(r.adaptiveK.MediumDBMax+1, 0)
	if err != nil {
		return r.adaptiveK.MediumResults
	}
	count := len(decisions)
	switch {
	case count <= r.adaptiveK.SmallDBMax:
		return r.adaptiveK.SmallResults
	case count <= r.adaptiveK.MediumDBMax:
		return r.adaptiveK.MediumResults
	default:
		return r.adaptiveK.LargeResults
	}
}

// FindRelevant returns the top maxResults decisions whose question is
// at least threshold-similar to queryQuestion.
func (r *Retriever) FindRelevant(ctx context.Context, queryQuestion string, threshold float64, maxResults int) ([]Scored, error) {
	maxResults = r.ResolveMaxResults(maxResults)

	if r.tiered != nil {
		key := cache.QueryKey(queryQuestion, threshold, maxResults)
		if cached, ok := r.tiered.Query.Get(key); ok {
			return r.materialize(cached)
		}
	}

	candidates, err := r.store.ListDecisions(r.queryWindow, 0)
	if err != nil {
		return nil, err
	}

	var scored []Scored
	for _, candidate := range candidates {
		score, err := r.detector.Similarity(ctx, queryQuestion, candidate.Question)
		if err != nil {
			continue // similarity failures degrade to 0 elsewhere; here we just skip the candidate
		}
		if score >= threshold {
			scored = append(scored, Scored{Node: candidate, Score: score})
		}
	}
	sortDescByScore(scored)
	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}

	if r.tiered != nil {
		key := cache.QueryKey(queryQuestion, threshold, maxResults)
		r.tiered.Query.Put(key, toQueryResults(scored))
	}
	return scored, nil
}

// GetCacheStats returns the tiered cache's combined stats, or nil when
// caching is disabled for this retriever.
func (r *Retriever) GetCacheStats() *CacheStats {
	if r.tiered == nil {
		return nil
	}
	stats := r.tiered.Stats()
	return &stats
}

func (r *Retriever) materialize(results []cache.QueryResult) ([]Scored, error) {
	out := make([]Scored, 0, len(results))
	for _, res := range results {
		node, err := r.store.GetDecision(res.DecisionID)
		if err != nil {
			return nil, err
		}
		if node == nil {
			continue // decision was removed since the result was cached
		}
		out = append(out, Scored{Node: *node, Score: res.Similarity})
	}
	return out, nil
}

func toQueryResults(scored []Scored) []cache.QueryResult {
	out := make([]cache.QueryResult, len(scored))
	for i, s := range scored {
		out[i] = cache.QueryResult{DecisionID: s.Node.ID, Question: s.Node.Question, Similarity: s.Score}
	}
	return out
}

func sortDescByScore(scored []Scored) {
	for i := 1; i < len(scored); i++ {
		for j := i; j > 0 && scored[j].Score > scored[j-1].Score; j-- {
			scored[j], scored[j-1] = scored[j-1], scored[j]
		}
	}
}
