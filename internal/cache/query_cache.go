package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// QueryResult is one retrieved-decision entry as returned by the
// retriever (C5), cached verbatim by QueryCache.
type QueryResult struct {
	DecisionID string
	Question   string
	Similarity float64
}

// QueryCache is the L1 tier: query -> result list, TTL-bound, and
// invalidated wholesale whenever a new decision is written.
type QueryCache struct {
	lru *LRU[string, []QueryResult]
	ttl time.Duration
}

// NewQueryCache builds the L1 cache with the given capacity and
// default TTL (300s in the reference configuration).
func NewQueryCache(capacity int, ttl time.Duration) *QueryCache {
	return &QueryCache{lru: NewLRU[string, []QueryResult](capacity), ttl: ttl}
}

// QueryKey derives the L1 cache key: sha256(question) | threshold | max_results.
func QueryKey(question string, threshold float64, maxResults int) string {
	sum := sha256.Sum256([]byte(question))
	return fmt.Sprintf("%s|%.4f|%d", hex.EncodeToString(sum[:]), threshold, maxResults)
}

// Get returns the cached result list for key, if present and unexpired.
func (c *QueryCache) Get(key string) ([]QueryResult, bool) {
	return c.lru.Get(key)
}

// Put stores results under key with the cache's configured TTL.
func (c *QueryCache) Put(key string, results []QueryResult) {
	c.lru.Set(key, results, c.ttl)
}

// InvalidateAll clears every L1 entry, called whenever a new decision
// is stored (event-invalidation — a stale query result could otherwise
// omit the just-written decision).
func (c *QueryCache) InvalidateAll() {
	c.lru.Clear()
}

// Stats returns the L1 tier's cumulative counters.
func (c *QueryCache) Stats() Stats {
	return c.lru.Stats()
}
