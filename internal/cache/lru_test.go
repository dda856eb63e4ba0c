package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRU_SetGet(t *testing.T) {
	c := NewLRU[string, int](2)
	c.Set("a", 1, 0)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string, int](2)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Get("a") // promote a to most-recently-used
	c.Set("c", 3, 0)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted as least-recently-used")

	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRU_TTLExpiry(t *testing.T) {
	c := NewLRU[string, int](10)
	c.Set("a", 1, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestLRU_NoTTLNeverExpires(t *testing.T) {
	c := NewLRU[string, int](10)
	c.Set("a", 1, 0)
	time.Sleep(5 * time.Millisecond)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestLRU_Delete(t *testing.T) {
	c := NewLRU[string, int](10)
	c.Set("a", 1, 0)
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestLRU_Clear(t *testing.T) {
	c := NewLRU[string, int](10)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestLRU_StatsHitRate(t *testing.T) {
	c := NewLRU[string, int](10)
	c.Set("a", 1, 0)
	c.Get("a")
	c.Get("missing")
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
}

func TestLRU_GetCompletesSubmillisecondAtCapacity(t *testing.T) {
	c := NewLRU[string, int](100)
	for i := 0; i < 100; i++ {
		c.Set(string(rune('a'+i%26))+string(rune(i)), i, 0)
	}
	start := time.Now()
	c.Get("warm-lookup-key")
	assert.Less(t, time.Since(start), time.Millisecond)
}
