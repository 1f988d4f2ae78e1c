package querybuilder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheHitAndMiss(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	defer c.Stop()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k1", "v1", 0)
	v, ok := c.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestCacheEntryExpires(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	defer c.Stop()

	c.Set("k1", "v1", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("k1")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Expired)
}

func TestCacheEvictsAtMaxSize(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	defer c.Stop()

	c.Set("k1", 1, 0)
	c.Set("k2", 2, 0)
	c.Set("k3", 3, 0) // evicts k1 (least recently used)

	stats := c.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, int64(1), stats.Evictions)

	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestCacheClearResetsCountersAndEntries(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	defer c.Stop()

	c.Set("k1", 1, 0)
	c.Get("k1")
	c.Clear()

	stats := c.Stats()
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, int64(0), stats.Hits)
}
