package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(maxSize int, ttl time.Duration) *Cache[string] {
	return New[string](maxSize, ttl, time.Hour)
}

func TestCache_SetGet(t *testing.T) {
	c := newTestCache(10, time.Minute)
	t.Cleanup(c.Destroy)

	c.Set("guild:1", "en")

	value, ok := c.Get("guild:1")
	require.True(t, ok)
	assert.Equal(t, "en", value)

	_, ok = c.Get("guild:2")
	assert.False(t, ok)
}

func TestCache_OverwriteKeepsSingleEntry(t *testing.T) {
	c := newTestCache(10, time.Minute)
	t.Cleanup(c.Destroy)

	c.Set("guild:1", "en")
	c.Set("guild:1", "de")

	value, ok := c.Get("guild:1")
	require.True(t, ok)
	assert.Equal(t, "de", value)
	assert.Equal(t, 1, c.Len())
}

func TestCache_TTLExpiry(t *testing.T) {
	c := newTestCache(10, 30*time.Millisecond)
	t.Cleanup(c.Destroy)

	c.Set("guild:1", "en")

	value, ok := c.Get("guild:1")
	require.True(t, ok)
	assert.Equal(t, "en", value)

	time.Sleep(50 * time.Millisecond)

	_, ok = c.Get("guild:1")
	assert.False(t, ok, "entry must be expired after its TTL")
	assert.Equal(t, 0, c.Len(), "lazy expiry removes the entry on read")
}

func TestCache_PerEntryTTLOverride(t *testing.T) {
	c := newTestCache(10, time.Minute)
	t.Cleanup(c.Destroy)

	c.SetTTL("short", "v", 20*time.Millisecond)
	c.Set("long", "v")

	time.Sleep(40 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok)

	_, ok = c.Get("long")
	assert.True(t, ok)
}

func TestCache_FIFOEviction(t *testing.T) {
	// Eviction is by insertion order, even when the oldest entry was the
	// most recently accessed.
	c := newTestCache(3, time.Minute)
	t.Cleanup(c.Destroy)

	c.Set("first", "1")
	c.Set("second", "2")
	c.Set("third", "3")

	_, ok := c.Get("first")
	require.True(t, ok)

	c.Set("fourth", "4")

	_, ok = c.Get("first")
	assert.False(t, ok, "first-inserted key is evicted despite the recent access")

	for _, key := range []string{"second", "third", "fourth"} {
		_, ok := c.Get(key)
		assert.True(t, ok, "key %s should survive eviction", key)
	}
}

func TestCache_EvictionSkipsDeletedKeys(t *testing.T) {
	c := newTestCache(2, time.Minute)
	t.Cleanup(c.Destroy)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Delete("a")
	c.Set("a", "3")

	// Cache is full again; the stale order record for the deleted "a" must
	// not shadow the re-inserted one.
	c.Set("c", "4")

	_, ok := c.Get("b")
	assert.False(t, ok, "b is now the oldest insertion and should be evicted")

	value, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "3", value)
}

func TestCache_Cleanup(t *testing.T) {
	c := newTestCache(10, 10*time.Millisecond)
	t.Cleanup(c.Destroy)

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("key:%d", i), "v")
	}
	c.SetTTL("fresh", "v", time.Minute)

	time.Sleep(30 * time.Millisecond)
	c.Cleanup()

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("fresh")
	assert.True(t, ok)
}

func TestCache_Stats(t *testing.T) {
	c := newTestCache(5, time.Minute)
	t.Cleanup(c.Destroy)

	c.Set("a", "1")
	c.Set("b", "2")

	stats := c.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 5, stats.MaxSize)
	assert.ElementsMatch(t, []string{"a", "b"}, stats.Keys)
}

func TestCache_DestroyClearsEntries(t *testing.T) {
	c := newTestCache(5, time.Minute)

	c.Set("a", "1")
	c.Destroy()

	assert.Equal(t, 0, c.Len())

	// Destroy must be safe to call twice.
	c.Destroy()
}
