package rescache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	c := New[string]()
	v := c.Set("k1", "v1", time.Hour)
	assert.Equal(t, uint64(1), v)

	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1", got)
}

func TestSetBumpsVersion(t *testing.T) {
	c := New[int]()
	c.Set("k", 1, 0)
	v2 := c.Set("k", 2, 0)
	assert.Equal(t, uint64(2), v2)
}

func TestRefreshMissingKey(t *testing.T) {
	c := New[int]()
	_, ok := c.Refresh("missing", 1)
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c := New[string]()
	start := time.Now()
	c.now = func() time.Time { return start }
	c.Set("k", "v", 10*time.Millisecond)

	c.now = func() time.Time { return start.Add(20 * time.Millisecond) }
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.CleanupExpired())
	assert.Equal(t, 0, c.Size())
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := New[string]()
	start := time.Now()
	c.now = func() time.Time { return start }
	c.Set("k", "v", 0)
	c.now = func() time.Time { return start.Add(24 * time.Hour) }
	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestRemoveAndClear(t *testing.T) {
	c := New[int]()
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Remove("a")
	assert.False(t, c.Contains("a"))
	c.Clear()
	assert.Equal(t, 0, c.Size())
}
