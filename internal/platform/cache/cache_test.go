package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankCacheGetPutAndPurge(t *testing.T) {
	c, err := NewRankCache(2)
	require.NoError(t, err)

	_, ok := c.Get("CRS")
	assert.False(t, ok)

	c.Put("CRS", "decision-1")
	v, ok := c.Get("CRS")
	require.True(t, ok)
	assert.Equal(t, "decision-1", v)

	c.Purge()
	_, ok = c.Get("CRS")
	assert.False(t, ok)
}

func TestRankCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewRankCache(2)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3) // evicts "a"

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestParseCacheGetPut(t *testing.T) {
	c, err := NewParseCache(4)
	require.NoError(t, err)

	_, ok := c.Get("key")
	assert.False(t, ok)

	c.Put("key", "parsed-prediction")
	v, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, "parsed-prediction", v)
}

func TestResponseKeyIsDeterministicAndDiscriminating(t *testing.T) {
	k1 := ResponseKey("claude-safety-v1", "assess CRS risk")
	k2 := ResponseKey("claude-safety-v1", "assess CRS risk")
	k3 := ResponseKey("gpt4-safety", "assess CRS risk")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}
