package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_EvictsLeastRecent(t *testing.T) {
	c := NewLRU(48, nil)
	require.NoError(t, c.Set(1, vec(4, 1)))
	require.NoError(t, c.Set(2, vec(4, 2)))
	require.NoError(t, c.Set(3, vec(4, 3)))

	_, ok := c.Get(1)
	require.True(t, ok)
	require.NoError(t, c.Set(4, vec(4, 4)))

	assert.True(t, c.Has(1))
	assert.False(t, c.Has(2))
	assert.Equal(t, []ID{4, 1, 3}, c.Recency())
}

func TestLRU_SetRefreshes(t *testing.T) {
	c := NewLRU(48, nil)
	require.NoError(t, c.Set(1, vec(4, 1)))
	require.NoError(t, c.Set(2, vec(4, 2)))
	require.NoError(t, c.Set(3, vec(4, 3)))
	require.NoError(t, c.Set(1, vec(4, 5)))
	require.NoError(t, c.Set(4, vec(4, 4)))

	assert.True(t, c.Has(1))
	assert.False(t, c.Has(2))
}

func TestLRU_PeekAndHasDoNotRefresh(t *testing.T) {
	c := NewLRU(32, nil)
	require.NoError(t, c.Set(1, vec(4, 1)))
	require.NoError(t, c.Set(2, vec(4, 2)))
	c.Peek(1)
	c.Has(1)
	require.NoError(t, c.Set(3, vec(4, 3)))

	assert.False(t, c.Has(1))
}

func TestLRU_ArenaReusesSlots(t *testing.T) {
	c := NewLRU(160, nil)
	for i := range 10_000 {
		require.NoError(t, c.Set(ID(i), vec(4, 0)))
	}
	assert.Equal(t, 10, c.Len())
	assert.LessOrEqual(t, len(c.nodes), 11)
	assert.Len(t, c.Recency(), 10)
}

func TestLRU_DeleteHeadAndTail(t *testing.T) {
	c := NewLRU(160, nil)
	for i := range 3 {
		require.NoError(t, c.Set(ID(i), vec(4, 0)))
	}
	c.Delete(2)
	c.Delete(0)
	assert.Equal(t, []ID{1}, c.Recency())
	c.Delete(1)
	assert.Empty(t, c.Recency())
	assert.Equal(t, nilNode, c.head)
	assert.Equal(t, nilNode, c.tail)
}

func TestLRU_OverflowByOne(t *testing.T) {
	const n = 8
	fill := func(c *LRUCache) {
		for i := range n {
			require.NoError(t, c.Set(ID(i), vec(4, float32(i))))
		}
	}

	c := NewLRU(n*16, nil)
	fill(c)
	require.NoError(t, c.Set(n, vec(4, n)))
	assert.False(t, c.Has(0))
	assert.Equal(t, n, c.Len())

	c = NewLRU(n*16, nil)
	fill(c)
	_, ok := c.Get(0)
	require.True(t, ok)
	require.NoError(t, c.Set(n, vec(4, n)))
	assert.True(t, c.Has(0))
	assert.False(t, c.Has(1))
}
