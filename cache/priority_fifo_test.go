package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityFIFO_DesignatedSurviveEviction(t *testing.T) {
	c := NewPriorityFIFO(10*16, nil)
	for i := range 10 {
		require.NoError(t, c.Set(ID(i), vec(4, float32(i))))
	}
	c.DesignatePriority(0)
	c.DesignatePriority(1)

	c.SetItemsThreshold(2)
	assert.True(t, c.Has(0))
	assert.True(t, c.Has(1))
	assert.Equal(t, 2, c.Len())
	st := c.Stats()
	assert.Equal(t, 2, st.Held)
	assert.Equal(t, 0, st.Queued)
}

func TestPriorityFIFO_HeldAfterQueuePass(t *testing.T) {
	c := NewPriorityFIFO(3*16, nil)
	c.SetEmbedSize(4)
	c.DesignatePriority(1)

	require.NoError(t, c.Set(1, vec(4, 1)))
	require.NoError(t, c.Set(2, vec(4, 2)))
	require.NoError(t, c.Set(3, vec(4, 3)))
	assert.Equal(t, 3, c.Len())

	c.SetItemsThreshold(2)
	assert.True(t, c.Has(1))
	assert.False(t, c.Has(2))
	assert.True(t, c.Has(3))
	st := c.Stats()
	assert.Equal(t, 1, st.Held)
	assert.Equal(t, 1, st.Queued)
	assert.Equal(t, 1, st.Designated)
}

func TestPriorityFIFO_RefusesWhenFull(t *testing.T) {
	c := NewPriorityFIFO(2*16, nil)
	require.NoError(t, c.Set(1, vec(4, 1)))
	require.NoError(t, c.Set(2, vec(4, 2)))
	require.NoError(t, c.Set(3, vec(4, 3)))

	assert.True(t, c.Has(1))
	assert.True(t, c.Has(2))
	assert.False(t, c.Has(3))
}

func TestPriorityFIFO_DesignatedBypassesRefusal(t *testing.T) {
	c := NewPriorityFIFO(2*16, nil)
	c.SetEmbedSize(4)
	c.DesignatePriority(3)
	require.NoError(t, c.Set(1, vec(4, 1)))
	require.NoError(t, c.Set(2, vec(4, 2)))
	require.NoError(t, c.Set(3, vec(4, 3)))

	assert.True(t, c.Has(3))
	assert.False(t, c.Has(1))
	assert.True(t, c.Has(2))
}

func TestPriorityFIFO_UndesignatedHeldAreEvicted(t *testing.T) {
	c := NewPriorityFIFO(3*16, nil)
	c.SetEmbedSize(4)
	c.DesignatePriority(1)
	c.DesignatePriority(2)
	require.NoError(t, c.Set(1, vec(4, 1)))
	require.NoError(t, c.Set(2, vec(4, 2)))
	require.NoError(t, c.Set(3, vec(4, 3)))
	c.SetItemsThreshold(2)
	require.Equal(t, 2, c.Stats().Held)

	c.ClearPriority()
	c.SetItemsThreshold(1)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 0, c.Stats().Held)
	assert.True(t, c.Has(2))
}

func TestPriorityFIFO_ReconcileKeepsEarliest(t *testing.T) {
	c := NewPriorityFIFO(3*16, nil)
	c.SetEmbedSize(4)
	for _, id := range []ID{5, 6, 7, 8, 5} {
		c.DesignatePriority(id)
	}
	assert.Equal(t, []ID{5, 6, 7}, c.Designated())

	c.SetItemsThreshold(2)
	assert.Equal(t, []ID{5, 6}, c.Designated())

	c.SetItemsThreshold(4)
	assert.Equal(t, []ID{5, 6, 7, 8}, c.Designated())

	c.ClearPriority()
	c.ReconcilePriority()
	assert.Empty(t, c.Designated())
}

func TestPriorityFIFO_ConsistencyFault(t *testing.T) {
	c := NewPriorityFIFO(3*16, nil)
	c.SetEmbedSize(4)
	c.DesignatePriority(9)
	c.held.Push(9)

	err := c.Set(9, vec(4, 9))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInternalConsistency))

	var ce *ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ID(9), ce.ID)
}

func TestPriorityFIFO_NoOpsOnOtherStrategies(t *testing.T) {
	for _, s := range []Strategy{FIFO, LRU} {
		c := newCache(t, s, 16)
		c.DesignatePriority(1)
		c.ReconcilePriority()
		c.ClearPriority()
		assert.Zero(t, c.Stats().Designated)
	}
}
