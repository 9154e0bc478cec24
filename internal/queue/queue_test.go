package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinHeap(t *testing.T) {
	pq := NewMin(4)
	for i, d := range []float32{5, 1, 4, 2, 3} {
		pq.Push(Item{ID: uint32(i), Distance: d})
	}
	top, ok := pq.Top()
	assert.True(t, ok)
	assert.Equal(t, Item{ID: 1, Distance: 1}, top)

	var got []float32
	for _, it := range pq.Drain() {
		got = append(got, it.Distance)
	}
	assert.Equal(t, []float32{1, 2, 3, 4, 5}, got)
	assert.Equal(t, 0, pq.Len())

	_, ok = pq.Pop()
	assert.False(t, ok)
}

func TestMaxHeap(t *testing.T) {
	pq := NewMax(0)
	for i, d := range []float32{5, 1, 4, 2, 3} {
		pq.Push(Item{ID: uint32(i), Distance: d})
	}
	it, _ := pq.Pop()
	assert.Equal(t, float32(5), it.Distance)
	it, _ = pq.Pop()
	assert.Equal(t, float32(4), it.Distance)

	pq.Reset()
	_, ok := pq.Top()
	assert.False(t, ok)
}
