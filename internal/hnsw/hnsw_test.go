package hnsw

import (
	"cmp"
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/hupe1980/vectier/distance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vectorMap map[uint32][]float32

func (m vectorMap) get(_ context.Context, id uint32) ([]float32, error) {
	v, ok := m[id]
	if !ok {
		return nil, errors.New("missing vector")
	}
	return v, nil
}

func randomVectors(n, dim int, seed uint64) vectorMap {
	rng := rand.New(rand.NewPCG(seed, seed))
	m := make(vectorMap, n)
	for i := range n {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()
		}
		m[uint32(i)] = v
	}
	return m
}

func build(t *testing.T, vecs vectorMap, optFns ...func(*Options)) *Graph {
	t.Helper()
	g := New(append([]func(*Options){func(o *Options) { o.Seed = 7 }}, optFns...)...)
	for id := range uint32(len(vecs)) {
		require.NoError(t, g.Insert(context.Background(), id, vecs[id], vecs.get))
	}
	return g
}

func bruteForce(vecs vectorMap, q []float32, k int) []uint32 {
	type pair struct {
		id uint32
		d  float32
	}
	all := make([]pair, 0, len(vecs))
	for id, v := range vecs {
		all = append(all, pair{id, distance.SquaredL2(q, v)})
	}
	slices.SortFunc(all, func(a, b pair) int { return cmp.Compare(a.d, b.d) })
	out := make([]uint32, k)
	for i := range k {
		out[i] = all[i].id
	}
	return out
}

func TestGraph_Recall(t *testing.T) {
	vecs := randomVectors(500, 16, 1)
	g := build(t, vecs)
	require.Equal(t, 500, g.Len())

	queries := randomVectors(20, 16, 2)
	hits := 0
	for _, q := range queries {
		res, err := g.Search(context.Background(), q, 10, 64, vecs.get)
		require.NoError(t, err)
		require.Len(t, res, 10)
		assert.True(t, slices.IsSortedFunc(res, func(a, b SearchResult) int { return cmp.Compare(a.Distance, b.Distance) }))

		truth := bruteForce(vecs, q, 10)
		for _, r := range res {
			if slices.Contains(truth, r.ID) {
				hits++
			}
		}
	}
	assert.GreaterOrEqual(t, float64(hits)/200, 0.9)
}

func TestGraph_ExactMatch(t *testing.T) {
	vecs := randomVectors(200, 8, 3)
	g := build(t, vecs, func(o *Options) { o.Heuristic = false })
	res, err := g.Search(context.Background(), vecs[42], 1, 50, vecs.get)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, uint32(42), res[0].ID)
	assert.Zero(t, res[0].Distance)
}

func TestGraph_LinkLimits(t *testing.T) {
	vecs := randomVectors(300, 4, 4)
	g := build(t, vecs, func(o *Options) { o.M = 4 })
	for id := range uint32(300) {
		level, ok := g.Level(id)
		require.True(t, ok)
		assert.LessOrEqual(t, len(g.Neighbors(id, 0)), 8)
		for l := 1; l <= level; l++ {
			assert.LessOrEqual(t, len(g.Neighbors(id, l)), 4)
		}
	}
	st := g.Stats()
	assert.Equal(t, 300, st.Nodes)
	assert.Equal(t, 300, st.Levels[0].Nodes)
	assert.Equal(t, "8", st.Parameters["M0"])
}

func TestGraph_UpperLayerIDs(t *testing.T) {
	vecs := randomVectors(400, 4, 5)
	g := build(t, vecs, func(o *Options) { o.M = 4 })

	ids := g.UpperLayerIDs()
	ep, ok := g.EntryPoint()
	require.True(t, ok)
	require.NotEmpty(t, ids)
	assert.Equal(t, ep, ids[0])

	prev := 1 << 30
	for _, id := range ids[1:] {
		level, _ := g.Level(id)
		assert.GreaterOrEqual(t, level, 1)
		assert.LessOrEqual(t, level, prev)
		prev = level
	}

	upper := 0
	for id := range uint32(400) {
		if l, _ := g.Level(id); l >= 1 && id != ep {
			upper++
		}
	}
	assert.Len(t, ids, upper+1)
}

func TestGraph_Edges(t *testing.T) {
	g := New()
	ctx := context.Background()

	res, err := g.Search(ctx, []float32{1}, 1, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Nil(t, g.UpperLayerIDs())

	_, err = g.Search(ctx, []float32{1}, 0, 1, nil)
	assert.ErrorIs(t, err, ErrInvalidK)
	assert.ErrorIs(t, g.Insert(ctx, 1, nil, nil), ErrEmptyVector)

	vecs := vectorMap{1: {1, 1}}
	require.NoError(t, g.Insert(ctx, 1, vecs[1], vecs.get))
	var dup *ErrDuplicateID
	assert.ErrorAs(t, g.Insert(ctx, 1, vecs[1], vecs.get), &dup)
	assert.Equal(t, []uint32{1}, g.UpperLayerIDs())

	g.Reset()
	assert.Equal(t, 0, g.Len())
	_, ok := g.EntryPoint()
	assert.False(t, ok)
}

func TestGraph_VectorErrorPropagates(t *testing.T) {
	vecs := randomVectors(50, 4, 6)
	g := build(t, vecs)
	boom := errors.New("store down")
	_, err := g.Search(context.Background(), vecs[0], 5, 10, func(context.Context, uint32) ([]float32, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestGraph_Canceled(t *testing.T) {
	vecs := randomVectors(50, 4, 8)
	g := build(t, vecs)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Search(ctx, vecs[0], 5, 10, vecs.get)
	assert.ErrorIs(t, err, context.Canceled)
}
