package indextier

import (
	"bytes"
	"context"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/vectier/access"
	"github.com/hupe1980/vectier/cache"
	"github.com/hupe1980/vectier/valuestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dim = 8

func randomVector(rng *rand.Rand) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rng.Float32()
	}
	return v
}

// setup loads n vectors into the store, the fast tier and the graph.
func setup(t *testing.T, n int, fastBudget int64, optFns ...func(*Options)) (*GraphTier, *access.Layer, valuestore.Store, [][]float32) {
	t.Helper()
	ctx := context.Background()
	store := valuestore.NewMemoryStore()
	fast, err := access.New(cache.FIFO, fastBudget)
	require.NoError(t, err)

	tier, err := NewGraphTier(fast, store, append([]func(*Options){func(o *Options) { o.Seed = 11 }}, optFns...)...)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2))
	vecs := make([][]float32, n)
	for i := range n {
		vecs[i] = randomVector(rng)
		require.NoError(t, store.Set(ctx, cache.ID(i), vecs[i]))
		require.NoError(t, fast.Set(cache.ID(i), vecs[i]))
		require.NoError(t, tier.Insert(ctx, cache.ID(i), vecs[i]))
	}
	return tier, fast, store, vecs
}

func TestParseCounterString(t *testing.T) {
	h, f, err := ParseCounterString("12,5")
	require.NoError(t, err)
	assert.Equal(t, 12, h)
	assert.Equal(t, 5, f)

	h, f, err = ParseCounterString(" 0 , 0 ")
	require.NoError(t, err)
	assert.Zero(t, h+f)

	for _, bad := range []string{"", "12", "a,1", "1,b"} {
		_, _, err := ParseCounterString(bad)
		assert.Error(t, err, bad)
	}
}

func TestGraphTier_QueryFindsExact(t *testing.T) {
	tier, _, _, vecs := setup(t, 200, 1<<20)
	assert.Equal(t, 200, tier.Len())

	var calls atomic.Int32
	ch := make(chan Result, 2)
	tier.Query(context.Background(), vecs[17], 5, -1, func(r Result) {
		calls.Add(1)
		ch <- r
	})
	r := <-ch
	require.NoError(t, r.Err)
	require.Len(t, r.Neighbors, 5)
	assert.Equal(t, cache.ID(17), r.Neighbors[0].ID)
	assert.Positive(t, r.Elapsed)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGraphTier_LazyHitsFromFastTier(t *testing.T) {
	tier, _, _, vecs := setup(t, 100, 1<<20)
	tier.SetItemsThreshold(0)
	require.Equal(t, 0, tier.CacheSize())
	tier.ClearMonitor()

	r := QuerySync(context.Background(), tier, vecs[3], 3, 50)
	require.NoError(t, r.Err)

	hits, fallbacks, err := ParseCounterString(tier.CounterString())
	require.NoError(t, err)
	assert.Positive(t, hits)
	assert.Zero(t, fallbacks)
}

func TestGraphTier_FallbackToStore(t *testing.T) {
	tier, fast, _, vecs := setup(t, 100, 1<<20)
	tier.SetItemsThreshold(0)
	fast.Cache().Clear()
	tier.ClearMonitor()
	fast.ClearMonitor()

	r := QuerySync(context.Background(), tier, vecs[3], 3, 50)
	require.NoError(t, r.Err)

	_, fallbacks, err := ParseCounterString(tier.CounterString())
	require.NoError(t, err)
	assert.Positive(t, fallbacks)
	assert.Equal(t, fallbacks, fast.Counters().MissCount(access.Label))
	assert.Zero(t, fast.HitCount())
}

func TestGraphTier_EagerCountsFastHitsAsFallbacks(t *testing.T) {
	tier, fast, _, vecs := setup(t, 100, 1<<20, func(o *Options) { o.Lazy = false })
	tier.SetItemsThreshold(0)
	tier.ClearMonitor()
	fast.ClearMonitor()

	r := QuerySync(context.Background(), tier, vecs[3], 3, 50)
	require.NoError(t, r.Err)

	_, fallbacks, err := ParseCounterString(tier.CounterString())
	require.NoError(t, err)
	assert.Positive(t, fallbacks)
	// every fallback was answered by the fast tier, so no store reads
	assert.Equal(t, fallbacks, fast.HitCount())
}

func TestGraphTier_ModeScopedCounters(t *testing.T) {
	tier, _, _, vecs := setup(t, 50, 1<<20)
	tier.SetMonitorMode("a")
	require.NoError(t, QuerySync(context.Background(), tier, vecs[0], 1, 10).Err)
	tier.SetMonitorMode("b")
	assert.Equal(t, "0,0", tier.CounterString())
	assert.Contains(t, tier.Stats().Counters, "a::IndexTier")
}

func TestGraphTier_PriorityIDs(t *testing.T) {
	tier, _, _, _ := setup(t, 300, 1<<20, func(o *Options) { o.M = 4 })
	ids := tier.PriorityIDs()
	ep, ok := tier.EntryPoint()
	require.True(t, ok)
	require.NotEmpty(t, ids)
	assert.Equal(t, ep, ids[0])
	for _, id := range ids[1:] {
		l, _ := tier.Level(id)
		assert.GreaterOrEqual(t, l, 1)
	}
}

func TestGraphTier_InsertSkipIndex(t *testing.T) {
	tier, _, _, _ := setup(t, 10, 1<<20)
	tier.InsertSkipIndex(500, make([]float32, dim))
	assert.True(t, tier.Cache().Has(500))
	assert.False(t, tier.Contains(500))
	assert.Equal(t, 10, tier.Len())

	err := tier.Insert(context.Background(), 3, make([]float32, dim))
	assert.Error(t, err)
}

func TestGraphTier_QueryError(t *testing.T) {
	tier, _, _, vecs := setup(t, 50, 1<<20)
	tier.SetItemsThreshold(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := QuerySync(ctx, tier, vecs[0], 3, 10)
	assert.ErrorIs(t, r.Err, context.Canceled)
}

func TestGraphTier_MissingVector(t *testing.T) {
	ctx := context.Background()
	fast, err := access.New(cache.FIFO, 1<<20)
	require.NoError(t, err)
	tier, err := NewGraphTier(fast, valuestore.NewMemoryStore())
	require.NoError(t, err)

	require.NoError(t, tier.Insert(ctx, 0, make([]float32, dim)))
	tier.SetItemsThreshold(0)
	_, err = tier.Search(ctx, make([]float32, dim), 1, 1)
	assert.True(t, IsNotFound(err))
}

func TestGraphTier_Reset(t *testing.T) {
	tier, _, _, vecs := setup(t, 20, 1<<20)
	tier.Reset()
	assert.Equal(t, 0, tier.Len())
	assert.Equal(t, 0, tier.CacheSize())
	res, err := tier.Search(context.Background(), vecs[0], 1, 1)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestGraphTier_ExportImport(t *testing.T) {
	tier, fast, store, vecs := setup(t, 150, 1<<20)

	tier.ClearMonitor()
	var buf bytes.Buffer
	require.NoError(t, tier.Export(context.Background(), &buf))
	assert.Zero(t, tier.Counters().Get(Label).Hits+tier.Counters().Get(Label).Misses)

	other, err := NewGraphTier(fast, store)
	require.NoError(t, err)
	require.NoError(t, other.Import(&buf))
	assert.Equal(t, tier.Len(), other.Len())
	assert.Equal(t, tier.PriorityIDs(), other.PriorityIDs())

	want, err := tier.Search(context.Background(), vecs[3], 5, 64)
	require.NoError(t, err)
	got, err := other.Search(context.Background(), vecs[3], 5, 64)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
