package integration_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/vectier"
	"github.com/hupe1980/vectier/blobstore"
	"github.com/hupe1980/vectier/cache"
	"github.com/hupe1980/vectier/testutil"
	"github.com/hupe1980/vectier/valuestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dim = 16

func TestE2E_Restart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.db")
	codec := valuestore.Codec{Compression: valuestore.CompressionZSTD}
	vecs := testutil.NewRNG(1).UniformVectors(200, dim)

	// 1. Open and insert; Close saves the graph into index_tree
	store, err := valuestore.OpenSQLite(ctx, path, codec)
	require.NoError(t, err)
	e, err := vectier.New(store, vectier.WithSeed(1))
	require.NoError(t, err)

	for i, v := range vecs {
		_, err := e.Insert(ctx, fmt.Sprintf("doc-%d", i), v)
		require.NoError(t, err)
	}
	want, err := e.Query(ctx, vecs[42], 5)
	require.NoError(t, err)
	require.NoError(t, e.Close(ctx))

	// 2. Reopen on the same database; New restores the graph and embed size
	store, err = valuestore.OpenSQLite(ctx, path, codec)
	require.NoError(t, err)
	e, err = vectier.New(store, vectier.WithStrategy(cache.PriorityFIFO), vectier.WithFastMemory(1<<16))
	require.NoError(t, err)
	defer e.Close(ctx)

	stats := e.Stats()
	assert.Equal(t, dim, stats.Dimension)
	assert.Equal(t, len(vecs), stats.Index.Nodes)
	assert.Equal(t, len(vecs), stats.Items)

	got, err := e.Query(ctx, vecs[42], 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "doc-42", got[0].Key)

	_, err = e.Insert(ctx, "short", make([]float32, dim-1))
	var dm *vectier.ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)
}

func TestE2E_BlobStoreOptimize(t *testing.T) {
	ctx := context.Background()
	blobs, err := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	vs, err := valuestore.OpenBlobStore(ctx, blobs, valuestore.WithCodec(valuestore.Codec{Compression: valuestore.CompressionLZ4}))
	require.NoError(t, err)
	store := valuestore.WithLatency(vs, 100*time.Microsecond)

	metrics := &vectier.BasicMetricsCollector{}
	budget := int64(400 * dim * cache.BytesPerComponent)
	e, err := vectier.New(store,
		vectier.WithFastMemory(budget),
		vectier.WithIndexMemory(budget),
		vectier.WithStrategy(cache.LRU),
		vectier.WithMetricsCollector(metrics),
	)
	require.NoError(t, err)
	defer e.Close(ctx)

	rng := testutil.NewRNG(2)
	vecs := rng.ClusteredVectors(400, dim, 4, 0.05)
	for i, v := range vecs {
		_, err := e.Insert(ctx, fmt.Sprintf("doc-%d", i), v)
		require.NoError(t, err)
	}
	for _, id := range rng.ZipfIDs(50, len(vecs), 1.3) {
		_, err := e.Query(ctx, vecs[id], 10)
		require.NoError(t, err)
	}

	before := e.Sizes()
	sizes, err := e.Optimize(ctx, 0.8, 1000)
	require.NoError(t, err)
	assert.LessOrEqual(t, sizes.Total(), before.Total())
	assert.Equal(t, int64(1), metrics.GetStats().OptimizeCount)

	truth := testutil.BruteForceSearch(vecs, vecs[3], 10)
	res, err := e.Query(ctx, vecs[3], 10)
	require.NoError(t, err)
	approx := make([]testutil.SearchResult, len(res))
	for i, r := range res {
		approx[i] = testutil.SearchResult{ID: r.ID, Distance: r.Distance}
	}
	assert.GreaterOrEqual(t, testutil.ComputeRecall(truth, approx), 0.7)
}

func TestE2E_StrategiesAgree(t *testing.T) {
	ctx := context.Background()
	vecs := testutil.NewRNG(3).UniformVectors(300, dim)
	budget := int64(30 * dim * cache.BytesPerComponent)

	var first []vectier.Result
	for _, s := range []cache.Strategy{cache.FIFO, cache.LRU, cache.PriorityFIFO} {
		e, err := vectier.New(valuestore.NewMemoryStore(),
			vectier.WithStrategy(s),
			vectier.WithFastMemory(budget),
			vectier.WithIndexMemory(budget),
			vectier.WithSeed(9),
		)
		require.NoError(t, err)
		for i, v := range vecs {
			_, err := e.Insert(ctx, fmt.Sprintf("doc-%d", i), v)
			require.NoError(t, err)
		}
		res, err := e.Query(ctx, vecs[11], 5)
		require.NoError(t, err)
		require.NoError(t, e.Close(ctx))

		if first == nil {
			first = res
			continue
		}
		assert.Equal(t, first, res, "strategy %s", s)
	}
}
