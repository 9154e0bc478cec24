package access

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/vectier/cache"
	"github.com/hupe1980/vectier/valuestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts Get calls and optionally blocks them until release
// is closed.
type countingStore struct {
	valuestore.Store
	gets    atomic.Int32
	release chan struct{}
	err     error
}

func (s *countingStore) Get(ctx context.Context, id cache.ID) ([]float32, error) {
	s.gets.Add(1)
	if s.release != nil {
		<-s.release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.Get(ctx, id)
}

func newStore(t *testing.T, n int) *countingStore {
	t.Helper()
	s := valuestore.NewMemoryStore()
	for i := range n {
		require.NoError(t, s.Set(context.Background(), cache.ID(i), []float32{float32(i), 0, 0, 0}))
	}
	return &countingStore{Store: s}
}

func TestLayer_HitDoesNotTouchStore(t *testing.T) {
	store := newStore(t, 4)
	l, err := New(cache.FIFO, 1<<20)
	require.NoError(t, err)
	require.NoError(t, l.Set(1, []float32{9, 9, 9, 9}))

	v, err := l.Get(context.Background(), 1, store)
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 9, 9, 9}, v)
	assert.Zero(t, store.gets.Load())
	assert.Equal(t, 1, l.HitCount())
	assert.Equal(t, 1, l.Timers().Count(TimerMem))
	assert.Zero(t, l.Timers().Count(TimerDB))
}

func TestLayer_MissFetchesOnceAndAdmits(t *testing.T) {
	store := newStore(t, 4)
	var hits, misses int
	l, err := New(cache.LRU, 1<<20, WithAccessHook(func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}))
	require.NoError(t, err)

	v, err := l.Get(context.Background(), 2, store)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 0, 0, 0}, v)
	assert.Equal(t, int32(1), store.gets.Load())
	assert.True(t, l.Cache().Has(2))

	_, err = l.Get(context.Background(), 2, store)
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.gets.Load())

	st := l.Counters().Get(Label)
	assert.Equal(t, 1, st.Hits)
	assert.Equal(t, 1, st.Misses)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
	assert.Equal(t, 1, l.Timers().Count(TimerDB))
}

func TestLayer_NotFound(t *testing.T) {
	store := newStore(t, 1)
	l, err := New(cache.FIFO, 1<<20)
	require.NoError(t, err)

	_, err = l.Get(context.Background(), 99, store)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, l.Cache().Has(99))
	assert.Equal(t, 0, l.Cache().Len())
}

func TestLayer_StoreFailureWrapped(t *testing.T) {
	store := newStore(t, 1)
	store.err = errors.New("backend down")
	l, err := New(cache.FIFO, 1<<20)
	require.NoError(t, err)

	_, err = l.Get(context.Background(), 0, store)
	require.Error(t, err)
	assert.ErrorContains(t, err, "backend down")
	assert.Equal(t, int32(1), store.gets.Load())
}

func TestLayer_ConcurrentMissesShareFetch(t *testing.T) {
	store := newStore(t, 1)
	store.release = make(chan struct{})
	l, err := New(cache.FIFO, 1<<20)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := l.Get(context.Background(), 0, store)
			assert.NoError(t, err)
			assert.Len(t, v, 4)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.Equal(t, int32(1), store.gets.Load())
}

func TestLayer_CanceledCallerDoesNotFailSharedFetch(t *testing.T) {
	store := newStore(t, 1)
	store.release = make(chan struct{})
	l, err := New(cache.FIFO, 1<<20)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := l.Get(ctx, 0, store)
		first <- err
	}()
	require.Eventually(t, func() bool { return store.gets.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() {
		v, err := l.Get(context.Background(), 0, store)
		if err == nil && len(v) != 4 {
			err = errors.New("unexpected vector")
		}
		second <- err
	}()
	time.Sleep(10 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)
	close(store.release)
	assert.NoError(t, <-second)

	assert.Equal(t, int32(1), store.gets.Load())
	assert.True(t, l.Cache().Has(0))
	assert.Equal(t, 2, l.Timers().Count(TimerDB))
}

func TestLayer_FetchesKeyedByStore(t *testing.T) {
	slow := newStore(t, 1)
	slow.release = make(chan struct{})
	defer close(slow.release)

	other := valuestore.NewMemoryStore()
	require.NoError(t, other.Set(context.Background(), 0, []float32{7, 7, 7, 7}))

	l, err := New(cache.FIFO, 1<<20)
	require.NoError(t, err)

	go func() { _, _ = l.Get(context.Background(), 0, slow) }()
	require.Eventually(t, func() bool { return slow.gets.Load() == 1 }, time.Second, time.Millisecond)

	// a fetch of the same id from another store does not join the blocked one
	done := make(chan []float32, 1)
	go func() {
		v, _ := l.Get(context.Background(), 0, other)
		done <- v
	}()
	select {
	case v := <-done:
		assert.Equal(t, []float32{7, 7, 7, 7}, v)
	case <-time.After(time.Second):
		t.Fatal("fetch from the second store waited on the first")
	}
}

func TestLayer_GetNoStore(t *testing.T) {
	l, err := New(cache.FIFO, 1<<20)
	require.NoError(t, err)
	_, ok := l.GetNoStore(1)
	assert.False(t, ok)
	require.NoError(t, l.Set(1, []float32{1}))
	_, ok = l.GetNoStore(1)
	assert.True(t, ok)
	assert.Zero(t, l.HitCount())
	assert.Empty(t, l.Counters().Snapshot())
}

func TestLayer_SetStrategyDiscards(t *testing.T) {
	l, err := New(cache.FIFO, 4*4*10)
	require.NoError(t, err)
	require.NoError(t, l.Set(1, []float32{1, 2, 3, 4}))
	require.Equal(t, 10, l.Cache().ItemsThreshold())

	require.NoError(t, l.SetStrategy(cache.PriorityFIFO))
	assert.Equal(t, cache.PriorityFIFO, l.Cache().Strategy())
	assert.Equal(t, 0, l.Cache().Len())
	assert.Equal(t, int64(160), l.Cache().MemoryBudget())
	assert.Equal(t, 10, l.Cache().ItemsThreshold())
}

func TestLayer_ModesAndClear(t *testing.T) {
	store := newStore(t, 2)
	l, err := New(cache.FIFO, 1<<20)
	require.NoError(t, err)

	l.SetMonitorMode("q1")
	_, _ = l.Get(context.Background(), 0, store)
	_, _ = l.Get(context.Background(), 0, store)
	assert.Equal(t, 1, l.HitCount())

	l.SetMonitorMode("q2")
	assert.Zero(t, l.HitCount())

	st := l.Stats()
	assert.Equal(t, "q2", st.Mode)
	assert.Contains(t, st.Counters, "q1::ValueManager")
	assert.Equal(t, 1, st.Cache.Size)

	l.ClearMonitor()
	l.SetMonitorMode("q1")
	assert.Zero(t, l.HitCount())
	assert.True(t, l.Cache().Has(0))
}
