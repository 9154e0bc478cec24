package cache

import (
	"math/rand/v2"
	"testing"

	"github.com/hupe1980/vectier/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var strategies = []Strategy{FIFO, LRU, PriorityFIFO}

func vec(dim int, x float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = x
	}
	return v
}

func newCache(t *testing.T, s Strategy, budget int64) VectorCache {
	t.Helper()
	c, err := New(s, budget)
	require.NoError(t, err)
	return c
}

func TestThresholdFor(t *testing.T) {
	assert.Equal(t, 1953, ThresholdFor(1_000_000, 128))
	assert.Equal(t, 0, ThresholdFor(1_000_000, 0))
	assert.Equal(t, 0, ThresholdFor(0, 128))
	assert.Equal(t, 100, ThresholdFor(1600, 4))
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
	}{
		{"fifo", FIFO},
		{"LRU", LRU},
		{"PriorityFIFO", PriorityFIFO},
		{"priority-fifo", PriorityFIFO},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, mustRoundTrip(t, got))
	}

	_, err := ParseStrategy("clock")
	assert.Error(t, err)

	_, err = New(Strategy(42), 10)
	assert.Error(t, err)
}

func mustRoundTrip(t *testing.T, s Strategy) Strategy {
	t.Helper()
	b, err := s.MarshalText()
	require.NoError(t, err)
	var out Strategy
	require.NoError(t, out.UnmarshalText(b))
	return out
}

func TestCache_FirstSetFixesDimension(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			c := newCache(t, s, 1_000_000)
			assert.Equal(t, 0, c.ItemsThreshold())

			require.NoError(t, c.Set(1, vec(128, 1)))
			assert.Equal(t, 128, c.EmbedSize())
			assert.Equal(t, 1953, c.ItemsThreshold())
			assert.True(t, c.Has(1))
		})
	}
}

func TestCache_BudgetChangesThreshold(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			c := newCache(t, s, 1600)
			c.SetEmbedSize(4)
			for i := range 100 {
				require.NoError(t, c.Set(ID(i), vec(4, float32(i))))
			}
			assert.Equal(t, 100, c.Len())

			c.SetMemoryBudget(160)
			assert.Equal(t, 10, c.ItemsThreshold())
			assert.Equal(t, 10, c.Len())
			assert.Equal(t, int64(160), c.MemoryBudget())

			c.SetItemsThreshold(3)
			assert.Equal(t, 3, c.Len())

			c.SetMemoryBudget(-5)
			assert.Equal(t, 0, c.Len())
			assert.Equal(t, int64(0), c.MemoryBudget())
		})
	}
}

func TestCache_ZeroThresholdKeepsNothing(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			c := newCache(t, s, 0)
			require.NoError(t, c.Set(1, vec(4, 1)))
			assert.Equal(t, 0, c.Len())
			assert.False(t, c.Has(1))
		})
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			c := newCache(t, s, 1600)
			for i := range 10 {
				require.NoError(t, c.Set(ID(i), vec(4, float32(i))))
			}
			c.Delete(3)
			c.Delete(999)
			assert.False(t, c.Has(3))
			assert.Equal(t, 9, c.Len())

			c.Clear()
			assert.Equal(t, 0, c.Len())
			_, ok := c.RandomID()
			assert.False(t, ok)

			require.NoError(t, c.Set(3, vec(4, 3)))
			v, ok := c.Get(3)
			require.True(t, ok)
			assert.Equal(t, vec(4, 3), v)
		})
	}
}

func TestCache_UpdateKeepsSize(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			c := newCache(t, s, 1600)
			require.NoError(t, c.Set(1, vec(4, 1)))
			require.NoError(t, c.Set(1, vec(4, 2)))
			assert.Equal(t, 1, c.Len())
			v, ok := c.Peek(1)
			require.True(t, ok)
			assert.Equal(t, vec(4, 2), v)
			assert.Equal(t, int64(16), c.Stats().ResidentBytes)
		})
	}
}

func TestCache_RandomID(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			c := newCache(t, s, 1600)
			for i := range 20 {
				require.NoError(t, c.Set(ID(i), vec(4, 0)))
			}
			for range 50 {
				id, ok := c.RandomID()
				require.True(t, ok)
				assert.True(t, c.Has(id))
			}
		})
	}
}

func TestCache_ControllerRefusal(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 32})
	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			c, err := New(s, 1600, WithController(rc))
			require.NoError(t, err)

			require.NoError(t, c.Set(1, vec(4, 1)))
			require.NoError(t, c.Set(2, vec(4, 2)))
			require.NoError(t, c.Set(3, vec(4, 3)))
			assert.Equal(t, 2, c.Len())
			assert.False(t, c.Has(3))
			assert.Equal(t, int64(32), rc.MemoryUsage())

			c.Clear()
			assert.Equal(t, int64(0), rc.MemoryUsage())
		})
	}
}

// Random operation sequences must never leave more resident items than the
// threshold allows.
func TestCache_SizeNeverExceedsThreshold(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			r := rand.New(rand.NewPCG(7, uint64(s)))
			c := newCache(t, s, 40*16)
			c.SetEmbedSize(4)

			for step := range 5000 {
				id := ID(r.IntN(200))
				switch op := r.IntN(10); {
				case op < 5:
					require.NoError(t, c.Set(id, vec(4, float32(id))))
				case op < 7:
					c.Get(id)
				case op == 7:
					c.Delete(id)
				case op == 8:
					c.DesignatePriority(id)
					if r.IntN(4) == 0 {
						c.ReconcilePriority()
					}
				default:
					if r.IntN(20) == 0 {
						c.SetItemsThreshold(r.IntN(60))
					}
					if r.IntN(50) == 0 {
						c.ClearPriority()
					}
				}
				require.LessOrEqual(t, c.Len(), c.ItemsThreshold(), "step %d", step)
				st := c.Stats()
				require.Equal(t, int64(st.Size*16), st.ResidentBytes, "step %d", step)
			}
		})
	}
}
