package resource

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.True(t, c.TryReserve(50))
	require.NoError(t, c.Reserve(40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	assert.False(t, c.TryReserve(20))
	assert.ErrorIs(t, c.Reserve(20), ErrMemoryLimitExceeded)
	assert.Equal(t, int64(90), c.MemoryUsage())

	c.Release(50)
	assert.Equal(t, int64(40), c.MemoryUsage())
	assert.True(t, c.TryReserve(20))
	assert.Equal(t, int64(60), c.MemoryUsage())
	assert.Equal(t, int64(100), c.MemoryLimit())
}

func TestController_TrackingOnly(t *testing.T) {
	c := NewController(Config{})

	assert.True(t, c.TryReserve(1<<40))
	c.Release(1 << 39)
	assert.Equal(t, int64(1<<39), c.MemoryUsage())
	assert.Equal(t, int64(0), c.MemoryLimit())
}

func TestController_Nil(t *testing.T) {
	var c *Controller

	assert.True(t, c.TryReserve(10))
	assert.NoError(t, c.Reserve(10))
	c.Release(10)
	assert.Zero(t, c.MemoryUsage())
	assert.Equal(t, 1, c.FetchWorkers())
	assert.NoError(t, c.AcquireFetch(context.Background()))
	assert.True(t, c.TryAcquireFetch())
	c.ReleaseFetch()
	assert.NoError(t, c.WaitIO(context.Background(), 1<<20))
}

func TestController_Fetch(t *testing.T) {
	c := NewController(Config{FetchWorkers: 2})
	assert.Equal(t, 2, c.FetchWorkers())

	require.NoError(t, c.AcquireFetch(t.Context()))
	require.NoError(t, c.AcquireFetch(t.Context()))
	assert.False(t, c.TryAcquireFetch())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireFetch(ctx))

	c.ReleaseFetch()
	assert.True(t, c.TryAcquireFetch())
}

func TestController_DefaultFetchWorkers(t *testing.T) {
	assert.Equal(t, 4, NewController(Config{}).FetchWorkers())
}

func TestController_WaitIOCanceled(t *testing.T) {
	c := NewController(Config{IOBytesPerSec: 10})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.WaitIO(ctx, 100))
}

func TestReader_PassThrough(t *testing.T) {
	c := NewController(Config{IOBytesPerSec: 1 << 20})
	src := bytes.Repeat([]byte{7}, 4096)

	got, err := io.ReadAll(NewReader(context.Background(), bytes.NewReader(src), c))
	require.NoError(t, err)
	assert.Equal(t, src, got)
}
