package valuestore

import (
	"context"
	"time"

	"github.com/hupe1980/vectier/cache"
)

// Latency delays every read of the wrapped store by a fixed duration. It
// makes store cost visible to the optimizer in tests and benchmarks.
type Latency struct {
	Store
	Delay time.Duration
}

// WithLatency wraps s.
func WithLatency(s Store, d time.Duration) *Latency {
	return &Latency{Store: s, Delay: d}
}

func (l *Latency) wait(ctx context.Context) error {
	if l.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(l.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (l *Latency) Get(ctx context.Context, id cache.ID) ([]float32, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.Store.Get(ctx, id)
}

func (l *Latency) BulkGet(ctx context.Context, ids []cache.ID) ([]Result, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.Store.BulkGet(ctx, ids)
}

// Close closes the wrapped store if it has a Close method.
func (l *Latency) Close(ctx context.Context) error {
	switch c := l.Store.(type) {
	case interface{ Close() error }:
		return c.Close()
	case interface{ Close(context.Context) error }:
		return c.Close(ctx)
	}
	return nil
}

// SaveIndex forwards to the wrapped store. It is a no-op when that store is
// not an IndexStore.
func (l *Latency) SaveIndex(ctx context.Context, data []byte) error {
	if is, ok := l.Store.(IndexStore); ok {
		return is.SaveIndex(ctx, data)
	}
	return nil
}

func (l *Latency) LoadIndex(ctx context.Context) ([]byte, bool, error) {
	if is, ok := l.Store.(IndexStore); ok {
		return is.LoadIndex(ctx)
	}
	return nil, false, nil
}
