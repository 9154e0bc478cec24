package cache

import (
	"fmt"

	"github.com/hupe1980/vectier/internal/resource"
)

// Option configures a cache built by New.
type Option func(*options)

type options struct {
	rc *resource.Controller
}

// WithController charges resident vector bytes against rc. When rc refuses a
// reservation the entry is not admitted.
func WithController(rc *resource.Controller) Option {
	return func(o *options) { o.rc = rc }
}

// New creates an empty cache for strategy with a byte budget.
func New(strategy Strategy, budget int64, opts ...Option) (VectorCache, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	switch strategy {
	case FIFO:
		return NewFIFO(budget, o.rc), nil
	case LRU:
		return NewLRU(budget, o.rc), nil
	case PriorityFIFO:
		return NewPriorityFIFO(budget, o.rc), nil
	}
	return nil, fmt.Errorf("cache: unknown strategy %d", strategy)
}

var (
	_ VectorCache = (*FIFOCache)(nil)
	_ VectorCache = (*LRUCache)(nil)
	_ VectorCache = (*PriorityFIFOCache)(nil)
)
