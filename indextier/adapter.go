package indextier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/vectier/cache"
)

// Neighbor is one query result.
type Neighbor struct {
	ID       cache.ID `json:"id"`
	Distance float32  `json:"distance"`
}

// Result is delivered to the completion callback of Query.
type Result struct {
	Neighbors []Neighbor
	Elapsed   time.Duration
	Err       error
}

// Adapter is the contract between the optimizer and an index tier.
type Adapter interface {
	SetItemsThreshold(n int)
	ItemsThreshold() int
	CacheSize() int
	// CounterString reports "hitCount,fallbackCount" for the current mode.
	CounterString() string
	ClearMonitor()
	SetMonitorMode(mode string)
	// Query runs asynchronously and calls done exactly once.
	Query(ctx context.Context, q []float32, k, ef int, done func(Result))
}

// ParseCounterString splits a CounterString value.
func ParseCounterString(s string) (hits, fallbacks int, err error) {
	h, f, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return 0, 0, fmt.Errorf("indextier: malformed counter string %q", s)
	}
	if hits, err = strconv.Atoi(strings.TrimSpace(h)); err != nil {
		return 0, 0, fmt.Errorf("indextier: malformed hit count: %w", err)
	}
	if fallbacks, err = strconv.Atoi(strings.TrimSpace(f)); err != nil {
		return 0, 0, fmt.Errorf("indextier: malformed fallback count: %w", err)
	}
	return hits, fallbacks, nil
}

// QuerySync runs Query on a and waits for its result.
func QuerySync(ctx context.Context, a Adapter, q []float32, k, ef int) Result {
	ch := make(chan Result, 1)
	a.Query(ctx, q, k, ef, func(r Result) { ch <- r })
	return <-ch
}
