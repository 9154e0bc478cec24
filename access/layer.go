package access

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/hupe1980/vectier/cache"
	"github.com/hupe1980/vectier/internal/resource"
	"github.com/hupe1980/vectier/monitor"
	"github.com/hupe1980/vectier/valuestore"
	"golang.org/x/sync/singleflight"
)

const (
	// Label is the counter label of fast tier lookups.
	Label = "ValueManager"
	// TimerMem times cache lookups.
	TimerMem = "mem"
	// TimerDB times store fetches on a miss.
	TimerDB = "db"
)

// ErrNotFound is returned when neither the cache nor the store has the id.
var ErrNotFound = valuestore.ErrNotFound

// Option configures a Layer.
type Option func(*Layer)

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(a *Layer) { a.logger = l }
}

// WithController charges resident cache bytes against rc.
func WithController(rc *resource.Controller) Option {
	return func(a *Layer) { a.rc = rc }
}

// WithAccessHook registers fn to observe every counted lookup.
func WithAccessHook(fn func(hit bool)) Option {
	return func(a *Layer) { a.hook = fn }
}

// Layer owns the fast tier cache and its telemetry.
type Layer struct {
	mu    sync.RWMutex
	cache cache.VectorCache

	counters *monitor.Counters
	timers   *monitor.Timers
	group    singleflight.Group

	rc     *resource.Controller
	logger *slog.Logger
	hook   func(hit bool)
}

// New creates a layer with an empty cache of the given strategy and budget.
func New(strategy cache.Strategy, budget int64, opts ...Option) (*Layer, error) {
	l := &Layer{
		counters: monitor.NewCounters(),
		timers:   monitor.NewTimers(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	c, err := cache.New(strategy, budget, cache.WithController(l.rc))
	if err != nil {
		return nil, err
	}
	l.cache = c
	return l, nil
}

// Cache returns the current cache. It changes on SetStrategy.
func (l *Layer) Cache() cache.VectorCache {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cache
}

func (l *Layer) observe(hit bool) {
	if l.hook != nil {
		l.hook(hit)
	}
}

// Get returns the vector for id, fetching it from store on a miss. Store
// failures are returned wrapped and never retried.
func (l *Layer) Get(ctx context.Context, id cache.ID, store valuestore.Store) ([]float32, error) {
	c := l.Cache()

	sw := l.timers.Start(TimerMem)
	v, ok := c.Get(id)
	sw.Stop()
	if ok {
		l.counters.Hit(Label, id)
		l.observe(true)
		return v, nil
	}
	l.counters.Miss(Label, id)
	l.observe(false)

	// The fetch is shared by every caller waiting on the same store and id,
	// so it must outlive the cancellation of the one that started it.
	fetchCtx := context.WithoutCancel(ctx)
	sw = l.timers.Start(TimerDB)
	ch := l.group.DoChan(fetchKey(store, id), func() (any, error) {
		return store.Get(fetchCtx, id)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		sw.Stop()
		return nil, ctx.Err()
	case res = <-ch:
	}
	sw.Stop()

	if errors.Is(res.Err, valuestore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if res.Err != nil {
		return nil, fmt.Errorf("access: fetch %d: %w", id, res.Err)
	}

	v = res.Val.([]float32)
	if err := c.Set(id, v); err != nil {
		l.logger.Error("cache admission failed", "id", id, "error", err)
	}
	return v, nil
}

// fetchKey tells concurrent fetches apart by store identity and id.
func fetchKey(store valuestore.Store, id cache.ID) string {
	return fmt.Sprintf("%T@%p/", store, store) + strconv.FormatUint(uint64(id), 10)
}

// GetNoStore looks id up in the cache only. It records nothing.
func (l *Layer) GetNoStore(id cache.ID) ([]float32, bool) {
	return l.Cache().Get(id)
}

// Set inserts v into the cache.
func (l *Layer) Set(id cache.ID, v []float32) error {
	return l.Cache().Set(id, v)
}

// SetStrategy replaces the cache with an empty one of strategy s. Residents
// are discarded; the budget is kept.
func (l *Layer) SetStrategy(s cache.Strategy) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cache.Strategy() == s {
		return nil
	}
	budget := l.cache.MemoryBudget()
	dim := l.cache.EmbedSize()
	next, err := cache.New(s, budget, cache.WithController(l.rc))
	if err != nil {
		return err
	}
	if dim > 0 {
		next.SetEmbedSize(dim)
	}
	dropped := l.cache.Len()
	l.cache.Clear()
	l.cache = next
	l.logger.Info("fast tier strategy changed", "strategy", s.String(), "discarded", dropped)
	return nil
}

func (l *Layer) SetMemoryBudget(bytes int64) {
	l.Cache().SetMemoryBudget(bytes)
}

// SetMonitorMode files subsequent telemetry under mode.
func (l *Layer) SetMonitorMode(mode string) {
	l.counters.SetMode(mode)
	l.timers.SetMode(mode)
}

// ClearMonitor resets counters and timers. Cache contents are kept.
func (l *Layer) ClearMonitor() {
	l.counters.Clear()
	l.timers.Clear()
}

// HitCount returns fast tier hits in the current mode.
func (l *Layer) HitCount() int {
	return l.counters.HitCount(Label)
}

func (l *Layer) Counters() *monitor.Counters { return l.counters }
func (l *Layer) Timers() *monitor.Timers     { return l.timers }

// Stats is a JSON-friendly report of the layer.
type Stats struct {
	Mode     string                          `json:"mode"`
	Cache    cache.Stats                     `json:"cache"`
	Counters map[string]monitor.CounterStats `json:"counters"`
	Timers   map[string][]float64            `json:"timers_ms"`
}

func (l *Layer) Stats() Stats {
	return Stats{
		Mode:     l.counters.Mode(),
		Cache:    l.Cache().Stats(),
		Counters: l.counters.Snapshot(),
		Timers:   l.timers.Snapshot(),
	}
}
