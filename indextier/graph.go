package indextier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hupe1980/vectier/access"
	"github.com/hupe1980/vectier/cache"
	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/internal/hnsw"
	"github.com/hupe1980/vectier/internal/resource"
	"github.com/hupe1980/vectier/monitor"
	"github.com/hupe1980/vectier/valuestore"
)

const (
	// Label is the counter label of index tier lookups.
	Label = "IndexTier"
	// TimerQuery times whole queries.
	TimerQuery = "query"

	// DefaultEF is used when a query passes a negative ef.
	DefaultEF = 200
)

// Options configures a GraphTier.
type Options struct {
	Strategy       cache.Strategy
	MemoryBudget   int64
	M              int
	EFConstruction int
	// Lazy lets a node vector resident in the fast tier satisfy the index
	// tier without touching the store.
	Lazy   bool
	Metric distance.Metric
	Seed   uint64
	Logger *slog.Logger
	// Controller charges resident tier bytes.
	Controller *resource.Controller
	// OnAccess observes every counted node lookup.
	OnAccess func(hit bool)
}

var DefaultOptions = Options{
	Strategy:       cache.FIFO,
	MemoryBudget:   10 << 20,
	M:              16,
	EFConstruction: DefaultEF,
	Lazy:           true,
	Metric:         distance.MetricL2,
}

// GraphTier is an HNSW index whose node vectors are cached in a tier of
// their own.
type GraphTier struct {
	opts   Options
	logger *slog.Logger

	graph *hnsw.Graph
	cache cache.VectorCache
	fast  *access.Layer
	store valuestore.Store

	counters *monitor.Counters
	timers   *monitor.Timers
}

// NewGraphTier creates an empty index tier backed by fast and store.
func NewGraphTier(fast *access.Layer, store valuestore.Store, optFns ...func(o *Options)) (*GraphTier, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dist, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}
	c, err := cache.New(opts.Strategy, opts.MemoryBudget, cache.WithController(opts.Controller))
	if err != nil {
		return nil, err
	}

	g := hnsw.New(func(o *hnsw.Options) {
		o.M = opts.M
		o.EFConstruction = opts.EFConstruction
		o.Distance = dist
		o.Seed = opts.Seed
	})

	return &GraphTier{
		opts:     opts,
		logger:   opts.Logger,
		graph:    g,
		cache:    c,
		fast:     fast,
		store:    store,
		counters: monitor.NewCounters(),
		timers:   monitor.NewTimers(),
	}, nil
}

// resolve returns the vector of a graph node, recording a hit when the tier
// or (lazily) the fast tier has it and a fallback otherwise.
func (t *GraphTier) resolve(ctx context.Context, id uint32) ([]float32, error) {
	if v, ok := t.cache.Get(id); ok {
		t.hit(id)
		return v, nil
	}
	if t.opts.Lazy {
		if v, ok := t.fast.GetNoStore(id); ok {
			t.hit(id)
			t.admit(id, v)
			return v, nil
		}
	}
	t.counters.Miss(Label, id)
	if t.opts.OnAccess != nil {
		t.opts.OnAccess(false)
	}
	v, err := t.fast.Get(ctx, id, t.store)
	if err != nil {
		return nil, fmt.Errorf("indextier: resolve node %d: %w", id, err)
	}
	t.admit(id, v)
	return v, nil
}

func (t *GraphTier) hit(id cache.ID) {
	t.counters.Hit(Label, id)
	if t.opts.OnAccess != nil {
		t.opts.OnAccess(true)
	}
}

func (t *GraphTier) admit(id cache.ID, v []float32) {
	if err := t.cache.Set(id, v); err != nil {
		t.logger.Error("index tier admission failed", "id", id, "error", err)
	}
}

// Insert caches v and links id into the graph.
func (t *GraphTier) Insert(ctx context.Context, id cache.ID, v []float32) error {
	if t.graph.Contains(id) {
		return &hnsw.ErrDuplicateID{ID: id}
	}
	t.admit(id, v)
	return t.graph.Insert(ctx, id, v, t.resolve)
}

// InsertSkipIndex caches v without linking it.
func (t *GraphTier) InsertSkipIndex(id cache.ID, v []float32) {
	if t.cache.Has(id) {
		t.logger.Warn("node already cached", "id", id)
		return
	}
	t.admit(id, v)
}

// Search runs a query synchronously. k <= 0 returns up to ef results; ef < 0
// selects the construction ef.
func (t *GraphTier) Search(ctx context.Context, q []float32, k, ef int) ([]Neighbor, error) {
	if ef < 0 {
		ef = t.opts.EFConstruction
	}
	if k <= 0 {
		k = max(ef, 1)
	}
	res, err := t.graph.Search(ctx, q, k, ef, t.resolve)
	if err != nil {
		return nil, err
	}
	out := make([]Neighbor, len(res))
	for i, r := range res {
		out[i] = Neighbor{ID: r.ID, Distance: r.Distance}
	}
	return out, nil
}

// Query runs Search on its own goroutine and reports through done.
func (t *GraphTier) Query(ctx context.Context, q []float32, k, ef int, done func(Result)) {
	go func() {
		sw := t.timers.Start(TimerQuery)
		var (
			res Result
			err error
		)
		defer func() {
			if p := recover(); p != nil {
				res = Result{Err: fmt.Errorf("indextier: query panicked: %v", p)}
			}
			res.Elapsed = sw.Stop()
			done(res)
		}()
		res.Neighbors, err = t.Search(ctx, q, k, ef)
		res.Err = err
	}()
}

// PriorityIDs returns the ids every search passes through first: the entry
// point followed by all upper layer nodes, top layer first.
func (t *GraphTier) PriorityIDs() []cache.ID {
	return t.graph.UpperLayerIDs()
}

func (t *GraphTier) SetItemsThreshold(n int)       { t.cache.SetItemsThreshold(n) }
func (t *GraphTier) ItemsThreshold() int           { return t.cache.ItemsThreshold() }
func (t *GraphTier) CacheSize() int                { return t.cache.Len() }
func (t *GraphTier) SetMemoryBudget(bytes int64)   { t.cache.SetMemoryBudget(bytes) }
func (t *GraphTier) Cache() cache.VectorCache      { return t.cache }
func (t *GraphTier) Counters() *monitor.Counters   { return t.counters }
func (t *GraphTier) Timers() *monitor.Timers       { return t.timers }
func (t *GraphTier) Len() int                      { return t.graph.Len() }
func (t *GraphTier) GraphStats() hnsw.Stats        { return t.graph.Stats() }
func (t *GraphTier) Contains(id cache.ID) bool     { return t.graph.Contains(id) }
func (t *GraphTier) EntryPoint() (cache.ID, bool)  { return t.graph.EntryPoint() }
func (t *GraphTier) Level(id cache.ID) (int, bool) { return t.graph.Level(id) }
func (t *GraphTier) MaxID() (cache.ID, bool)       { return t.graph.MaxID() }

func (t *GraphTier) CounterString() string {
	st := t.counters.Get(Label)
	return fmt.Sprintf("%d,%d", st.Hits, st.Misses)
}

func (t *GraphTier) SetMonitorMode(mode string) {
	t.counters.SetMode(mode)
	t.timers.SetMode(mode)
}

func (t *GraphTier) ClearMonitor() {
	t.counters.Clear()
	t.timers.Clear()
}

// Reset drops the graph and every cached vector.
func (t *GraphTier) Reset() {
	t.graph.Reset()
	t.cache.Clear()
	t.ClearMonitor()
}

// Stats is a JSON-friendly report of the tier.
type Stats struct {
	Nodes    int                             `json:"nodes"`
	MaxLevel int                             `json:"max_level"`
	Cache    cache.Stats                     `json:"cache"`
	Counters map[string]monitor.CounterStats `json:"counters"`
	Timers   map[string][]float64            `json:"timers_ms"`
}

func (t *GraphTier) Stats() Stats {
	gs := t.graph.Stats()
	return Stats{
		Nodes:    gs.Nodes,
		MaxLevel: gs.MaxLevel,
		Cache:    t.cache.Stats(),
		Counters: t.counters.Snapshot(),
		Timers:   t.timers.Snapshot(),
	}
}

// peek resolves a node vector without touching telemetry or recency.
func (t *GraphTier) peek(ctx context.Context, id uint32) ([]float32, error) {
	if v, ok := t.cache.Peek(id); ok {
		return v, nil
	}
	if v, ok := t.fast.Cache().Peek(id); ok {
		return v, nil
	}
	return t.store.Get(ctx, id)
}

// Export writes the graph topology as JSON lines.
func (t *GraphTier) Export(ctx context.Context, w io.Writer) error {
	return t.graph.Export(ctx, w, t.opts.Metric.String(), t.peek)
}

// Import replaces the graph topology with a dump written by Export. Node
// vectors must already be in the store. The tier cache is cleared.
func (t *GraphTier) Import(r io.Reader) error {
	name, err := t.graph.Import(r)
	if err != nil {
		return err
	}
	if name != "" && name != t.opts.Metric.String() {
		t.logger.Warn("imported graph was built with another metric", "metric", name, "using", t.opts.Metric.String())
	}
	t.cache.Clear()
	t.logger.Info("graph imported", "nodes", t.graph.Len())
	return nil
}

// IsNotFound reports whether err means a node vector is absent from every
// tier.
func IsNotFound(err error) bool {
	return errors.Is(err, valuestore.ErrNotFound)
}

var _ Adapter = (*GraphTier)(nil)
