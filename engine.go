package vectier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vectier/access"
	"github.com/hupe1980/vectier/cache"
	"github.com/hupe1980/vectier/indextier"
	"github.com/hupe1980/vectier/internal/resource"
	"github.com/hupe1980/vectier/optimizer"
	"github.com/hupe1980/vectier/valuestore"
)

// Result is one neighbor returned by Query.
type Result struct {
	ID       cache.ID `json:"id"`
	Key      string   `json:"key"`
	Distance float32  `json:"distance"`
}

// Engine is a tiered vector cache in front of a persistent store, searched
// through an HNSW graph. It owns a fast tier for plain vector reads, an
// index tier for graph node vectors, and the optimizer that partitions
// capacity between them.
type Engine struct {
	// mu serializes inserts so ids are linked in allocation order.
	mu sync.Mutex

	opts    options
	store   valuestore.Store
	keys    valuestore.KeyStore
	indexes valuestore.IndexStore
	rc      *resource.Controller
	fast    *access.Layer
	index   *indextier.GraphTier
	opt     *optimizer.Optimizer
	logger  *Logger
	metrics MetricsCollector

	nextID atomic.Uint32
	dim    atomic.Int64
	closed atomic.Bool
}

// New creates an engine over store. The store is owned by the caller but
// closed by Close when it has a Close method. When store already holds
// vectors the embed size is taken from one of them, and a graph saved by a
// previous Close is loaded back.
func New(store valuestore.Store, optFns ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("vectier: store is required")
	}
	o := applyOptions(optFns)

	e := &Engine{
		opts:    o,
		store:   store,
		keys:    o.keys,
		indexes: o.indexes,
		rc:      o.controller,
		logger:  o.logger,
		metrics: o.metricsCollector,
	}
	if e.indexes == nil {
		if is, ok := store.(valuestore.IndexStore); ok {
			e.indexes = is
		}
	}
	if e.keys == nil {
		if ks, ok := store.(valuestore.KeyStore); ok {
			e.keys = ks
		} else {
			e.keys = valuestore.NewMemoryKeyStore()
		}
	}

	fast, err := access.New(o.strategy, o.fastMemory,
		access.WithLogger(o.logger.With("tier", TierFast)),
		access.WithController(o.controller),
		access.WithAccessHook(func(hit bool) { e.metrics.RecordCacheAccess(TierFast, hit) }),
	)
	if err != nil {
		return nil, translateError(err)
	}
	e.fast = fast

	index, err := indextier.NewGraphTier(fast, store, func(to *indextier.Options) {
		to.Strategy = o.indexStrategy
		to.MemoryBudget = o.indexMemory
		to.M = o.m
		to.EFConstruction = o.efConstruction
		to.Metric = o.metric
		to.Lazy = o.lazy
		to.Seed = o.seed
		to.Logger = o.logger.With("tier", TierIndex)
		to.Controller = o.controller
		to.OnAccess = func(hit bool) { e.metrics.RecordCacheAccess(TierIndex, hit) }
	})
	if err != nil {
		return nil, translateError(err)
	}
	e.index = index

	e.opt = optimizer.New(fast, index, store, func(oo *optimizer.Options) {
		oo.QueryEF = o.queryEF
		oo.Logger = o.logger.With("component", "optimizer")
		oo.Metrics = e.metrics
	})

	e.logger.Info("engine created",
		"strategy", o.strategy.String(),
		"index_strategy", o.indexStrategy.String(),
		"fast_memory", o.fastMemory,
		"index_memory", o.indexMemory,
		"metric", o.metric.String(),
	)

	if err := e.restore(context.Background()); err != nil {
		return nil, translateError(err)
	}
	return e, nil
}

// restore picks up what a previous engine left in the store.
func (e *Engine) restore(ctx context.Context) error {
	if err := e.restoreEmbedSize(ctx); err != nil {
		return err
	}
	if e.indexes == nil {
		return nil
	}
	data, ok, err := e.indexes.LoadIndex(ctx)
	if err != nil {
		return fmt.Errorf("load saved graph: %w", err)
	}
	if !ok {
		return nil
	}
	if err := e.loadIndex(ctx, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("load saved graph: %w", err)
	}
	e.logger.Info("engine restored", "nodes", e.index.Len(), "next_id", e.Len(), "embed_size", e.dim.Load())
	return nil
}

// restoreEmbedSize reads one stored vector to learn the embed size when no
// insert has fixed it yet. An empty store leaves it unknown.
func (e *Engine) restoreEmbedSize(ctx context.Context) error {
	if e.dim.Load() > 0 {
		return nil
	}
	id, ok, err := e.store.RandomID(ctx)
	if err != nil {
		return fmt.Errorf("restore embed size: %w", err)
	}
	if !ok {
		return nil
	}
	v, err := e.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("restore embed size: %w", err)
	}
	if len(v) == 0 || !e.dim.CompareAndSwap(0, int64(len(v))) {
		return nil
	}
	if e.fast.Cache().EmbedSize() == 0 {
		e.fast.Cache().SetEmbedSize(len(v))
	}
	if e.index.Cache().EmbedSize() == 0 {
		e.index.Cache().SetEmbedSize(len(v))
	}
	return nil
}

// checkDimension fixes the engine dimension on first use and validates v
// against it afterwards.
func (e *Engine) checkDimension(v []float32) error {
	if len(v) == 0 {
		return ErrEmptyVector
	}
	if e.dim.CompareAndSwap(0, int64(len(v))) {
		return nil
	}
	if d := int(e.dim.Load()); d != len(v) {
		return &ErrDimensionMismatch{Expected: d, Actual: len(v)}
	}
	return nil
}

// Insert stores v under a newly allocated id, records key for it, caches v
// in both tiers and links it into the graph.
func (e *Engine) Insert(ctx context.Context, key string, v []float32) (cache.ID, error) {
	start := time.Now()
	id, err := e.insert(ctx, key, v, true)
	e.metrics.RecordInsert(time.Since(start), err)
	e.logger.LogInsert(ctx, id, key, len(v), err)
	return id, translateError(err)
}

// InsertSkipIndex is Insert without graph linking, for loading vectors whose
// topology is restored later by LoadIndex.
func (e *Engine) InsertSkipIndex(ctx context.Context, key string, v []float32) (cache.ID, error) {
	start := time.Now()
	id, err := e.insert(ctx, key, v, false)
	e.metrics.RecordInsert(time.Since(start), err)
	e.logger.LogInsert(ctx, id, key, len(v), err)
	return id, translateError(err)
}

func (e *Engine) insert(ctx context.Context, key string, v []float32, link bool) (cache.ID, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	if err := e.checkDimension(v); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID.Add(1) - 1
	if err := e.keys.SetKey(ctx, id, key); err != nil {
		return id, fmt.Errorf("set key: %w", err)
	}
	if err := e.fast.Set(id, v); err != nil {
		return id, err
	}
	if err := e.store.Set(ctx, id, v); err != nil {
		return id, fmt.Errorf("store vector: %w", err)
	}
	if !link {
		e.index.InsertSkipIndex(id, v)
		return id, nil
	}
	return id, e.index.Insert(ctx, id, v)
}

// Query returns the k nearest neighbors of q with their keys. A query whose
// length differs from the vector dimension is truncated to the shorter of
// the two. After each query the optimizer checks whether the newest
// accepted configuration still holds and rolls back if not.
//
// The rollback check reads the store-read count accumulated since the last
// SetMonitorMode or ClearMonitor, not that of this query alone. Callers that
// want each query judged on its own scope rounds with one of them.
func (e *Engine) Query(ctx context.Context, q []float32, k int) ([]Result, error) {
	start := time.Now()
	res, err := e.query(ctx, q, k)
	d := time.Since(start)
	e.metrics.RecordQuery(k, d, err)
	e.logger.LogQuery(ctx, k, len(res), d, err)
	return res, translateError(err)
}

func (e *Engine) query(ctx context.Context, q []float32, k int) ([]Result, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(q) == 0 {
		return nil, ErrEmptyVector
	}
	if dim := int(e.dim.Load()); dim > 0 && len(q) != dim {
		n := min(len(q), dim)
		e.logger.WarnContext(ctx, "query length differs from embed size",
			"query", len(q), "embed", dim, "using", n)
		q = q[:n]
	}

	done := make(chan indextier.Result, 1)
	e.index.Query(ctx, q, k, e.opts.queryEF, func(r indextier.Result) { done <- r })

	var r indextier.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-done:
	}
	if r.Err != nil {
		return nil, r.Err
	}

	ids := make([]cache.ID, len(r.Neighbors))
	for i, n := range r.Neighbors {
		ids[i] = n.ID
	}
	keys, err := e.keys.BulkGetKeys(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve keys: %w", err)
	}

	out := make([]Result, len(r.Neighbors))
	for i, n := range r.Neighbors {
		out[i] = Result{ID: n.ID, Key: keys[i], Distance: n.Distance}
	}

	e.observe(ctx)
	return out, nil
}

func (e *Engine) observe(ctx context.Context) {
	rolled, err := e.opt.ObserveQuery()
	switch {
	case errors.Is(err, optimizer.ErrBusy):
		// An optimization run owns the counters.
	case err != nil:
		e.logger.WarnContext(ctx, "rollback check failed", "error", err)
	case rolled:
		e.logger.LogRollback(ctx, e.Sizes(), len(e.opt.Records()))
	}
}

// Get returns the vector stored for id through the fast tier.
func (e *Engine) Get(ctx context.Context, id cache.ID) ([]float32, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	v, err := e.fast.Get(ctx, id, e.store)
	return v, translateError(err)
}

// Optimize searches for the smallest tier sizes at which a fraction
// targetFraction of queries completes within targetMillis, and applies them.
func (e *Engine) Optimize(ctx context.Context, targetFraction, targetMillis float64) (optimizer.Sizes, error) {
	if e.closed.Load() {
		return optimizer.Sizes{}, ErrClosed
	}
	start := time.Now()
	sizes, err := e.opt.Optimize(ctx, targetFraction, targetMillis)
	e.logger.LogOptimize(ctx, sizes, len(e.opt.Records()), time.Since(start), err)
	return sizes, translateError(err)
}

// Check applies the given tier sizes and evaluates them once against the
// target without recording them.
func (e *Engine) Check(ctx context.Context, sizes optimizer.Sizes, targetFraction, targetMillis float64) (optimizer.Outcome, error) {
	if e.closed.Load() {
		return optimizer.Outcome{}, ErrClosed
	}
	out, err := e.opt.Check(ctx, sizes.Fast, sizes.Index, targetFraction, targetMillis)
	return out, translateError(err)
}

// Records returns the configurations accepted by Optimize, oldest first.
func (e *Engine) Records() []optimizer.Record {
	return e.opt.Records()
}

// Sizes reports the current item thresholds of both tiers.
func (e *Engine) Sizes() optimizer.Sizes {
	return optimizer.Sizes{
		Fast:  e.fast.Cache().ItemsThreshold(),
		Index: e.index.ItemsThreshold(),
	}
}

// SetStrategy switches the fast tier eviction strategy. Resident vectors are
// discarded. Switching to PriorityFIFO designates the graph's upper layers.
func (e *Engine) SetStrategy(s cache.Strategy) error {
	if err := e.fast.SetStrategy(s); err != nil {
		return translateError(err)
	}
	if s == cache.PriorityFIFO {
		e.RefreshPriorities()
	}
	return nil
}

// SetFastMemory sets the byte budget of the fast tier.
func (e *Engine) SetFastMemory(bytes int64) {
	e.fast.SetMemoryBudget(bytes)
}

// SetIndexMemory sets the byte budget of the index tier cache.
func (e *Engine) SetIndexMemory(bytes int64) {
	e.index.SetMemoryBudget(bytes)
}

// SetMonitorMode files subsequent telemetry of both tiers under mode.
func (e *Engine) SetMonitorMode(mode string) {
	e.fast.SetMonitorMode(mode)
	e.index.SetMonitorMode(mode)
}

// ClearMonitor resets the telemetry of both tiers. Cache contents are kept.
func (e *Engine) ClearMonitor() {
	e.fast.ClearMonitor()
	e.index.ClearMonitor()
}

// RefreshPriorities designates the graph entry point and every upper layer
// node as protected in a PriorityFIFO fast tier, then trims the protected
// set to the tier capacity. It is a no-op for other strategies.
func (e *Engine) RefreshPriorities() {
	c := e.fast.Cache()
	if c.Strategy() != cache.PriorityFIFO {
		return
	}
	c.ClearPriority()
	ids := e.index.PriorityIDs()
	for _, id := range ids {
		c.DesignatePriority(id)
	}
	c.ReconcilePriority()
	e.logger.Debug("priorities refreshed", "designated", len(ids), "active", c.Stats().Designated)
}

// ExportIndex writes the graph topology as JSON lines.
func (e *Engine) ExportIndex(ctx context.Context, w io.Writer) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return translateError(e.index.Export(ctx, w))
}

// LoadIndex replaces the graph topology with a dump written by ExportIndex.
// The vectors it references must already be in the store, typically loaded
// with InsertSkipIndex. If the embed size is still unknown it is read from
// the store.
func (e *Engine) LoadIndex(r io.Reader) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return translateError(e.loadIndex(context.Background(), r))
}

func (e *Engine) loadIndex(ctx context.Context, r io.Reader) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.index.Import(r); err != nil {
		return err
	}
	if maxID, ok := e.index.MaxID(); ok {
		for {
			cur := e.nextID.Load()
			if cur > maxID || e.nextID.CompareAndSwap(cur, maxID+1) {
				break
			}
		}
	}
	e.RefreshPriorities()
	return e.restoreEmbedSize(ctx)
}

// saveIndex exports a non-empty graph into the index store.
func (e *Engine) saveIndex(ctx context.Context) error {
	if e.indexes == nil || e.index.Len() == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := e.index.Export(ctx, &buf); err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	if err := e.indexes.SaveIndex(ctx, buf.Bytes()); err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	e.logger.Info("graph saved", "nodes", e.index.Len(), "bytes", buf.Len())
	return nil
}

// Reset clears both tiers, the graph, the store, the key table, the
// optimizer records and all telemetry.
func (e *Engine) Reset(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.index.Reset()
	e.fast.Cache().Clear()
	e.fast.ClearMonitor()
	e.opt.Reset()
	if err := e.store.Clear(ctx); err != nil {
		return translateError(fmt.Errorf("clear store: %w", err))
	}
	if err := e.keys.ClearKeys(ctx); err != nil {
		return translateError(fmt.Errorf("clear keys: %w", err))
	}
	e.nextID.Store(0)
	e.logger.Info("engine reset")
	return nil
}

// Len returns the number of ids allocated so far.
func (e *Engine) Len() int {
	return int(e.nextID.Load())
}

// Stats is a JSON-friendly report of the engine.
type Stats struct {
	Items       int                `json:"items"`
	Dimension   int                `json:"dimension"`
	Fast        access.Stats       `json:"fast"`
	Index       indextier.Stats    `json:"index"`
	Records     []optimizer.Record `json:"records"`
	MemoryBytes int64              `json:"memory_bytes"`
}

func (e *Engine) Stats() Stats {
	return Stats{
		Items:       e.Len(),
		Dimension:   int(e.dim.Load()),
		Fast:        e.fast.Stats(),
		Index:       e.index.Stats(),
		Records:     e.opt.Records(),
		MemoryBytes: e.rc.MemoryUsage(),
	}
}

type contextCloser interface {
	Close(ctx context.Context) error
}

func closeAny(ctx context.Context, v any) error {
	switch c := v.(type) {
	case io.Closer:
		return c.Close()
	case contextCloser:
		return c.Close(ctx)
	}
	return nil
}

// Close marks the engine closed, saves the graph when the store keeps one,
// and closes the store and key store when they have a Close method. Further
// calls are no-ops.
func (e *Engine) Close(ctx context.Context) error {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.mu.Lock()
	err := e.saveIndex(ctx)
	e.mu.Unlock()
	err = errors.Join(err, closeAny(ctx, e.store))
	if any(e.keys) != any(e.store) {
		err = errors.Join(err, closeAny(ctx, e.keys))
	}
	e.logger.Info("engine closed", "items", e.Len())
	return err
}
