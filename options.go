package vectier

import (
	"log/slog"

	"github.com/hupe1980/vectier/cache"
	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/internal/resource"
	"github.com/hupe1980/vectier/valuestore"
)

// Defaults mirror the settings the tiered cache was tuned with.
const (
	DefaultFastMemory     = 0
	DefaultIndexMemory    = 500_000 * 4 * 768
	DefaultM              = 16
	DefaultEFConstruction = 200
	DefaultQueryEF        = 200
)

// options holds configuration for an Engine.
type options struct {
	strategy       cache.Strategy
	indexStrategy  cache.Strategy
	fastMemory     int64
	indexMemory    int64
	m              int
	efConstruction int
	queryEF        int
	metric         distance.Metric
	lazy           bool
	seed           uint64

	keys             valuestore.KeyStore
	indexes          valuestore.IndexStore
	controller       *resource.Controller
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures an Engine.
type Option func(*options)

// WithStrategy sets the eviction strategy of the fast tier. Default FIFO.
func WithStrategy(s cache.Strategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// WithIndexStrategy sets the eviction strategy of the index tier cache.
// Only FIFO and LRU make sense there; PriorityFIFO designations are never
// issued to the index tier.
func WithIndexStrategy(s cache.Strategy) Option {
	return func(o *options) {
		o.indexStrategy = s
	}
}

// WithFastMemory sets the byte budget of the fast tier.
func WithFastMemory(bytes int64) Option {
	return func(o *options) {
		o.fastMemory = bytes
	}
}

// WithIndexMemory sets the byte budget of the index tier cache.
func WithIndexMemory(bytes int64) Option {
	return func(o *options) {
		o.indexMemory = bytes
	}
}

// WithGraph sets the HNSW link count and construction ef.
func WithGraph(m, efConstruction int) Option {
	return func(o *options) {
		o.m = m
		o.efConstruction = efConstruction
	}
}

// WithQueryEF sets the ef used by Query. A negative value selects the
// construction ef.
func WithQueryEF(ef int) Option {
	return func(o *options) {
		o.queryEF = ef
	}
}

// WithMetric sets the distance metric. Default L2.
func WithMetric(m distance.Metric) Option {
	return func(o *options) {
		o.metric = m
	}
}

// WithLazy controls whether node vectors resident in the fast tier satisfy
// the index tier without a store read. Default true.
func WithLazy(lazy bool) Option {
	return func(o *options) {
		o.lazy = lazy
	}
}

// WithSeed fixes graph level generation.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithKeyStore sets where external keys are kept. If the store passed to New
// implements valuestore.KeyStore it is used by default, otherwise keys are
// held in memory.
func WithKeyStore(ks valuestore.KeyStore) Option {
	return func(o *options) {
		o.keys = ks
	}
}

// WithIndexStore sets where Close saves the graph and New loads it from. If
// the store passed to New implements valuestore.IndexStore it is used by
// default, otherwise the graph is not persisted.
func WithIndexStore(is valuestore.IndexStore) Option {
	return func(o *options) {
		o.indexes = is
	}
}

// WithController charges resident bytes of both tiers against rc.
func WithController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithMetricsCollector enables metrics collection.
// Pass nil to disable metrics (uses NoopMetricsCollector).
//
// Example:
//
//	metrics := &vectier.BasicMetricsCollector{}
//	e, _ := vectier.New(store, vectier.WithMetricsCollector(metrics))
//	// ... use e ...
//	stats := metrics.GetStats()
//	fmt.Printf("Queries: %d, Avg latency: %dns\n", stats.QueryCount, stats.QueryAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vectier.NewJSONLogger(slog.LevelInfo)
//	e, _ := vectier.New(store, vectier.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		strategy:         cache.FIFO,
		indexStrategy:    cache.FIFO,
		fastMemory:       DefaultFastMemory,
		indexMemory:      DefaultIndexMemory,
		m:                DefaultM,
		efConstruction:   DefaultEFConstruction,
		queryEF:          DefaultQueryEF,
		metric:           distance.MetricL2,
		lazy:             true,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
