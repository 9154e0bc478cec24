// Package prometheus exports engine metrics through the Prometheus client.
package prometheus

import (
	"strconv"
	"time"

	"github.com/hupe1980/vectier"
	"github.com/hupe1980/vectier/optimizer"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Collector implements vectier.MetricsCollector with Prometheus metrics.
type Collector struct {
	opLatency    *prom.HistogramVec
	opErrors     *prom.CounterVec
	cacheAccess  *prom.CounterVec
	checks       *prom.CounterVec
	storeReads   prom.Histogram
	theta        prom.Gauge
	optimizeRuns prom.Counter
	rounds       prom.Histogram
	rollbacks    prom.Counter
	tierItems    *prom.GaugeVec
}

// Options configures a Collector.
type Options struct {
	// Namespace prefixes every metric. Default "vectier".
	Namespace string
	// Registerer receives the metrics. Default prometheus.DefaultRegisterer.
	Registerer prom.Registerer
}

// New creates and registers a Collector.
func New(optFns ...func(o *Options)) (*Collector, error) {
	opts := Options{Namespace: "vectier", Registerer: prom.DefaultRegisterer}
	for _, fn := range optFns {
		fn(&opts)
	}

	ns := opts.Namespace
	c := &Collector{
		opLatency: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: ns,
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine operations.",
			Buckets:   prom.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"op"}),
		opErrors: prom.NewCounterVec(prom.CounterOpts{
			Namespace: ns,
			Name:      "operation_errors_total",
			Help:      "Failed engine operations.",
		}, []string{"op"}),
		cacheAccess: prom.NewCounterVec(prom.CounterOpts{
			Namespace: ns,
			Name:      "cache_access_total",
			Help:      "Counted cache tier lookups.",
		}, []string{"tier", "result"}),
		checks: prom.NewCounterVec(prom.CounterOpts{
			Namespace: ns,
			Name:      "optimizer_checks_total",
			Help:      "Evaluated tier configurations.",
		}, []string{"result"}),
		storeReads: prom.NewHistogram(prom.HistogramOpts{
			Namespace: ns,
			Name:      "optimizer_store_reads",
			Help:      "Store reads of the representative query per check.",
			Buckets:   prom.ExponentialBuckets(1, 2, 14),
		}),
		theta: prom.NewGauge(prom.GaugeOpts{
			Namespace: ns,
			Name:      "optimizer_theta",
			Help:      "Store read tolerance of the last check.",
		}),
		optimizeRuns: prom.NewCounter(prom.CounterOpts{
			Namespace: ns,
			Name:      "optimizer_runs_total",
			Help:      "Completed optimization runs.",
		}),
		rounds: prom.NewHistogram(prom.HistogramOpts{
			Namespace: ns,
			Name:      "optimizer_rounds",
			Help:      "Checks per optimization run.",
			Buckets:   prom.LinearBuckets(1, 4, 16),
		}),
		rollbacks: prom.NewCounter(prom.CounterOpts{
			Namespace: ns,
			Name:      "optimizer_rollbacks_total",
			Help:      "Online rollbacks to a larger configuration.",
		}),
		tierItems: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: ns,
			Name:      "tier_items",
			Help:      "Item threshold of each tier as set by the optimizer.",
		}, []string{"tier"}),
	}

	for _, col := range []prom.Collector{
		c.opLatency, c.opErrors, c.cacheAccess, c.checks, c.storeReads,
		c.theta, c.optimizeRuns, c.rounds, c.rollbacks, c.tierItems,
	} {
		if err := opts.Registerer.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	c.opLatency.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		c.opErrors.WithLabelValues(op).Inc()
	}
}

// RecordInsert implements vectier.MetricsCollector.
func (c *Collector) RecordInsert(d time.Duration, err error) {
	c.observe("insert", d, err)
}

// RecordQuery implements vectier.MetricsCollector.
func (c *Collector) RecordQuery(_ int, d time.Duration, err error) {
	c.observe("query", d, err)
}

// RecordCacheAccess implements vectier.MetricsCollector.
func (c *Collector) RecordCacheAccess(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheAccess.WithLabelValues(tier, result).Inc()
}

// RecordCheck implements vectier.MetricsCollector.
func (c *Collector) RecordCheck(accepted bool, numDB int, theta float64) {
	c.checks.WithLabelValues(strconv.FormatBool(accepted)).Inc()
	c.storeReads.Observe(float64(numDB))
	c.theta.Set(theta)
}

// RecordOptimize implements vectier.MetricsCollector.
func (c *Collector) RecordOptimize(sizes optimizer.Sizes, rounds int, d time.Duration) {
	c.optimizeRuns.Inc()
	c.rounds.Observe(float64(rounds))
	c.opLatency.WithLabelValues("optimize").Observe(d.Seconds())
	c.setSizes(sizes)
}

// RecordRollback implements vectier.MetricsCollector.
func (c *Collector) RecordRollback(restored optimizer.Sizes) {
	c.rollbacks.Inc()
	c.setSizes(restored)
}

func (c *Collector) setSizes(s optimizer.Sizes) {
	c.tierItems.WithLabelValues(vectier.TierFast).Set(float64(s.Fast))
	c.tierItems.WithLabelValues(vectier.TierIndex).Set(float64(s.Index))
}

var _ vectier.MetricsCollector = (*Collector)(nil)
