package vectier

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/vectier/optimizer"
)

// Cache tier names passed to RecordCacheAccess.
const (
	TierFast  = "fast"
	TierIndex = "index"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// metrics/prometheus package provides a Prometheus implementation.
//
// The optimizer events (RecordCheck, RecordOptimize, RecordRollback) are
// delivered from the partition optimizer.
type MetricsCollector interface {
	optimizer.Metrics

	// RecordInsert is called after each insert operation.
	// duration is the total time taken, err is nil if successful.
	RecordInsert(duration time.Duration, err error)

	// RecordQuery is called after each query.
	// k is the number of neighbors requested, duration is the time taken,
	// err is nil if successful.
	RecordQuery(k int, duration time.Duration, err error)

	// RecordCacheAccess is called for every counted lookup of a cache tier.
	// tier is TierFast or TierIndex.
	RecordCacheAccess(tier string, hit bool)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, error)                  {}
func (NoopMetricsCollector) RecordQuery(int, time.Duration, error)              {}
func (NoopMetricsCollector) RecordCacheAccess(string, bool)                     {}
func (NoopMetricsCollector) RecordCheck(bool, int, float64)                     {}
func (NoopMetricsCollector) RecordOptimize(optimizer.Sizes, int, time.Duration) {}
func (NoopMetricsCollector) RecordRollback(optimizer.Sizes)                     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	InsertCount      atomic.Int64
	InsertErrors     atomic.Int64
	InsertTotalNanos atomic.Int64
	QueryCount       atomic.Int64
	QueryErrors      atomic.Int64
	QueryTotalNanos  atomic.Int64
	FastHits         atomic.Int64
	FastMisses       atomic.Int64
	IndexHits        atomic.Int64
	IndexMisses      atomic.Int64
	ChecksAccepted   atomic.Int64
	ChecksRejected   atomic.Int64
	OptimizeCount    atomic.Int64
	RollbackCount    atomic.Int64
	FastItems        atomic.Int64
	IndexItems       atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(k int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordCacheAccess implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCacheAccess(tier string, hit bool) {
	switch {
	case tier == TierFast && hit:
		b.FastHits.Add(1)
	case tier == TierFast:
		b.FastMisses.Add(1)
	case hit:
		b.IndexHits.Add(1)
	default:
		b.IndexMisses.Add(1)
	}
}

// RecordCheck implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCheck(accepted bool, _ int, _ float64) {
	if accepted {
		b.ChecksAccepted.Add(1)
	} else {
		b.ChecksRejected.Add(1)
	}
}

// RecordOptimize implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOptimize(sizes optimizer.Sizes, _ int, _ time.Duration) {
	b.OptimizeCount.Add(1)
	b.setSizes(sizes)
}

// RecordRollback implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRollback(restored optimizer.Sizes) {
	b.RollbackCount.Add(1)
	b.setSizes(restored)
}

func (b *BasicMetricsCollector) setSizes(s optimizer.Sizes) {
	b.FastItems.Store(int64(s.Fast))
	b.IndexItems.Store(int64(s.Index))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InsertCount:    b.InsertCount.Load(),
		InsertErrors:   b.InsertErrors.Load(),
		InsertAvgNanos: avg(b.InsertTotalNanos.Load(), b.InsertCount.Load()),
		QueryCount:     b.QueryCount.Load(),
		QueryErrors:    b.QueryErrors.Load(),
		QueryAvgNanos:  avg(b.QueryTotalNanos.Load(), b.QueryCount.Load()),
		FastHits:       b.FastHits.Load(),
		FastMisses:     b.FastMisses.Load(),
		IndexHits:      b.IndexHits.Load(),
		IndexMisses:    b.IndexMisses.Load(),
		ChecksAccepted: b.ChecksAccepted.Load(),
		ChecksRejected: b.ChecksRejected.Load(),
		OptimizeCount:  b.OptimizeCount.Load(),
		RollbackCount:  b.RollbackCount.Load(),
		FastItems:      b.FastItems.Load(),
		IndexItems:     b.IndexItems.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of metrics.
type BasicMetricsStats struct {
	InsertCount    int64 `json:"insert_count"`
	InsertErrors   int64 `json:"insert_errors"`
	InsertAvgNanos int64 `json:"insert_avg_nanos"`
	QueryCount     int64 `json:"query_count"`
	QueryErrors    int64 `json:"query_errors"`
	QueryAvgNanos  int64 `json:"query_avg_nanos"`
	FastHits       int64 `json:"fast_hits"`
	FastMisses     int64 `json:"fast_misses"`
	IndexHits      int64 `json:"index_hits"`
	IndexMisses    int64 `json:"index_misses"`
	ChecksAccepted int64 `json:"checks_accepted"`
	ChecksRejected int64 `json:"checks_rejected"`
	OptimizeCount  int64 `json:"optimize_count"`
	RollbackCount  int64 `json:"rollback_count"`
	// FastItems and IndexItems are the tier sizes last set by the optimizer.
	FastItems  int64 `json:"fast_items"`
	IndexItems int64 `json:"index_items"`
}

var (
	_ MetricsCollector = NoopMetricsCollector{}
	_ MetricsCollector = (*BasicMetricsCollector)(nil)
)
