package main

import (
	"time"

	"github.com/hupe1980/vectier"
	"github.com/hupe1980/vectier/optimizer"
)

// teeCollector forwards every event to each collector in order.
type teeCollector []vectier.MetricsCollector

func (t teeCollector) RecordInsert(d time.Duration, err error) {
	for _, c := range t {
		c.RecordInsert(d, err)
	}
}

func (t teeCollector) RecordQuery(k int, d time.Duration, err error) {
	for _, c := range t {
		c.RecordQuery(k, d, err)
	}
}

func (t teeCollector) RecordCacheAccess(tier string, hit bool) {
	for _, c := range t {
		c.RecordCacheAccess(tier, hit)
	}
}

func (t teeCollector) RecordCheck(accepted bool, numDB int, theta float64) {
	for _, c := range t {
		c.RecordCheck(accepted, numDB, theta)
	}
}

func (t teeCollector) RecordOptimize(sizes optimizer.Sizes, rounds int, d time.Duration) {
	for _, c := range t {
		c.RecordOptimize(sizes, rounds, d)
	}
}

func (t teeCollector) RecordRollback(restored optimizer.Sizes) {
	for _, c := range t {
		c.RecordRollback(restored)
	}
}
