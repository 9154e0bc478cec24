package monitor

import "sync"

// Counter accumulates hits and misses per id.
type Counter struct {
	hits   map[uint32]int
	misses map[uint32]int
}

func newCounter() *Counter {
	return &Counter{hits: make(map[uint32]int), misses: make(map[uint32]int)}
}

func sum(m map[uint32]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

// CounterStats is the exported view of a Counter.
type CounterStats struct {
	Hits         int `json:"hits"`
	Misses       int `json:"misses"`
	DistinctHit  int `json:"distinct_hit"`
	DistinctMiss int `json:"distinct_miss"`
}

func (c *Counter) stats() CounterStats {
	return CounterStats{
		Hits:         sum(c.hits),
		Misses:       sum(c.misses),
		DistinctHit:  len(c.hits),
		DistinctMiss: len(c.misses),
	}
}

// Counters is a mode-scoped set of hit/miss counters.
type Counters struct {
	mu   sync.Mutex
	mode string
	m    map[Key]*Counter
}

// NewCounters creates an empty set in the default (empty) mode.
func NewCounters() *Counters {
	return &Counters{m: make(map[Key]*Counter)}
}

func (c *Counters) counterLocked(label string) *Counter {
	k := Key{Mode: c.mode, Label: label}
	ctr, ok := c.m[k]
	if !ok {
		ctr = newCounter()
		c.m[k] = ctr
	}
	return ctr
}

// Hit records a hit for id under label in the current mode.
func (c *Counters) Hit(label string, id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counterLocked(label).hits[id]++
}

// Miss records a miss for id under label in the current mode.
func (c *Counters) Miss(label string, id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counterLocked(label).misses[id]++
}

// Get returns the stats of label in the current mode.
func (c *Counters) Get(label string) CounterStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctr, ok := c.m[Key{Mode: c.mode, Label: label}]
	if !ok {
		return CounterStats{}
	}
	return ctr.stats()
}

func (c *Counters) HitCount(label string) int  { return c.Get(label).Hits }
func (c *Counters) MissCount(label string) int { return c.Get(label).Misses }

func (c *Counters) SetMode(mode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
}

func (c *Counters) Mode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Clear drops every counter in every mode. The mode is kept.
func (c *Counters) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.m)
}

// Snapshot returns all counters keyed by their formatted Key.
func (c *Counters) Snapshot() map[string]CounterStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]CounterStats, len(c.m))
	for k, ctr := range c.m {
		out[k.String()] = ctr.stats()
	}
	return out
}
