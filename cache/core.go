package cache

import (
	"math/rand/v2"
	"sync"

	"github.com/hupe1980/vectier/internal/resource"
)

// core holds the state every strategy shares: the entry map, the budget and
// the derived item threshold. Callers hold mu around every method ending in
// Locked.
type core struct {
	mu sync.Mutex

	strategy  Strategy
	entries   map[ID][]float32
	budget    int64
	embedSize int
	threshold int
	resident  int64

	rc *resource.Controller

	// evictLocked shrinks the cache to threshold using the strategy's order.
	evictLocked func()
	// onThresholdLocked runs before eviction when the threshold changes.
	onThresholdLocked func()
}

func newCore(strategy Strategy, budget int64, rc *resource.Controller) core {
	return core{
		strategy: strategy,
		entries:  make(map[ID][]float32),
		budget:   budget,
		rc:       rc,
	}
}

func (c *core) Strategy() Strategy { return c.strategy }

func (c *core) Has(id ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

func (c *core) Peek(id ID) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[id]
	return v, ok
}

func (c *core) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *core) MemoryBudget() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.budget
}

func (c *core) ItemsThreshold() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

func (c *core) EmbedSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.embedSize
}

func (c *core) SetMemoryBudget(bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.budget = max(bytes, 0)
	c.setThresholdLocked(ThresholdFor(c.budget, c.embedSize))
}

func (c *core) SetEmbedSize(dim int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setEmbedSizeLocked(dim)
}

func (c *core) SetItemsThreshold(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setThresholdLocked(max(n, 0))
}

func (c *core) setEmbedSizeLocked(dim int) {
	c.embedSize = max(dim, 0)
	c.setThresholdLocked(ThresholdFor(c.budget, c.embedSize))
}

func (c *core) setThresholdLocked(n int) {
	c.threshold = n
	if c.onThresholdLocked != nil {
		c.onThresholdLocked()
	}
	c.evictLocked()
}

// prepareLocked fixes the dimension on the first admission.
func (c *core) prepareLocked(v []float32) {
	if c.embedSize == 0 && len(v) > 0 {
		c.setEmbedSizeLocked(len(v))
	}
}

// storeLocked writes id into the entry map and charges the controller. It
// reports false when the controller refuses a new reservation.
func (c *core) storeLocked(id ID, v []float32) bool {
	size := int64(len(v) * BytesPerComponent)
	if old, ok := c.entries[id]; ok {
		oldSize := int64(len(old) * BytesPerComponent)
		if size > oldSize && !c.rc.TryReserve(size-oldSize) {
			return false
		}
		if size < oldSize {
			c.rc.Release(oldSize - size)
		}
		c.resident += size - oldSize
		c.entries[id] = v
		return true
	}
	if !c.rc.TryReserve(size) {
		return false
	}
	c.resident += size
	c.entries[id] = v
	return true
}

func (c *core) dropLocked(id ID) bool {
	v, ok := c.entries[id]
	if !ok {
		return false
	}
	size := int64(len(v) * BytesPerComponent)
	c.rc.Release(size)
	c.resident -= size
	delete(c.entries, id)
	return true
}

func (c *core) dropAllLocked() {
	c.rc.Release(c.resident)
	c.resident = 0
	clear(c.entries)
}

func (c *core) RandomID() (ID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return 0, false
	}
	skip := rand.IntN(len(c.entries))
	for id := range c.entries {
		if skip == 0 {
			return id, true
		}
		skip--
	}
	return 0, false
}

func (c *core) statsLocked() Stats {
	return Stats{
		Strategy:       c.strategy,
		MemoryBudget:   c.budget,
		EmbedSize:      c.embedSize,
		ItemsThreshold: c.threshold,
		Size:           len(c.entries),
		ResidentBytes:  c.resident,
	}
}

// DesignatePriority, ClearPriority and ReconcilePriority are no-ops for
// strategies without protected ids.
func (c *core) DesignatePriority(ID) {}
func (c *core) ClearPriority()       {}
func (c *core) ReconcilePriority()   {}
