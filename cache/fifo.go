package cache

import "github.com/hupe1980/vectier/internal/resource"

// FIFOCache evicts in first-admission order.
type FIFOCache struct {
	core
	order *idQueue
}

// NewFIFO creates a FIFO cache with the given byte budget.
func NewFIFO(budget int64, rc *resource.Controller) *FIFOCache {
	c := &FIFOCache{core: newCore(FIFO, budget, rc), order: newIDQueue()}
	c.evictLocked = c.evict
	return c
}

func (c *FIFOCache) Get(id ID) ([]float32, bool) {
	return c.Peek(id)
}

func (c *FIFOCache) Set(id ID, v []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prepareLocked(v)
	if _, ok := c.entries[id]; ok {
		c.storeLocked(id, v)
		return nil
	}
	if !c.storeLocked(id, v) {
		return nil
	}
	c.order.Push(id)
	c.evict()
	return nil
}

func (c *FIFOCache) Delete(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropLocked(id) {
		c.order.Remove(id)
	}
}

func (c *FIFOCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropAllLocked()
	c.order.reset()
}

func (c *FIFOCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.statsLocked()
	s.Queued = c.order.Len()
	return s
}

func (c *FIFOCache) evict() {
	for len(c.entries) > c.threshold {
		id, ok := c.order.Pop()
		if !ok {
			return
		}
		c.dropLocked(id)
	}
}
