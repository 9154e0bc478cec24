package cache

import "github.com/hupe1980/vectier/internal/resource"

// PriorityFIFOCache is a FIFO cache whose designated ids survive eviction.
//
// Regular admissions go to queue. When eviction reaches a designated id it
// is moved to held instead of being dropped. Held ids that lose their
// designation are evicted only if the cache is still over threshold and are
// otherwise returned to the tail of queue.
//
// Designations are kept in designation order; the active set is the first
// ItemsThreshold of them, so the protected ids alone never exceed capacity.
type PriorityFIFOCache struct {
	core

	queue *idQueue
	held  *idQueue

	designated []ID
	active     map[ID]struct{}
}

// NewPriorityFIFO creates a Priority-FIFO cache with the given byte budget.
func NewPriorityFIFO(budget int64, rc *resource.Controller) *PriorityFIFOCache {
	c := &PriorityFIFOCache{
		core:   newCore(PriorityFIFO, budget, rc),
		queue:  newIDQueue(),
		held:   newIDQueue(),
		active: make(map[ID]struct{}),
	}
	c.evictLocked = c.evict
	c.onThresholdLocked = c.reconcile
	return c
}

func (c *PriorityFIFOCache) Get(id ID) ([]float32, bool) {
	return c.Peek(id)
}

// Set admits v. A non-designated id is silently refused when held and
// queued ids together already reach the threshold.
func (c *PriorityFIFOCache) Set(id ID, v []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prepareLocked(v)
	if _, ok := c.entries[id]; ok {
		c.storeLocked(id, v)
		return nil
	}

	if _, ok := c.active[id]; ok {
		if c.held.Has(id) || c.queue.Has(id) {
			return &ConsistencyError{ID: id, Detail: "tracked but not resident"}
		}
		if !c.storeLocked(id, v) {
			return nil
		}
		c.held.Push(id)
		c.evict()
		return nil
	}

	if c.held.Len()+c.queue.Len() >= c.threshold {
		return nil
	}
	if !c.storeLocked(id, v) {
		return nil
	}
	c.queue.Push(id)
	c.evict()
	return nil
}

func (c *PriorityFIFOCache) Delete(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropLocked(id) {
		c.queue.Remove(id)
		c.held.Remove(id)
	}
}

func (c *PriorityFIFOCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropAllLocked()
	c.queue.reset()
	c.held.reset()
	c.designated = c.designated[:0]
	clear(c.active)
}

func (c *PriorityFIFOCache) DesignatePriority(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.designated {
		if d == id {
			return
		}
	}
	c.designated = append(c.designated, id)
	if len(c.active) < c.threshold {
		c.active[id] = struct{}{}
	}
}

func (c *PriorityFIFOCache) ClearPriority() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.designated = c.designated[:0]
	clear(c.active)
}

func (c *PriorityFIFOCache) ReconcilePriority() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconcile()
	c.evict()
}

// Designated returns the active protected ids in designation order.
func (c *PriorityFIFOCache) Designated() []ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ID, 0, len(c.active))
	for _, id := range c.designated {
		if _, ok := c.active[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (c *PriorityFIFOCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.statsLocked()
	s.Queued = c.queue.Len()
	s.Held = c.held.Len()
	s.Designated = len(c.active)
	return s
}

func (c *PriorityFIFOCache) reconcile() {
	clear(c.active)
	for _, id := range c.designated[:min(len(c.designated), c.threshold)] {
		c.active[id] = struct{}{}
	}
}

func (c *PriorityFIFOCache) evict() {
	for len(c.entries) > c.threshold {
		id, ok := c.queue.Pop()
		if !ok {
			break
		}
		if _, ok := c.active[id]; ok {
			c.held.Push(id)
			continue
		}
		c.dropLocked(id)
	}

	if len(c.entries) <= c.threshold {
		return
	}

	for _, id := range c.held.Items() {
		if _, ok := c.active[id]; ok {
			continue
		}
		c.held.Remove(id)
		if len(c.entries) > c.threshold {
			c.dropLocked(id)
		} else {
			c.queue.Push(id)
		}
	}
}
