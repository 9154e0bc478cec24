package cache

import "github.com/hupe1980/vectier/internal/resource"

const nilNode int32 = -1

// lruNode is a slot in the recency list. Links are arena indices so the list
// holds no pointers.
type lruNode struct {
	id         ID
	prev, next int32
}

// LRUCache evicts the least recently used entry. head is the most recent.
type LRUCache struct {
	core

	nodes []lruNode
	free  []int32
	index map[ID]int32
	head  int32
	tail  int32
}

// NewLRU creates an LRU cache with the given byte budget.
func NewLRU(budget int64, rc *resource.Controller) *LRUCache {
	c := &LRUCache{
		core:  newCore(LRU, budget, rc),
		index: make(map[ID]int32),
		head:  nilNode,
		tail:  nilNode,
	}
	c.evictLocked = c.evict
	return c
}

func (c *LRUCache) Get(id ID) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	c.moveToFront(c.index[id])
	return v, true
}

func (c *LRUCache) Set(id ID, v []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prepareLocked(v)
	if n, ok := c.index[id]; ok {
		if c.storeLocked(id, v) {
			c.moveToFront(n)
		}
		return nil
	}
	if !c.storeLocked(id, v) {
		return nil
	}
	c.pushFront(id)
	c.evict()
	return nil
}

func (c *LRUCache) Delete(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropLocked(id) {
		c.unlinkID(id)
	}
}

func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropAllLocked()
	c.nodes = c.nodes[:0]
	c.free = c.free[:0]
	clear(c.index)
	c.head, c.tail = nilNode, nilNode
}

func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.statsLocked()
	s.Queued = len(c.index)
	return s
}

// Recency returns resident ids from most to least recently used.
func (c *LRUCache) Recency() []ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ID, 0, len(c.index))
	for n := c.head; n != nilNode; n = c.nodes[n].next {
		out = append(out, c.nodes[n].id)
	}
	return out
}

func (c *LRUCache) evict() {
	for len(c.entries) > c.threshold && c.tail != nilNode {
		id := c.nodes[c.tail].id
		c.unlinkID(id)
		c.dropLocked(id)
	}
}

func (c *LRUCache) pushFront(id ID) {
	var n int32
	if k := len(c.free); k > 0 {
		n = c.free[k-1]
		c.free = c.free[:k-1]
	} else {
		n = int32(len(c.nodes))
		c.nodes = append(c.nodes, lruNode{})
	}
	c.nodes[n] = lruNode{id: id, prev: nilNode, next: c.head}
	if c.head != nilNode {
		c.nodes[c.head].prev = n
	}
	c.head = n
	if c.tail == nilNode {
		c.tail = n
	}
	c.index[id] = n
}

func (c *LRUCache) unlink(n int32) {
	node := c.nodes[n]
	if node.prev != nilNode {
		c.nodes[node.prev].next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nilNode {
		c.nodes[node.next].prev = node.prev
	} else {
		c.tail = node.prev
	}
	c.nodes[n].prev, c.nodes[n].next = nilNode, nilNode
}

func (c *LRUCache) unlinkID(id ID) {
	n, ok := c.index[id]
	if !ok {
		return
	}
	c.unlink(n)
	delete(c.index, id)
	c.free = append(c.free, n)
}

func (c *LRUCache) moveToFront(n int32) {
	if c.head == n {
		return
	}
	c.unlink(n)
	c.nodes[n].next = c.head
	if c.head != nilNode {
		c.nodes[c.head].prev = n
	}
	c.head = n
	if c.tail == nilNode {
		c.tail = n
	}
}
