package cache

// idQueue is an insertion-ordered set of ids with O(1) push, pop and
// membership and amortized O(1) removal. Removed slots are tombstoned and
// compacted once they dominate the backing slice.
type idQueue struct {
	slots []queueSlot
	head  int
	live  map[ID]uint64
	seq   uint64
}

type queueSlot struct {
	id  ID
	seq uint64
}

func newIDQueue() *idQueue {
	return &idQueue{live: make(map[ID]uint64)}
}

func (q *idQueue) Len() int { return len(q.live) }

func (q *idQueue) Has(id ID) bool {
	_, ok := q.live[id]
	return ok
}

// Push appends id. Pushing a member is a no-op.
func (q *idQueue) Push(id ID) {
	if _, ok := q.live[id]; ok {
		return
	}
	q.seq++
	q.live[id] = q.seq
	q.slots = append(q.slots, queueSlot{id: id, seq: q.seq})
}

// Pop removes and returns the oldest member.
func (q *idQueue) Pop() (ID, bool) {
	for q.head < len(q.slots) {
		s := q.slots[q.head]
		q.head++
		if seq, ok := q.live[s.id]; ok && seq == s.seq {
			delete(q.live, s.id)
			q.maybeCompact()
			return s.id, true
		}
	}
	q.reset()
	return 0, false
}

// Remove drops id if present.
func (q *idQueue) Remove(id ID) bool {
	if _, ok := q.live[id]; !ok {
		return false
	}
	delete(q.live, id)
	q.maybeCompact()
	return true
}

// Items returns the members in insertion order.
func (q *idQueue) Items() []ID {
	out := make([]ID, 0, len(q.live))
	for _, s := range q.slots[q.head:] {
		if seq, ok := q.live[s.id]; ok && seq == s.seq {
			out = append(out, s.id)
		}
	}
	return out
}

func (q *idQueue) reset() {
	q.slots = q.slots[:0]
	q.head = 0
	clear(q.live)
}

func (q *idQueue) maybeCompact() {
	pending := len(q.slots) - q.head
	if pending < 64 || pending <= 2*len(q.live) {
		return
	}
	kept := q.slots[:0]
	for _, s := range q.slots[q.head:] {
		if seq, ok := q.live[s.id]; ok && seq == s.seq {
			kept = append(kept, s)
		}
	}
	clear(q.slots[len(kept):])
	q.slots = kept
	q.head = 0
}
