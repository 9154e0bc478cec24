package cache

import (
	"errors"
	"fmt"
	"strings"
)

// ID identifies a vector across every tier and the value store.
type ID = uint32

// Strategy selects the eviction policy of a VectorCache.
type Strategy uint8

const (
	// FIFO evicts in insertion order. Re-setting a resident id does not
	// refresh its position.
	FIFO Strategy = iota
	// LRU evicts the least recently used entry. Get and Set both count as use.
	LRU
	// PriorityFIFO is FIFO with a protected set of designated ids that are
	// moved aside instead of being evicted.
	PriorityFIFO
)

func (s Strategy) String() string {
	switch s {
	case FIFO:
		return "FIFO"
	case LRU:
		return "LRU"
	case PriorityFIFO:
		return "PriorityFIFO"
	default:
		return fmt.Sprintf("Strategy(%d)", uint8(s))
	}
}

// ParseStrategy maps a case-insensitive name onto a Strategy.
// "priority-fifo" and "priority_fifo" are accepted as aliases.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo":
		return FIFO, nil
	case "lru":
		return LRU, nil
	case "priorityfifo", "priority-fifo", "priority_fifo":
		return PriorityFIFO, nil
	}
	return 0, fmt.Errorf("cache: unknown strategy %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(b []byte) error {
	v, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// BytesPerComponent is the accounted size of one vector component.
const BytesPerComponent = 4

// ErrInternalConsistency is matched by errors.Is for every *ConsistencyError.
var ErrInternalConsistency = errors.New("cache: internal consistency violated")

// ConsistencyError reports a bookkeeping fault detected while admitting id.
type ConsistencyError struct {
	ID     ID
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("cache: internal consistency violated for id %d: %s", e.ID, e.Detail)
}

func (e *ConsistencyError) Unwrap() error { return ErrInternalConsistency }

// VectorCache is a bounded id -> vector map. Its capacity in items is derived
// from a byte budget and the dimension of the vectors it holds.
//
// Returned vectors are shared with the cache and must be treated as read-only.
type VectorCache interface {
	// Has reports residency without touching recency.
	Has(id ID) bool
	// Get returns the resident vector. Under LRU a hit refreshes recency.
	Get(id ID) ([]float32, bool)
	// Peek returns the resident vector without touching recency.
	Peek(id ID) ([]float32, bool)
	// Set admits or updates an entry and evicts down to the item threshold.
	// The first Set on a cache with no known dimension fixes it to len(v).
	// Priority-FIFO may silently refuse admission when it is full.
	Set(id ID, v []float32) error
	// Delete removes id from every internal structure. Missing ids are ignored.
	Delete(id ID)
	// Clear drops all entries and priority state.
	Clear()
	Len() int

	SetMemoryBudget(bytes int64)
	// SetItemsThreshold overrides the derived item capacity and evicts to it.
	SetItemsThreshold(n int)
	SetEmbedSize(dim int)
	MemoryBudget() int64
	ItemsThreshold() int
	EmbedSize() int

	// RandomID returns an arbitrary resident id.
	RandomID() (ID, bool)

	// DesignatePriority marks id as protected. No-op unless PriorityFIFO.
	DesignatePriority(id ID)
	// ClearPriority forgets all designations. No-op unless PriorityFIFO.
	ClearPriority()
	// ReconcilePriority caps the active protected set at the item threshold,
	// keeping the earliest designations. No-op unless PriorityFIFO.
	ReconcilePriority()

	Strategy() Strategy
	Stats() Stats
}

// Stats is a point-in-time view of a cache.
type Stats struct {
	Strategy       Strategy
	MemoryBudget   int64
	EmbedSize      int
	ItemsThreshold int
	Size           int

	// Queued is the number of ids in the eviction queue (FIFO, PriorityFIFO)
	// or recency list (LRU).
	Queued int
	// Held is the number of protected ids moved out of the queue (PriorityFIFO).
	Held int
	// Designated is the size of the active protected set (PriorityFIFO).
	Designated int
	// ResidentBytes is the accounted size of all resident vectors.
	ResidentBytes int64
}

// ThresholdFor derives the item capacity for a byte budget and dimension.
// It is zero when the dimension is unknown.
func ThresholdFor(budget int64, dim int) int {
	if dim <= 0 || budget <= 0 {
		return 0
	}
	return int(budget / int64(dim*BytesPerComponent))
}
