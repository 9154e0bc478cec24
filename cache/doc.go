// Package cache provides the bounded vector caches that back every tier.
//
// A cache is sized in bytes. Its item threshold is derived as
// floor(budget / (dim * 4)) once the vector dimension is known, either from
// SetEmbedSize or from the first Set. Every mutating call returns with
// Len() <= ItemsThreshold().
//
// Three eviction strategies are available:
//
//   - FIFO: insertion order, O(1) amortized admission and eviction.
//   - LRU: recency list stored in an index arena, O(1) for Get and Set.
//   - PriorityFIFO: FIFO with protected ids, typically the upper layers of a
//     proximity graph, which are set aside instead of evicted.
//
// Caches are safe for concurrent use.
package cache
