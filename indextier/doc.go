// Package indextier is the graph index side of the tiered cache.
//
// Adapter is what the partition optimizer needs from an index: a resizable
// vector cache, hit/fallback counters and a single-shot asynchronous query.
// GraphTier implements it with an HNSW graph whose node vectors live in the
// tier's own cache. A node vector missing from that cache is taken from the
// fast tier when present (a hit) and otherwise fetched from the value store
// (a fallback).
package indextier
