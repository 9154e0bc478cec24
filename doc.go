// Package vectier provides a tiered vector cache for approximate nearest
// neighbor search.
//
// An Engine keeps vectors in a persistent store (see package valuestore) and
// answers queries through an HNSW graph. Two bounded caches sit in front of
// the store:
//
//   - the fast tier, read through the access layer for plain vector lookups
//   - the index tier, holding the vectors of graph nodes visited by searches
//
// Each tier evicts with one of the strategies of package cache: FIFO, LRU or
// PriorityFIFO, the latter protecting the graph entry point and upper layer
// nodes.
//
// # Quick Start
//
//	ctx := context.Background()
//	store := valuestore.NewMemoryStore()
//	e, _ := vectier.New(store,
//	    vectier.WithFastMemory(64<<20),
//	    vectier.WithIndexMemory(256<<20),
//	)
//	defer e.Close(ctx)
//
//	_, _ = e.Insert(ctx, "doc-1", vec)
//	results, _ := e.Query(ctx, query, 10)
//
// # Capacity Partitioning
//
// Optimize shrinks both tiers until queries stop meeting a latency target:
//
//	sizes, _ := e.Optimize(ctx, 0.8, 200) // 80% of queries within 200ms
//
// Every accepted configuration is recorded. After each Query the engine
// compares the store reads of that query against the newest record and
// restores the previous larger configuration when the workload has
// drifted. Use SetMonitorMode to scope that comparison to a query round.
package vectier
