// Package hnsw implements a Hierarchical Navigable Small World graph whose
// node vectors live outside the graph.
//
// The graph stores only topology: per node its top layer and neighbor lists.
// Every distance computation resolves vectors through a VectorFunc supplied
// per call, so the caller decides which cache tier or store answers and can
// count hits and fallbacks along the way.
//
// # Parameters
//
//   - M: Max connections per node on upper layers (default: 16); layer 0
//     allows 2*M
//   - EFConstruction: Construction queue size (default: 200)
//   - ef: Search queue size, passed per query (at least k)
//
// # Reference
//
// Malkov & Yashunin, "Efficient and robust approximate nearest neighbor search
// using Hierarchical Navigable Small World graphs", IEEE TPAMI 2018.
package hnsw
