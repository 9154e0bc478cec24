// Package testutil provides testing utilities for vectier.
//
// It is meant for tests, benchmarks and the bench command. It provides
// helpers for generating random vectors and query workloads, computing
// exact nearest neighbors, and verifying search recall.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UniformVectors(1000, 128)     // uniform [0, 1)
//	vecs = rng.ClusteredVectors(1000, 128, 8, 0.05)
//
// # Skewed Workloads
//
//	ids := rng.ZipfIDs(100, len(vecs), 1.2) // hot ids first
//
// # Exact Search (Ground Truth)
//
//	truth := testutil.BruteForceSearch(vecs, query, k)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(truth, approx)
package testutil
