// Package distance provides the vector distance functions used by the graph
// index and the benchmark ground truth.
//
// # Supported Metrics
//
//   - MetricL2: Squared Euclidean distance (default)
//   - MetricCosine: 1 - cosine similarity
//   - MetricDot: negative dot product, so smaller is closer
package distance
