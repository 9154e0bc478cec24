// Package valuestore is the persistent tier: the slow, authoritative home of
// every vector. Caches in front of it fall back here on a miss.
//
// Implementations:
//
//   - MemoryStore: map plus a roaring bitmap of ids.
//   - BlobStore: one encoded blob per vector on any blobstore.BlobStore.
//   - SQLiteStore: a single table in a pure-Go SQLite database. It also keeps
//     the external key table.
//   - DynamoStore: a DynamoDB table keyed by id.
//   - Latency: wraps another Store and adds a fixed delay per call.
//
// Absent ids are reported with ErrNotFound and never as zero vectors.
// Backend failures are wrapped in ErrUnavailable. Nothing here retries.
package valuestore
