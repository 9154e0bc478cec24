// Package blobstore abstracts the object stores a value store can persist
// vectors in.
//
// Backends:
//
//   - MemoryStore: in-process map, for tests and ephemeral sessions.
//   - LocalStore: one file per blob under a root directory, read through mmap.
//   - s3.Store: Amazon S3 through aws-sdk-go-v2.
//   - minio.Store: MinIO and other S3-compatible services.
//
// Blobs are written whole with Put and read back through Open or ReadAll.
package blobstore
