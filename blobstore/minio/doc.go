// Package minio stores blobs in MinIO or any S3-compatible service through
// the MinIO client.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	})
//	store := minioblob.NewStore(client, "vectors", "session-1/")
package minio
