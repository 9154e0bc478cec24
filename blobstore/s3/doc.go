// Package s3 stores blobs in Amazon S3.
//
//	store, err := s3.New(ctx, "my-bucket", s3.WithPrefix("vectors/"), s3.WithRegion("eu-west-1"))
//	vs := valuestore.NewBlobStore(store)
//
// Reads are ranged GETs. Writes go through the transfer manager, which
// switches to multipart uploads for large blobs.
package s3
