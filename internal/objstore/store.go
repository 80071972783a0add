// Package objstore abstracts the object storage behind the backend facade's
// upload call.
package objstore

import "context"

// Store is a bucket-scoped object store. Put returns the public URL of the
// stored object.
type Store interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
	Remove(ctx context.Context, bucket, key string) error
}
