package sqlite

import (
	"context"

	"github.com/pigeon-chat/pigeon/internal/backend"
)

// Upload stores an object through the configured object store and returns
// its public URL.
func (b *Backend) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	if b.objects == nil {
		return "", backend.ErrNoObjectStore
	}
	if err := b.objects.EnsureBucket(ctx, bucket); err != nil {
		return "", err
	}
	return b.objects.Put(ctx, bucket, path, data, contentType)
}
