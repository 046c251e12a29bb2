package port

import (
	"context"
	"time"
)

// BlobStore moves files between object storage and the worker's scratch
// directory.
type BlobStore interface {
	// Download fetches the object at key into destPath, creating parent
	// directories as needed.
	Download(ctx context.Context, key, destPath string) error

	// Upload stores the local file under key. Uploading to an existing key
	// overwrites it.
	Upload(ctx context.Context, localPath, key, contentType string) error

	// PresignedURL returns a time-limited GET URL for key.
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	Delete(ctx context.Context, key string) error
}
