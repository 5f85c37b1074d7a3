package storage

import "context"

// ObjectStore is the contract balancing code uses to persist and remove
// training images. Both operations are idempotent from the caller's
// perspective: deleting an absent key is not an error.
type ObjectStore interface {
	// Put writes the object and returns its public URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}
