// Package storage abstracts the object store holding raw uploads.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound signals a missing object.
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectStore reads and writes raw document blobs.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// PresignedURL returns a time-limited URL granting read access to the
	// object without further authentication.
	PresignedURL(key string, ttl time.Duration) (string, error)
}
