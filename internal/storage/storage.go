// Package storage abstracts blob persistence for assembled uploads so the
// handler code is independent of the backing store (local filesystem or S3).
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Backend stores assembled upload blobs keyed by file id.
type Backend interface {
	// Store writes the object and returns the SHA256 hex digest of the
	// bytes written. size is advisory; implementations may use it for
	// validation or pre-allocation.
	Store(ctx context.Context, key string, r io.Reader, size int64) (hash string, err error)

	// Retrieve returns a reader for the object. The caller closes it.
	// Returns ErrNotFound if the object does not exist.
	Retrieve(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether the object is present.
	Exists(ctx context.Context, key string) (bool, error)

	// GetSize returns the object size in bytes.
	// Returns ErrNotFound if the object does not exist.
	GetSize(ctx context.Context, key string) (int64, error)
}
