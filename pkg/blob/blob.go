// Package blob abstracts the object storage a batch's archive and its
// extracted per-file payloads live in. Two backends are provided: a
// filesystem store for local/single-node deployments and tests, and an S3
// store for shared multi-worker deployments.
package blob

import (
	"context"
	"io"
)

// Store is the object storage surface the expander and worker depend on.
// Keys are opaque strings chosen by the caller (the API handler generates
// the archive key, the expander generates per-file keys under
// extracted/<batch_id>/).
type Store interface {
	// Put writes the full contents of r under key, overwriting any
	// existing object.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Get returns a reader for the object at key. The caller must Close it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object at key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether an object is present at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// ErrNotFound is returned by Get when key has no object.
type ErrNotFound struct {
	Key string
}

func (e *ErrNotFound) Error() string {
	return "blob: not found: " + e.Key
}
