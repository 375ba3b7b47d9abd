// Package secretstore defines the host-supplied secret store contract the
// Token Store persists through, plus reference backends (SQLite, Postgres)
// for standalone operation when no host injects its own implementation.
package secretstore

import "context"

// Store is the out-of-scope, host-supplied collaborator named in spec.md
// §1: an opaque key/value blob store. The Token Store never interprets the
// key beyond a single well-known constant (BlobKey); the value is whatever
// bytes the Token Store's own (de)serialization produces.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// BlobKey is the single opaque key under which the entire account blob is
// stored (spec.md §6: "Stored under a single opaque key in the host secret
// store").
const BlobKey = "vendorcore.accounts.v1"

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "secretstore: key not found" }
