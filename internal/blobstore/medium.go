// Package blobstore persists encrypted payloads on a byte-addressable medium.
// Callers only ever see opaque locators; the medium never learns a filename.
package blobstore

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned by a Medium when no object exists at a key.
var ErrObjectNotFound = errors.New("blobstore: object not found")

// ObjectInfo describes one stored object during a Walk.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Medium is the raw byte store underneath EncryptedStore. Implementations
// must make Put atomic: a reader never observes a partially written object.
type Medium interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Walk calls fn for every stored object. Returning an error from fn stops
	// the walk and is returned as is.
	Walk(ctx context.Context, fn func(ObjectInfo) error) error
}
