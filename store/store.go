// Package store keeps hit logs for the hit counter service so several
// instances can share them.
package store

import (
	"context"
	"errors"

	"github.com/yourusername/hitcounter/core"
)

// ErrStoreFailed is returned when the backend cannot be read or written
var ErrStoreFailed = errors.New("store operation failed")

// UpdateFunc receives the current log for a key (empty when the key is new)
// and returns the log to store. Returning an error aborts the update and
// leaves the stored log untouched.
type UpdateFunc func(log *core.HitLog) (*core.HitLog, error)

// Store defines the interface for hit log storage
type Store interface {
	// Get returns a copy of the log for key, empty when the key is unknown.
	Get(ctx context.Context, key string) (*core.HitLog, error)

	// Update applies fn to the log for key atomically and returns the
	// stored result. Errors from fn are returned as is.
	Update(ctx context.Context, key string, fn UpdateFunc) (*core.HitLog, error)

	// Delete removes the log for key.
	Delete(ctx context.Context, key string) error

	// Clear removes every log held by the store.
	Clear(ctx context.Context) error
}
