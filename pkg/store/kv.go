// Package store provides the key-value persistence collaborator used by the
// catalog and by character storage.
package store

import (
	"context"
	"errors"
	"slices"
	"time"
)

// Record is one stored value. Index is an optional secondary index value
// (for example the content identity of a source snapshot).
type Record struct {
	Key       string    // Primary key, unique within a collection
	Index     string    // Secondary index value, may be empty
	Value     []byte    // Opaque payload (JSON documents in practice)
	UpdatedAt time.Time // Set by the store on Put when zero
}

// KV defines the storage operations the catalog relies on.
// Implementations must be safe for concurrent use.
type KV interface {
	// Get retrieves a record by key.
	// Returns (nil, nil) if the record is not found (no error).
	Get(ctx context.Context, collection, key string) (*Record, error)

	// Put inserts or replaces a record by key.
	Put(ctx context.Context, collection string, record *Record) error

	// Delete removes a record. Returns (false, nil) if it did not exist.
	Delete(ctx context.Context, collection, key string) (bool, error)

	// All returns every record of a collection ordered by key.
	All(ctx context.Context, collection string) ([]*Record, error)

	// ByIndex returns the records whose Index equals index, ordered by key.
	ByIndex(ctx context.Context, collection, index string) ([]*Record, error)

	// Close releases any resources held by the store (e.g., database connections).
	Close() error
}

// ErrInvalidArgument is returned for an empty collection or key.
var ErrInvalidArgument = errors.New("store: collection and key are required")

func checkArgs(collection, key string) error {
	if collection == "" || key == "" {
		return ErrInvalidArgument
	}
	return nil
}

func cloneRecord(r *Record) *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Value = slices.Clone(r.Value)
	return &out
}

func sortByKey(records []*Record) {
	slices.SortFunc(records, func(a, b *Record) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
}
