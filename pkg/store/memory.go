package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of KV.
// It uses nested maps and provides thread-safe access via RWMutex.
// Note: This implementation does not persist records across restarts.
type MemoryStore struct {
	collections map[string]map[string]*Record
	mu          sync.RWMutex
}

// Compile-time interface check
var _ KV = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]*Record),
	}
}

// Get retrieves a copy of the record stored under key.
func (m *MemoryStore) Get(ctx context.Context, collection, key string) (*Record, error) {
	if err := checkArgs(collection, key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return cloneRecord(m.collections[collection][key]), nil
}

// Put stores a copy of record, replacing any previous value.
func (m *MemoryStore) Put(ctx context.Context, collection string, record *Record) error {
	if record == nil {
		return ErrInvalidArgument
	}
	if err := checkArgs(collection, record.Key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Make a copy to avoid external mutations
	stored := cloneRecord(record)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]*Record)
		m.collections[collection] = coll
	}
	coll[record.Key] = stored
	return nil
}

// Delete removes the record under key.
func (m *MemoryStore) Delete(ctx context.Context, collection, key string) (bool, error) {
	if err := checkArgs(collection, key); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collections[collection]
	if _, ok := coll[key]; !ok {
		return false, nil
	}
	delete(coll, key)
	return true, nil
}

// All returns copies of every record in collection, sorted by key.
func (m *MemoryStore) All(ctx context.Context, collection string) ([]*Record, error) {
	return m.filter(ctx, collection, func(*Record) bool { return true })
}

// ByIndex returns copies of the records whose Index matches, sorted by key.
func (m *MemoryStore) ByIndex(ctx context.Context, collection, index string) ([]*Record, error) {
	return m.filter(ctx, collection, func(r *Record) bool { return r.Index == index })
}

func (m *MemoryStore) filter(ctx context.Context, collection string, keep func(*Record) bool) ([]*Record, error) {
	if collection == "" {
		return nil, ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0, len(m.collections[collection]))
	for _, r := range m.collections[collection] {
		if keep(r) {
			out = append(out, cloneRecord(r))
		}
	}
	sortByKey(out)
	return out, nil
}

// Count returns the number of records in collection.
func (m *MemoryStore) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
