package entity

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore is an in-memory Store with the same merge semantics as the SQL backends.
// It is meant for protocol unit tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*Entity
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*Entity)}
}

func memoryKey(typ, id, namespace string) string {
	return namespace + "/" + typ + "/" + id
}

// Load returns a copy of the stored entity or nil.
func (m *MemoryStore) Load(_ context.Context, typ, id, namespace string) (*Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.rows[memoryKey(typ, id, namespace)]
	if !ok {
		return nil, nil
	}

	return e.Clone(), nil
}

// Save merges e into the stored row.
func (m *MemoryStore) Save(_ context.Context, e *Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey(e.Type, e.ID, e.Namespace)
	existing, ok := m.rows[key]
	if !ok {
		m.rows[key] = e.Clone()
		return nil
	}

	maps.Copy(existing.Fields, e.Fields)

	return nil
}

// Insert stores e unless the key exists.
func (m *MemoryStore) Insert(_ context.Context, e *Entity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey(e.Type, e.ID, e.Namespace)
	if _, ok := m.rows[key]; ok {
		return false, nil
	}
	m.rows[key] = e.Clone()

	return true, nil
}

// Len returns the number of stored entities.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.rows)
}
