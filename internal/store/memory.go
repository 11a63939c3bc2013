package store

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Store, used by tests and for scratch sessions.
type MemStore struct {
	mu     sync.RWMutex
	files  map[string]string
	reads  int
	writes int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string]string)}
}

// Read returns the text stored under id.
func (m *MemStore) Read(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &PathError{Op: "read", ID: id, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	text, ok := m.files[id]
	if !ok {
		return "", &PathError{Op: "read", ID: id, Err: ErrNotFound}
	}
	return text, nil
}

// Write stores text under id.
func (m *MemStore) Write(ctx context.Context, id, text string) error {
	if err := ctx.Err(); err != nil {
		return &PathError{Op: "write", ID: id, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	m.files[id] = text
	return nil
}

// Put stores text without counting it as a write.
func (m *MemStore) Put(id, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[id] = text
}

// Get returns the stored text and whether it exists.
func (m *MemStore) Get(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.files[id]
	return text, ok
}

// Remove deletes the text stored under id.
func (m *MemStore) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, id)
}

// IDs returns all stored ids in sorted order.
func (m *MemStore) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.files))
	for id := range m.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Writes returns the number of Write calls.
func (m *MemStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Reads returns the number of Read calls.
func (m *MemStore) Reads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads
}

// Ensure MemStore implements Store.
var _ Store = (*MemStore)(nil)
