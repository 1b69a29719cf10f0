package state

import (
	"strings"
	"sync"
)

// MemStore is an in-memory Store for tests. It honors the same trim-on-read
// contract as FileStore so the orchestrator behaves identically against both.
type MemStore struct {
	mu     sync.RWMutex
	fields map[string]string
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{fields: make(map[string]string)}
}

func (m *MemStore) Get(field string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return strings.TrimSpace(m.fields[field]), nil
}

func (m *MemStore) Set(field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[field] = value
	return nil
}

func (m *MemStore) Append(field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[field] += value
	return nil
}

// Raw returns the untrimmed stored value, for assertions on append-only logs.
func (m *MemStore) Raw(field string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fields[field]
}
