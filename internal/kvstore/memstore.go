package kvstore

import (
	"context"
	"sync"

	"aggsearch/internal/value"
)

// MemStore is the "embedded key-value mock" DocStore implementation used
// by package tests and by single-process deployments that don't need
// Redis. Safe for concurrent use.
type MemStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]value.Value
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string]map[string]value.Value)}
}

// Put registers (or replaces) a document's full field map.
func (m *MemStore) Put(docKey string, fields map[string]value.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[docKey] = fields
}

func (m *MemStore) LoadFields(_ context.Context, docKey string, fields []string) (map[string]value.Value, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[docKey]
	if !ok {
		return nil, false, nil
	}
	out := make(map[string]value.Value, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		} else {
			out[f] = value.Null
		}
	}
	return out, true, nil
}

func (m *MemStore) FieldExists(_ context.Context, docKey, field string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[docKey]
	if !ok {
		return false, nil
	}
	_, ok = doc[field]
	return ok, nil
}

var _ DocStore = (*MemStore)(nil)
