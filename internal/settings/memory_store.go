package settings

import (
	"context"
	"sync"
)

type itemKey struct {
	id         uint64
	entityType string
}

// InMemoryStore is a simple in-memory Store for tests and local runs.
type InMemoryStore struct {
	mu    sync.RWMutex
	items map[itemKey]map[string]string
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{items: make(map[itemKey]map[string]string)}
}

// AddItem stores an item with its details, replacing any previous one.
func (s *InMemoryStore) AddItem(id uint64, entityType string, details map[string]string) {
	copied := make(map[string]string, len(details))
	for k, v := range details {
		copied[k] = v
	}
	s.mu.Lock()
	s.items[itemKey{id, entityType}] = copied
	s.mu.Unlock()
}

// GetDetails implements Store.
func (s *InMemoryStore) GetDetails(_ context.Context, itemID uint64, entityType string, keys ...string) (map[string]string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	details, ok := s.items[itemKey{itemID, entityType}]
	if !ok {
		return nil, false, nil
	}
	values := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := details[k]; ok {
			values[k] = v
		}
	}
	return values, true, nil
}
