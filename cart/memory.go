package cart

import (
	"context"
	"encoding/json"
	"sync"

	"storefront-svc/models"
)

// MemoryPersister keeps snapshots in process memory.
type MemoryPersister struct {
	mu    sync.Mutex
	carts map[string][]byte
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{carts: make(map[string][]byte)}
}

func (m *MemoryPersister) Load(_ context.Context, id string) (*models.CartSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.carts[id]
	if !ok {
		return &models.CartSnapshot{ID: id, Lines: []models.CartLine{}}, nil
	}
	var snap models.CartSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Save follows the same version check as the Redis store.
func (m *MemoryPersister) Save(_ context.Context, snap *models.CartSnapshot) error {
	next := *snap
	next.Version++
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var stored models.CartSnapshot
	if current, ok := m.carts[snap.ID]; ok {
		if err := json.Unmarshal(current, &stored); err != nil {
			return err
		}
	}
	if stored.Version != snap.Version {
		return models.ErrCartConflict
	}
	m.carts[snap.ID] = data
	snap.Version = next.Version
	return nil
}

func (m *MemoryPersister) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.carts, id)
	m.mu.Unlock()
	return nil
}
