package consent

import (
	"context"
	"sync"

	"relay/pkg/models"
)

// Store holds per-user consent state. Get returns nil when no consent
// record exists for the identifier; callers decide what absence means.
type Store interface {
	Get(ctx context.Context, identifier string) (*models.ConsentStatus, error)
	Set(ctx context.Context, identifier string, status models.ConsentStatus) error
	Delete(ctx context.Context, identifier string) error
}

// MemoryStore is the in-process default used when no Redis address is
// configured, and the store of choice in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.ConsentStatus
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]models.ConsentStatus),
	}
}

func (s *MemoryStore) Get(ctx context.Context, identifier string) (*models.ConsentStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.records[identifier]
	if !ok {
		return nil, nil
	}
	copied := status
	if status.Categories != nil {
		copied.Categories = make(map[string]bool, len(status.Categories))
		for k, v := range status.Categories {
			copied.Categories[k] = v
		}
	}
	return &copied, nil
}

func (s *MemoryStore) Set(ctx context.Context, identifier string, status models.ConsentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[identifier] = status
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identifier)
	return nil
}
