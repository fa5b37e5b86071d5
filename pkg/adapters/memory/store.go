package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/genie/pkg/domain"
)

// Store implements ports.ConversationStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.ConversationSnapshot
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.ConversationSnapshot),
	}
}

// Save persists a copy of the snapshot.
func (s *Store) Save(ctx context.Context, id string, snap *domain.ConversationSnapshot) error {
	copied := snap.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = copied
	return nil
}

// Load returns a copy so callers can't mutate stored snapshots.
func (s *Store) Load(ctx context.Context, id string) (*domain.ConversationSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return snap.Clone(), nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns stored conversation ids in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
