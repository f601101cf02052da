package state

import (
	"context"
	"sync"

	"spot/internal/domain/entity"
	"spot/internal/domain/repository"
)

// MemoryStore holds the WatchState in memory; used by tests.
type MemoryStore struct {
	mu    sync.Mutex
	state entity.WatchState
	saved bool
}

var _ repository.StateStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements repository.StateStore.
func (s *MemoryStore) Load(_ context.Context) (entity.WatchState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.saved {
		return entity.NewWatchState(), nil
	}

	return s.state, nil
}

// Save implements repository.StateStore.
func (s *MemoryStore) Save(_ context.Context, st entity.WatchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = st
	s.saved = true

	return nil
}
