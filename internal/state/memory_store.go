package state

import (
	"context"
	"sync"
)

// MemoryStore is a non-persistent Store for tests and dry runs.
type MemoryStore struct {
	mu    sync.Mutex
	state ServiceState

	// Writes counts calls that changed a flag.
	Writes int
}

// NewMemoryStore returns a store starting from initial.
func NewMemoryStore(initial ServiceState) *MemoryStore {
	return &MemoryStore{state: initial}
}

func (s *MemoryStore) Get(ctx context.Context) (ServiceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *MemoryStore) MarkAvailable(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Available {
		s.state.Available = true
		s.Writes++
	}
	return nil
}

func (s *MemoryStore) MarkActive(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Active {
		s.state.Active = true
		s.Writes++
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
