package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
)

// Ensure SyncStateStore implements the interface.
var _ driven.SyncStateStore = (*SyncStateStore)(nil)

type syncKey struct {
	owner   string
	account string
}

// SyncStateStore is an in-memory implementation of driven.SyncStateStore.
type SyncStateStore struct {
	mu     sync.RWMutex
	states map[syncKey]domain.SyncState
}

// NewSyncStateStore creates a new in-memory sync state store.
func NewSyncStateStore() *SyncStateStore {
	return &SyncStateStore{
		states: make(map[syncKey]domain.SyncState),
	}
}

// Save stores or updates sync state.
func (s *SyncStateStore) Save(_ context.Context, state domain.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[syncKey{state.OwnerID, state.Account}] = state
	return nil
}

// Get retrieves sync state for an account.
func (s *SyncStateStore) Get(_ context.Context, ownerID, account string) (*domain.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[syncKey{ownerID, account}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &state, nil
}

// DeleteOwner removes every sync state of the owner.
func (s *SyncStateStore) DeleteOwner(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.states {
		if k.owner == ownerID {
			delete(s.states, k)
		}
	}
	return nil
}
