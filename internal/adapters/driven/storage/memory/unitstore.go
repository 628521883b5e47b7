package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
)

// Ensure UnitStore implements the interface.
var _ driven.UnitStore = (*UnitStore)(nil)

// UnitStore is an in-memory implementation of driven.UnitStore.
type UnitStore struct {
	mu    sync.RWMutex
	units map[string]domain.SourceUnit
}

// NewUnitStore creates a new in-memory unit store.
func NewUnitStore() *UnitStore {
	return &UnitStore{
		units: make(map[string]domain.SourceUnit),
	}
}

// Save stores or replaces a unit.
func (s *UnitStore) Save(_ context.Context, unit domain.SourceUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[unit.ID] = unit
	return nil
}

// Get retrieves a unit by ID.
func (s *UnitStore) Get(_ context.Context, id string) (*domain.SourceUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unit, ok := s.units[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &unit, nil
}

// Delete removes a unit.
func (s *UnitStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.units, id)
	return nil
}

// DeleteOwner removes every unit of the owner.
func (s *UnitStore) DeleteOwner(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, unit := range s.units {
		if unit.OwnerID == ownerID {
			delete(s.units, id)
		}
	}
	return nil
}
