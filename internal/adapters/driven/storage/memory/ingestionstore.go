package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
)

// Ensure IngestionStore implements the interface.
var _ driven.IngestionStore = (*IngestionStore)(nil)

// IngestionStore is an in-memory implementation of driven.IngestionStore.
type IngestionStore struct {
	mu      sync.RWMutex
	records map[string]domain.IngestionRecord
}

// NewIngestionStore creates a new in-memory ingestion store.
func NewIngestionStore() *IngestionStore {
	return &IngestionStore{
		records: make(map[string]domain.IngestionRecord),
	}
}

// Save stores or replaces a record.
func (s *IngestionStore) Save(_ context.Context, record domain.IngestionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.Pending = append([]int(nil), record.Pending...)
	s.records[record.SourceID] = record
	return nil
}

// Get retrieves the record of a unit.
func (s *IngestionStore) Get(_ context.Context, sourceID string) (*domain.IngestionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[sourceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	record.Pending = append([]int(nil), record.Pending...)
	return &record, nil
}

// List returns the owner's records, most recently updated first.
func (s *IngestionStore) List(ctx context.Context, ownerID string) ([]domain.IngestionRecord, error) {
	return s.ListByStatus(ctx, ownerID, "")
}

// ListByStatus returns the owner's records with the given status.
// An empty status matches every status; an empty owner matches every owner.
func (s *IngestionStore) ListByStatus(
	_ context.Context, ownerID string, status domain.IngestionStatus,
) ([]domain.IngestionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.IngestionRecord
	for _, r := range s.records {
		if ownerID != "" && r.OwnerID != ownerID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		r.Pending = append([]int(nil), r.Pending...)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out, nil
}

// Delete removes a record.
func (s *IngestionStore) Delete(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sourceID)
	return nil
}

// DeleteOwner removes every record of the owner.
func (s *IngestionStore) DeleteOwner(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		if r.OwnerID == ownerID {
			delete(s.records, id)
		}
	}
	return nil
}
