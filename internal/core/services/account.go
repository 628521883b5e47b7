package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/core/ports/driving"
	"github.com/custodia-labs/vellum/internal/logger"
)

// Ensure AccountService implements the interface.
var _ driving.AccountService = (*AccountService)(nil)

// AccountService erases an owner's data.
type AccountService struct {
	index   driven.VectorIndex
	records driven.IngestionStore
	units   driven.UnitStore
	syncs   driven.SyncStateStore
	locks   *IngestLocks
}

// NewAccountService creates an account service. The locks must be the
// ones used by the IngestionService.
func NewAccountService(
	index driven.VectorIndex,
	records driven.IngestionStore,
	units driven.UnitStore,
	syncs driven.SyncStateStore,
	locks *IngestLocks,
) *AccountService {
	return &AccountService{
		index:   index,
		records: records,
		units:   units,
		syncs:   syncs,
		locks:   locks,
	}
}

// DeleteOwnerData removes every namespace, chunk, unit, record and sync
// state of the owner. Ingestion for the owner waits until it returns.
func (s *AccountService) DeleteOwnerData(ctx context.Context, ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("%w: owner id is required", domain.ErrInvalidInput)
	}

	release := s.locks.Owner(ownerID)
	defer release()

	// Chunks go first so nothing stays searchable if a later step fails.
	if err := s.index.DeleteOwner(ctx, ownerID); err != nil {
		return fmt.Errorf("%w: delete owner chunks: %w", domain.ErrIndexWrite, err)
	}
	if err := s.records.DeleteOwner(ctx, ownerID); err != nil {
		return fmt.Errorf("delete ingestion records: %w", err)
	}
	if err := s.units.DeleteOwner(ctx, ownerID); err != nil {
		return fmt.Errorf("delete units: %w", err)
	}
	if s.syncs != nil {
		if err := s.syncs.DeleteOwner(ctx, ownerID); err != nil {
			return fmt.Errorf("delete sync states: %w", err)
		}
	}

	logger.Info("deleted all data of %s", ownerID)
	return nil
}
