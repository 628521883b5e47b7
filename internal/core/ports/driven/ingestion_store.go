package driven

import (
	"context"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

// UnitStore persists source units so the pipeline can be re-run.
type UnitStore interface {
	// Save stores or replaces a unit.
	Save(ctx context.Context, unit domain.SourceUnit) error

	// Get retrieves a unit. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*domain.SourceUnit, error)

	// Delete removes a unit.
	Delete(ctx context.Context, id string) error

	// DeleteOwner removes every unit of the owner.
	DeleteOwner(ctx context.Context, ownerID string) error
}

// IngestionStore persists ingestion records.
type IngestionStore interface {
	// Save stores or replaces a record.
	Save(ctx context.Context, record domain.IngestionRecord) error

	// Get retrieves the record of a unit. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, sourceID string) (*domain.IngestionRecord, error)

	// List returns the owner's records, most recently updated first.
	List(ctx context.Context, ownerID string) ([]domain.IngestionRecord, error)

	// ListByStatus returns the owner's records with the given status.
	// An empty owner matches every owner.
	ListByStatus(ctx context.Context, ownerID string, status domain.IngestionStatus) ([]domain.IngestionRecord, error)

	// Delete removes a record.
	Delete(ctx context.Context, sourceID string) error

	// DeleteOwner removes every record of the owner.
	DeleteOwner(ctx context.Context, ownerID string) error
}
