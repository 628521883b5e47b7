package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

// IngestionService indexes source units and reports their status.
type IngestionService interface {
	// Ingest classifies, chunks, embeds and indexes a unit. Re-ingesting
	// the same unit ID replaces its previous chunks. The returned record
	// carries the outcome; an error means the unit was rejected or its
	// status could not be stored.
	Ingest(ctx context.Context, unit domain.SourceUnit) (*domain.IngestionRecord, error)

	// Retry re-embeds the pending chunks of a partial unit.
	Retry(ctx context.Context, sourceID string) (*domain.IngestionRecord, error)

	// Reconcile retries partial units and re-ingests units embedded with
	// a stale embedder version. An empty owner reconciles every owner.
	Reconcile(ctx context.Context, ownerID string) (int, error)

	// Status returns the record of a unit.
	Status(ctx context.Context, sourceID string) (*domain.IngestionRecord, error)

	// List returns the owner's records.
	List(ctx context.Context, ownerID string) ([]domain.IngestionRecord, error)

	// Delete removes a unit, its chunks and its record.
	Delete(ctx context.Context, ownerID, sourceID string) error
}

// IntakeService turns raw sources into units and ingests them.
type IntakeService interface {
	// IngestPDF extracts a PDF and ingests it. The unit ID is derived from
	// the owner and file content, so uploading the same file twice is idempotent.
	IngestPDF(ctx context.Context, ownerID, name string, data []byte) (*domain.IngestionRecord, error)

	// IngestMessage ingests one mail record.
	IngestMessage(ctx context.Context, ownerID, account string, msg domain.RawMessage) (*domain.IngestionRecord, error)

	// IngestEML parses a saved .eml file and ingests it as a message of
	// the local account.
	IngestEML(ctx context.Context, ownerID string, data []byte) (*domain.IngestionRecord, error)
}

// MailSyncService pulls new messages from a mail account.
type MailSyncService interface {
	// Sync fetches messages received after the account cursor, or after
	// since when it is later, and ingests them.
	Sync(ctx context.Context, ownerID, account string, since time.Time, limit int) (*domain.SyncReport, error)
}
