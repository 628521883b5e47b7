package driving

import (
	"context"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

// QueryService answers questions over an owner's indexed content.
type QueryService interface {
	// Answer retrieves relevant chunks and generates a grounded answer.
	// When nothing passes the similarity floor the result has
	// NoRelevantContent set and generation is skipped.
	Answer(ctx context.Context, query domain.Query) (*domain.QueryResult, error)
}

// AccountService handles owner-level data lifecycle.
type AccountService interface {
	// DeleteOwnerData removes every namespace, chunk, unit, record and
	// sync state of the owner. Ingestion for the owner is blocked while
	// the purge runs.
	DeleteOwnerData(ctx context.Context, ownerID string) error
}
