package driven

import (
	"context"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

// SyncStateStore persists mail sync progress per account.
type SyncStateStore interface {
	// Save stores or updates sync state.
	Save(ctx context.Context, state domain.SyncState) error

	// Get retrieves sync state for an account.
	// Returns domain.ErrNotFound if the account was never synced.
	Get(ctx context.Context, ownerID, account string) (*domain.SyncState, error)

	// DeleteOwner removes every sync state of the owner.
	DeleteOwner(ctx context.Context, ownerID string) error
}
