package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/core/ports/driving"
	"github.com/custodia-labs/vellum/internal/logger"
)

// Ensure MailSyncService implements the interface.
var _ driving.MailSyncService = (*MailSyncService)(nil)

// DefaultFetchLimit bounds a sync run when the caller gives no limit.
const DefaultFetchLimit = 100

// MailSyncService pulls new messages from a mail account into the index.
type MailSyncService struct {
	fetcher driven.MailFetcher
	intake  driving.IntakeService
	states  driven.SyncStateStore
	now     func() time.Time
}

// NewMailSyncService creates a mail sync service.
func NewMailSyncService(
	fetcher driven.MailFetcher,
	intake driving.IntakeService,
	states driven.SyncStateStore,
) *MailSyncService {
	return &MailSyncService{
		fetcher: fetcher,
		intake:  intake,
		states:  states,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sync fetches messages received after the later of since and the stored
// cursor, ingests them oldest first and advances the cursor past every
// message it processed.
//
//nolint:gocyclo // Sequential sync steps
func (s *MailSyncService) Sync(
	ctx context.Context, ownerID, account string, since time.Time, limit int,
) (*domain.SyncReport, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(account) == "" {
		return nil, fmt.Errorf("%w: account is required", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultFetchLimit
	}

	// 1. Resume from the stored cursor
	state, err := s.states.Get(ctx, ownerID, account)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get sync state: %w", err)
	}
	cursor := since
	if state != nil && state.Cursor.After(cursor) {
		cursor = state.Cursor
	}

	// 2. Fetch
	logger.Info("syncing %s since %s", account, formatCursor(cursor))
	msgs, err := s.fetcher.FetchMessages(ctx, account, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	// 3. Ingest oldest first
	report := &domain.SyncReport{Fetched: len(msgs), Cursor: cursor}
	var runErr error
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		rec, err := s.intake.IngestMessage(ctx, ownerID, account, msg)
		if err != nil && ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}

		switch {
		case err != nil:
			logger.Warn("message %s: %v", msg.ID, err)
			report.Failed++
		case rec.Status == domain.StatusCompleted:
			report.Completed++
		case rec.Status == domain.StatusPartial:
			report.Partial++
		default:
			report.Failed++
		}

		if msg.ReceivedAt.After(report.Cursor) {
			report.Cursor = msg.ReceivedAt
		}
	}

	// 4. Persist progress, even for an interrupted run
	newState := domain.SyncState{
		OwnerID:  ownerID,
		Account:  account,
		Cursor:   report.Cursor,
		LastSync: s.now(),
	}
	if err := s.states.Save(context.WithoutCancel(ctx), newState); err != nil {
		return report, fmt.Errorf("save sync state: %w", err)
	}

	logger.Info("synced %s: %d fetched, %d completed, %d partial, %d failed",
		account, report.Fetched, report.Completed, report.Partial, report.Failed)
	return report, runErr
}

func formatCursor(t time.Time) string {
	if t.IsZero() {
		return "the beginning"
	}
	return t.Format(time.RFC3339)
}
