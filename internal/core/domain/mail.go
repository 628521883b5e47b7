package domain

import "time"

// RawMessage is a mail record returned by the mail fetcher.
type RawMessage struct {
	// ID is the provider message ID.
	ID string

	// ThreadID is the provider thread ID.
	ThreadID string

	// Sender is the From header value.
	Sender string

	// Subject is the decoded subject line.
	Subject string

	// Body is the plain text body.
	Body string

	// ReceivedAt is the provider receive time.
	ReceivedAt time.Time

	// Headers holds selected raw headers (List-Unsubscribe, Precedence, ...).
	Headers map[string]string
}

// SyncState tracks incremental mail sync progress for one account.
type SyncState struct {
	// OwnerID is the owner the account belongs to.
	OwnerID string

	// Account is the mail account identifier.
	Account string

	// Cursor is the receive time of the newest message ingested.
	Cursor time.Time

	// LastSync is when the last sync completed.
	LastSync time.Time
}

// SyncReport summarises one mail sync run.
type SyncReport struct {
	// Fetched is the number of messages returned by the provider.
	Fetched int

	// Completed, Partial and Failed count ingestion outcomes.
	Completed int
	Partial   int
	Failed    int

	// Cursor is the new sync cursor.
	Cursor time.Time
}
