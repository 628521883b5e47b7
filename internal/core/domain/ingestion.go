package domain

import "time"

// IngestionStatus is the observable outcome of ingesting a unit.
type IngestionStatus string

// Ingestion statuses.
const (
	// StatusCompleted means every chunk of the unit is indexed.
	StatusCompleted IngestionStatus = "completed"

	// StatusPartial means some chunks are indexed and the rest are pending.
	// Units interrupted mid-ingestion are also left partial.
	StatusPartial IngestionStatus = "partial"

	// StatusFailed means the unit could not be indexed.
	StatusFailed IngestionStatus = "failed"
)

// IsValid returns true if the status is recognised.
func (s IngestionStatus) IsValid() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s IngestionStatus) String() string {
	return string(s)
}

// Failure reasons recorded on IngestionRecord.Reason.
const (
	ReasonInProgress       = "in progress"
	ReasonNoContent        = "no extractable content"
	ReasonEmbeddingFailure = "embedding failure"
	ReasonIndexWrite       = "index write failure"
	ReasonCancelled        = "cancelled"
)

// IngestionRecord tracks the ingestion state of one unit.
type IngestionRecord struct {
	// SourceID is the unit ID.
	SourceID string

	// OwnerID is the unit owner.
	OwnerID string

	// Kind is the unit content kind.
	Kind ContentKind

	// Title is the unit display name.
	Title string

	// Category and Confidence are the classification result.
	Category   Category
	Confidence float64

	// Status is the current outcome.
	Status IngestionStatus

	// Reason explains a partial or failed status.
	Reason string

	// TotalChunks is the number of chunks the unit produced.
	TotalChunks int

	// Pending lists chunk sequences that are not yet indexed.
	Pending []int

	// EmbedderVersion is the model version the chunks were embedded with.
	EmbedderVersion string

	// Attempts counts ingestion and retry runs.
	Attempts int

	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time
}

// IndexedChunks returns the number of chunks present in the index.
func (r IngestionRecord) IndexedChunks() int {
	return r.TotalChunks - len(r.Pending)
}

// Namespace returns the namespace the unit's chunks live in.
func (r IngestionRecord) Namespace() Namespace {
	return Namespace{
		OwnerID:         r.OwnerID,
		Kind:            r.Kind,
		Category:        r.Category,
		EmbedderVersion: r.EmbedderVersion,
	}
}

// Retryable reports whether a retry can make progress on the unit.
func (r IngestionRecord) Retryable() bool {
	return r.Status == StatusPartial
}
