package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

// Classifier assigns a category to a unit. It never fails: ambiguous
// input yields the kind's fallback category with low confidence.
type Classifier interface {
	Classify(unit domain.SourceUnit) domain.Classification
}

// Chunker splits a classified unit into chunks using the category's policy.
// The same input always yields the same chunks.
type Chunker interface {
	Chunk(unit domain.SourceUnit, classification domain.Classification) []domain.Chunk
}

// TextExtractor turns a PDF file into page texts.
// Unreadable input returns an error wrapping domain.ErrUnreadableSource.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) ([]string, error)
}

// MailFetcher retrieves mail records from a provider.
type MailFetcher interface {
	// FetchMessages returns up to limit messages received after since,
	// oldest first.
	FetchMessages(ctx context.Context, account string, since time.Time, limit int) ([]domain.RawMessage, error)
}

// MessageParser turns a raw RFC 5322 message into a mail record.
// Unreadable input returns an error wrapping domain.ErrUnreadableSource.
type MessageParser interface {
	Parse(data []byte) (*domain.RawMessage, error)
}
