package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultMaxUnitBytes bounds the text size accepted for a single unit.
const DefaultMaxUnitBytes = 8 << 20

// SourceUnit is one ingested PDF document or one email message.
// A unit is immutable once stored; re-ingesting the same ID replaces it.
type SourceUnit struct {
	// ID uniquely identifies the unit within the system.
	ID string

	// OwnerID is the user the content belongs to.
	OwnerID string

	// Kind is the origin format.
	Kind ContentKind

	// Title is a display name (file name or email subject).
	Title string

	// Text is the extracted text. For PDFs the pages joined by PageSeparator.
	Text string

	// PageOffsets holds the byte offset in Text where each page starts.
	// Empty for email.
	PageOffsets []int

	// ArrivedAt is when the unit entered the system (upload or receipt time).
	ArrivedAt time.Time

	// Hints carries optional metadata used by the classifier.
	Hints Hints
}

// Hints are optional source metadata.
type Hints struct {
	// PageCount is the number of pages reported by the extractor.
	PageCount int

	// ThreadID is the mail thread identifier.
	ThreadID string

	// Sender is the From address of an email.
	Sender string

	// Subject is the subject line of an email.
	Subject string

	// Headers holds selected raw email headers.
	Headers map[string]string
}

// PageSeparator joins page texts into SourceUnit.Text.
const PageSeparator = "\n\n"

// NewDocumentUnit builds a PDF unit from page texts, recording page offsets.
func NewDocumentUnit(id, ownerID, title string, pages []string, arrivedAt time.Time) SourceUnit {
	var b strings.Builder
	offsets := make([]int, 0, len(pages))
	for i, page := range pages {
		if i > 0 {
			b.WriteString(PageSeparator)
		}
		offsets = append(offsets, b.Len())
		b.WriteString(page)
	}
	return SourceUnit{
		ID:          id,
		OwnerID:     ownerID,
		Kind:        KindPDF,
		Title:       title,
		Text:        b.String(),
		PageOffsets: offsets,
		ArrivedAt:   arrivedAt,
		Hints:       Hints{PageCount: len(pages)},
	}
}

// Validate checks the unit can enter the ingestion pipeline.
// maxBytes <= 0 disables the size check.
func (u SourceUnit) Validate(maxBytes int) error {
	switch {
	case strings.TrimSpace(u.ID) == "":
		return fmt.Errorf("%w: unit id is required", ErrInvalidInput)
	case strings.TrimSpace(u.OwnerID) == "":
		return fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	case !u.Kind.IsValid():
		return fmt.Errorf("%w: unknown content kind %q", ErrInvalidInput, u.Kind)
	case maxBytes > 0 && len(u.Text) > maxBytes:
		return fmt.Errorf("%w: unit text is %d bytes, limit is %d", ErrInvalidInput, len(u.Text), maxBytes)
	}
	return nil
}

// PageCount returns the number of pages, preferring the extractor hint.
func (u SourceUnit) PageCount() int {
	if u.Hints.PageCount > 0 {
		return u.Hints.PageCount
	}
	return len(u.PageOffsets)
}

// PageAt returns the 1-based page containing the byte offset.
// Returns 0 when the unit has no page information.
func (u SourceUnit) PageAt(offset int) int {
	if len(u.PageOffsets) == 0 {
		return 0
	}
	i := sort.Search(len(u.PageOffsets), func(i int) bool {
		return u.PageOffsets[i] > offset
	})
	if i == 0 {
		return 1
	}
	return i
}
