package domain

import (
	"fmt"
	"time"
)

// Chunk is a contiguous, possibly overlapping segment of a unit's text.
type Chunk struct {
	// ID is derived from the source ID and sequence, so re-chunking the
	// same unit produces the same IDs.
	ID string

	// SourceID is the unit this chunk was cut from.
	SourceID string

	// OwnerID is the owner of the source unit.
	OwnerID string

	// Kind is the source unit's content kind.
	Kind ContentKind

	// Category is the source unit's category.
	Category Category

	// Sequence is the 0-based position of the chunk within the unit.
	Sequence int

	// Start and End are byte offsets into the unit text, End exclusive.
	Start int
	End   int

	// Text is the chunk content including any overlap.
	Text string

	// Page is the 1-based page the chunk starts on; 0 for email.
	Page int

	// Reference is a human-readable position label used in citations.
	Reference string

	// SourceArrivedAt is the arrival time of the source unit.
	SourceArrivedAt time.Time
}

// ChunkID returns the deterministic ID of a chunk.
func ChunkID(sourceID string, sequence int) string {
	return fmt.Sprintf("%s#%d", sourceID, sequence)
}

// EmbeddedChunk pairs a chunk with its embedding vector.
type EmbeddedChunk struct {
	Chunk  Chunk
	Vector []float32
}
