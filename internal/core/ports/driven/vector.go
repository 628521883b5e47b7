package driven

import (
	"context"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

// VectorIndex stores embedded chunks in isolated namespaces and answers
// cosine-similarity searches within one namespace.
//
// Implementations must guarantee:
//   - Upsert is atomic per chunk ID: a search sees the old or the new chunk, never a mix.
//   - DeleteBySource is atomic: a search never sees part of a unit's chunks removed.
//   - A namespace holds vectors of one dimensionality only (ErrDimensionMismatch).
//   - A namespace holds chunks of its own owner, kind and category only.
type VectorIndex interface {
	// Upsert inserts or replaces chunks by ID.
	Upsert(ctx context.Context, ns domain.Namespace, chunks []domain.EmbeddedChunk) error

	// Search returns at most k hits scoring at least floor, ordered as domain.SortHits.
	// Searching an unknown namespace returns no hits.
	Search(ctx context.Context, ns domain.Namespace, query []float32, k int, floor float64) ([]domain.Hit, error)

	// DeleteBySource removes every chunk of a unit and returns how many were removed.
	DeleteBySource(ctx context.Context, ns domain.Namespace, sourceID string) (int, error)

	// DeleteOwner removes every namespace of the owner.
	DeleteOwner(ctx context.Context, ownerID string) error

	// Namespaces lists the owner's non-empty namespaces.
	Namespaces(ctx context.Context, ownerID string) ([]domain.Namespace, error)

	// Close releases resources.
	Close() error
}
