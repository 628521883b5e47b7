// Package domain defines the core business entities for Vellum.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - SourceUnit: A single ingested PDF document or email message
//   - Classification: The category assigned to a unit
//   - Chunk: A retrievable segment of a unit
//   - Namespace: An isolated partition of the vector index
//   - IngestionRecord: The observable ingestion status of a unit
//   - QueryResult: A grounded answer with citations
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
