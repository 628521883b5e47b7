// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - UnitStore: source unit text kept for retry and re-ingestion
//   - IngestionStore: per-unit ingestion outcome
//   - SyncStateStore: mail sync cursors
//   - SchedulerStore: background task state and history
//   - VectorIndex: embedded chunks partitioned by namespace
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Vector Search
//
// Chunks are stored as little-endian float32 blobs. Search loads the rows of
// one namespace and scores them with cosine similarity. Personal corpora stay
// small enough that a linear scan per namespace is fast.
//
// # Data Location
//
// By default, the database is stored at ~/.vellum/data/vellum.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
