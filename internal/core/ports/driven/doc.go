// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - EmbeddingService: Generates vectors with a local embedding model
//   - VectorIndex: Namespaced vector storage and similarity search
//   - UnitStore: Source unit persistence for retries and reconciliation
//   - IngestionStore: Ingestion status persistence
//   - Classifier: Assigns a category to a unit
//   - Chunker: Splits a classified unit into chunks
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - LLMService: Answer generation. Without it, ask returns citations only.
//   - TextExtractor: PDF text extraction. Without it, PDF intake is disabled.
//   - MailFetcher: Mail transport. Without it, mail sync is disabled.
//   - SyncStateStore, SchedulerStore: Background sync state.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
