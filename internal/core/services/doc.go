// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Ingestion, query and account services hold the RAG pipeline; intake,
// mail sync, the task queue and the scheduler feed it.
package services
