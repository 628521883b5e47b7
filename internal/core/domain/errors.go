package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	// Units rejected with this error never enter the pipeline.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoContent indicates a unit has no extractable text.
	// Such units are recorded as failed and are not retried.
	ErrNoContent = errors.New("no extractable content")

	// ErrUnreadableSource indicates the text extractor could not read a file.
	ErrUnreadableSource = errors.New("unreadable source")

	// Pipeline Errors.

	// ErrEmbeddingFailed indicates the embedding model timed out or errored.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrIndexWrite indicates the vector index rejected a write.
	ErrIndexWrite = errors.New("index write failed")

	// ErrDimensionMismatch indicates a vector whose length differs from
	// the dimensionality already stored in the namespace.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrOwnerMismatch indicates an attempt to mix owners in one namespace
	// or one generation prompt.
	ErrOwnerMismatch = errors.New("owner mismatch")

	// Query Errors.

	// ErrQueryTimeout indicates embedding or generation exceeded its deadline
	// while answering a question.
	ErrQueryTimeout = errors.New("query timed out")

	// Provider Errors.

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrLLMUnavailable indicates the generation service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrRateLimited indicates the mail provider rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrAuthRequired indicates the mail account has no usable token.
	ErrAuthRequired = errors.New("authentication required")
)

// IsRetryable reports whether an operation that failed with err may succeed
// when attempted again without changing its input.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEmbeddingFailed) ||
		errors.Is(err, ErrIndexWrite) ||
		errors.Is(err, ErrQueryTimeout) ||
		errors.Is(err, ErrRateLimited)
}
