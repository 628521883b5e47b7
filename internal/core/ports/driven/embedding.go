package driven

import "context"

// EmbeddingService generates vector embeddings from text.
//
// Implementations talk to a local model server:
//   - Ollama (nomic-embed-text, mxbai-embed-large)
//   - OpenAI-compatible servers (llama.cpp, LM Studio, vLLM)
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	// The result is parallel to texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	// Returns 0 when unknown until the first call.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
