package driven

import (
	"context"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

// LLMService generates answer text from a grounding prompt.
// The engine never places chunks of more than one owner in a prompt.
type LLMService interface {
	// Generate produces text completion for the given prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// GenerateOptions configures text generation.
type GenerateOptions struct {
	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64

	// Stop sequences that end generation.
	Stop []string
}

// AIConfigValidator checks model server settings by connecting to them.
type AIConfigValidator interface {
	// ValidateEmbedding pings the configured embedding server.
	ValidateEmbedding(config *domain.EmbeddingSettings) error

	// ValidateLLM pings the configured generation server.
	ValidateLLM(config *domain.LLMSettings) error
}
