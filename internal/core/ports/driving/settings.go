package driving

import "github.com/custodia-labs/vellum/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get resolves current settings from configuration, falling back to defaults.
	Get() (*domain.Settings, error)

	// Set stores a single configuration key.
	Set(key string, value any) error

	// Keys lists the keys Set accepts.
	Keys() []string

	// Validate checks the settings are usable.
	Validate(settings *domain.Settings) error

	// ValidateEmbeddingConfig checks the embedding provider is reachable.
	ValidateEmbeddingConfig() error

	// ValidateLLMConfig checks the generation provider is reachable.
	ValidateLLMConfig() error
}
