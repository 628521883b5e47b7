package ai

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

func TestConfigValidator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	validator := NewConfigValidator()

	assert.NoError(t, validator.ValidateEmbedding(&domain.EmbeddingSettings{
		Provider: domain.AIProviderOpenAI, Model: "bge-m3", BaseURL: server.URL,
	}))
	assert.NoError(t, validator.ValidateLLM(&domain.LLMSettings{
		Provider: domain.AIProviderOpenAI, Model: "qwen2.5", BaseURL: server.URL,
	}))
}

func TestConfigValidator_Unconfigured(t *testing.T) {
	validator := NewConfigValidator()

	assert.ErrorIs(t, validator.ValidateEmbedding(nil), domain.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, validator.ValidateLLM(&domain.LLMSettings{}), domain.ErrLLMUnavailable)
}
