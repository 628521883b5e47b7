package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vellum/internal/adapters/driven/config/file"
	"github.com/custodia-labs/vellum/internal/core/domain"
)

func newTestConfigStore(t *testing.T) *file.ConfigStore {
	t.Helper()
	store, err := file.NewConfigStore(t.TempDir())
	require.NoError(t, err)
	return store
}

// overlayFunc adapts a function to driven.SettingsOverlay.
type overlayFunc func(*domain.Settings)

func (f overlayFunc) Apply(s *domain.Settings) { f(s) }

func TestNewSettingsService(t *testing.T) {
	service := NewSettingsService(newTestConfigStore(t), nil)

	require.NotNil(t, service)
}

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	service := NewSettingsService(newTestConfigStore(t), nil)

	settings, err := service.Get()

	require.NoError(t, err)
	require.NotNil(t, settings)

	defaults := domain.DefaultSettings()
	assert.Equal(t, defaults.Embedding, settings.Embedding)
	assert.Equal(t, defaults.LLM, settings.LLM)
	assert.Equal(t, defaults.Retrieval, settings.Retrieval)
	assert.Equal(t, defaults.Chunking, settings.Chunking)
	assert.Equal(t, defaults.Scheduler, settings.Scheduler)
	assert.NoError(t, service.Validate(settings))
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	store := newTestConfigStore(t)
	require.NoError(t, store.Set("embedding.provider", "openai"))
	require.NoError(t, store.Set("embedding.model", "bge-m3"))
	require.NoError(t, store.Set("embedding.timeout", "45s"))
	require.NoError(t, store.Set("retrieval.floor", 0.5))
	require.NoError(t, store.Set("retrieval.max_results", 3))
	require.NoError(t, store.Set("chunking.financial.size", 300))
	require.NoError(t, store.Set("index.backend", "chromem"))
	require.NoError(t, store.Set("scheduler.reconcile.interval", "2h"))

	service := NewSettingsService(store, nil)

	settings, err := service.Get()

	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderOpenAI, settings.Embedding.Provider)
	assert.Equal(t, "bge-m3", settings.Embedding.Model)
	assert.Equal(t, 45*time.Second, settings.Embedding.Timeout)
	assert.InDelta(t, 0.5, settings.Retrieval.Floor, 1e-9)
	assert.Equal(t, 3, settings.Retrieval.MaxResults)
	assert.Equal(t, 300, settings.Chunking[domain.CategoryFinancial].Size)
	assert.Equal(t, 40, settings.Chunking[domain.CategoryFinancial].Overlap)
	assert.Equal(t, domain.IndexBackendChromem, settings.Index.Backend)
	assert.Equal(t, 2*time.Hour, settings.Scheduler.TaskConfigs[domain.TaskIDReconcile].Interval)
}

func TestSettingsService_Get_InvalidValuesReturnDefaults(t *testing.T) {
	store := newTestConfigStore(t)
	require.NoError(t, store.Set("embedding.provider", "invalid_provider"))
	require.NoError(t, store.Set("index.backend", "postgres"))

	service := NewSettingsService(store, nil)

	settings, err := service.Get()

	require.NoError(t, err)
	defaults := domain.DefaultSettings()
	assert.Equal(t, defaults.Embedding.Provider, settings.Embedding.Provider)
	assert.Equal(t, defaults.Index.Backend, settings.Index.Backend)
}

func TestSettingsService_Get_ZeroFloorIsKept(t *testing.T) {
	store := newTestConfigStore(t)
	require.NoError(t, store.Set("retrieval.floor", 0.0))

	settings, err := NewSettingsService(store, nil).Get()

	require.NoError(t, err)
	assert.Zero(t, settings.Retrieval.Floor)
}

func TestSettingsService_Get_MailAccountEnablesSync(t *testing.T) {
	tests := []struct {
		name     string
		explicit any
		want     bool
	}{
		{"implicit", nil, true},
		{"explicitly off", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestConfigStore(t)
			require.NoError(t, store.Set("mail.accounts", []string{"me@example.com"}))
			if tt.explicit != nil {
				require.NoError(t, store.Set("scheduler.mail_sync.enabled", tt.explicit))
			}

			settings, err := NewSettingsService(store, nil).Get()

			require.NoError(t, err)
			assert.Equal(t, []string{"me@example.com"}, settings.Mail.Accounts)
			assert.Equal(t, tt.want, settings.Scheduler.TaskConfigs[domain.TaskIDMailSync].Enabled)
		})
	}
}

func TestSettingsService_Get_OverlaysWin(t *testing.T) {
	store := newTestConfigStore(t)
	require.NoError(t, store.Set("llm.model", "from-file"))

	first := overlayFunc(func(s *domain.Settings) { s.LLM.Model = "from-env" })
	second := overlayFunc(func(s *domain.Settings) { s.Retrieval.MaxResults = 9 })

	settings, err := NewSettingsService(store, nil, first, second).Get()

	require.NoError(t, err)
	assert.Equal(t, "from-env", settings.LLM.Model)
	assert.Equal(t, 9, settings.Retrieval.MaxResults)
}

func TestSettingsService_Set_ConvertsStrings(t *testing.T) {
	store := newTestConfigStore(t)
	service := NewSettingsService(store, nil)

	require.NoError(t, service.Set("retrieval.floor", "0.42"))
	require.NoError(t, service.Set("retrieval.max_results", "7"))
	require.NoError(t, service.Set("embedding.normalize", "false"))
	require.NoError(t, service.Set("llm.timeout", "90s"))
	require.NoError(t, service.Set("mail.accounts", "a@example.com, b@example.com"))
	require.NoError(t, service.Set("embedding.model", "all-minilm"))

	settings, err := service.Get()
	require.NoError(t, err)
	assert.InDelta(t, 0.42, settings.Retrieval.Floor, 1e-9)
	assert.Equal(t, 7, settings.Retrieval.MaxResults)
	assert.False(t, settings.Embedding.Normalize)
	assert.Equal(t, 90*time.Second, settings.LLM.Timeout)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, settings.Mail.Accounts)
	assert.Equal(t, "all-minilm", settings.Embedding.Model)

	// Typed values survive a reload from disk.
	reloaded, err := file.NewConfigStore(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Equal(t, 7, reloaded.GetInt("retrieval.max_results"))
}

func TestSettingsService_Set_Errors(t *testing.T) {
	service := NewSettingsService(newTestConfigStore(t), nil)

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown key", "search.mode", "hybrid"},
		{"bad int", "retrieval.max_results", "many"},
		{"bad float", "retrieval.floor", "high"},
		{"bad bool", "embedding.normalize", "perhaps"},
		{"bad duration", "llm.timeout", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.Set(tt.key, tt.value)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestSettingKeys(t *testing.T) {
	keys := SettingKeys()

	assert.Contains(t, keys, "embedding.model")
	assert.Contains(t, keys, "chunking.long_form.overlap")
	assert.Contains(t, keys, "scheduler.mail_sync.interval")
	assert.IsIncreasing(t, keys)
}

func TestSettingsService_Validate(t *testing.T) {
	service := NewSettingsService(newTestConfigStore(t), nil)

	tests := []struct {
		name   string
		mutate func(*domain.Settings)
		want   string
	}{
		{"no embedding model", func(s *domain.Settings) { s.Embedding.Model = "" }, "embedding provider"},
		{"bad provider", func(s *domain.Settings) { s.LLM.Provider = "bard" }, "llm provider"},
		{"floor out of range", func(s *domain.Settings) { s.Retrieval.Floor = 1.5 }, "floor"},
		{"inverted buckets", func(s *domain.Settings) { s.Retrieval.Confidence.Medium = 0.9 }, "confidence"},
		{"zero results", func(s *domain.Settings) { s.Retrieval.MaxResults = 0 }, "max results"},
		{"overlap too large", func(s *domain.Settings) {
			s.Chunking[domain.CategoryGeneric] = domain.ChunkPolicy{Size: 100, Overlap: 100}
		}, "generic"},
		{"missing policy", func(s *domain.Settings) { delete(s.Chunking, domain.CategoryPersonal) }, "personal"},
		{"bad backend", func(s *domain.Settings) { s.Index.Backend = "redis" }, "backend"},
		{"enabled task without interval", func(s *domain.Settings) {
			s.Scheduler.TaskConfigs[domain.TaskIDReconcile] = domain.TaskConfig{Enabled: true}
		}, domain.TaskIDReconcile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := domain.DefaultSettings()
			tt.mutate(&settings)

			err := service.Validate(&settings)

			require.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.ErrorIs(t, service.Validate(nil), domain.ErrInvalidInput)
}

// Mock AIConfigValidator for testing
type mockAIConfigValidator struct {
	embedErr error
	llmErr   error
}

func (m *mockAIConfigValidator) ValidateEmbedding(_ *domain.EmbeddingSettings) error {
	return m.embedErr
}

func (m *mockAIConfigValidator) ValidateLLM(_ *domain.LLMSettings) error {
	return m.llmErr
}

func TestSettingsService_ValidateConfig(t *testing.T) {
	store := newTestConfigStore(t)

	assert.NoError(t, NewSettingsService(store, nil).ValidateEmbeddingConfig())
	assert.NoError(t, NewSettingsService(store, nil).ValidateLLMConfig())

	ok := NewSettingsService(store, &mockAIConfigValidator{})
	assert.NoError(t, ok.ValidateEmbeddingConfig())
	assert.NoError(t, ok.ValidateLLMConfig())

	failing := NewSettingsService(store, &mockAIConfigValidator{embedErr: assert.AnError, llmErr: assert.AnError})
	assert.ErrorIs(t, failing.ValidateEmbeddingConfig(), assert.AnError)
	assert.ErrorIs(t, failing.ValidateLLMConfig(), assert.AnError)
}
