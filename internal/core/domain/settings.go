package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies a local model server for embeddings or generation.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is any server speaking the OpenAI HTTP API
	// (llama.cpp server, LM Studio, vLLM).
	AIProviderOpenAI AIProvider = "openai"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	return p == AIProviderOllama || p == AIProviderOpenAI
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI-compatible server (local)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// BatchSize is the number of texts per embedding call.
	BatchSize int

	// Timeout bounds a single embedding call.
	Timeout time.Duration

	// Normalize L2-normalises vectors before storage and search.
	Normalize bool

	// Generation is appended to the embedder version. Bump it to force
	// re-ingestion without changing the model.
	Generation string
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	return e.Provider.IsValid() && e.Model != ""
}

// LLMSettings holds generation provider configuration.
type LLMSettings struct {
	// Provider is the generation service provider.
	Provider AIProvider

	// Model is the generation model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds a single generation call.
	Timeout time.Duration

	// Temperature and MaxTokens tune generation.
	Temperature float64
	MaxTokens   int
}

// IsConfigured returns true if the generation provider is set up.
func (l LLMSettings) IsConfigured() bool {
	return l.Provider.IsValid() && l.Model != ""
}

// RetrievalSettings holds query-time ranking configuration.
type RetrievalSettings struct {
	// Floor is the minimum similarity a chunk needs to be cited.
	Floor float64

	// MaxResults is the default number of citations.
	MaxResults int

	// Confidence holds the confidence bucket bounds.
	Confidence ConfidenceThresholds

	// FollowUpBoost is added to the ranking score of chunks from sources
	// cited in the previous turn. Reported scores are unchanged.
	FollowUpBoost float64
}

// IngestionSettings holds pipeline configuration.
type IngestionSettings struct {
	// MaxUnitBytes rejects larger units with ErrInvalidInput.
	MaxUnitBytes int

	// MinContentLength is the minimum number of non-space bytes a unit
	// needs to produce chunks.
	MinContentLength int

	// Workers is the task queue worker count.
	Workers int

	// QueueSize is the task queue buffer size.
	QueueSize int

	// InboxDir is watched for new PDFs by the watch command.
	InboxDir string
}

// ClassifierSettings holds classification thresholds.
type ClassifierSettings struct {
	// FinancialCurrencyPerPage is the currency amounts per page that
	// make a document financial on their own.
	FinancialCurrencyPerPage float64

	// FinancialDatePerPage is the dates per page that, with half the
	// currency threshold, make a document financial.
	FinancialDatePerPage float64

	// TabularRatio is the share of tabular lines that, with half the
	// currency threshold, make a document financial.
	TabularRatio float64

	// LongFormMinPages is the minimum page count for long_form.
	LongFormMinPages int

	// LongFormMaxCurrencyPerPage is the maximum currency density for long_form.
	LongFormMaxCurrencyPerPage float64

	// LowConfidence marks classifications as uncertain below this value.
	LowConfidence float64

	// RulesPath is an optional YAML file with email rule lists.
	RulesPath string
}

// ChunkPolicy defines how a category is split into chunks.
// Sizes are in bytes of UTF-8 text.
type ChunkPolicy struct {
	// Size is the target chunk span.
	Size int

	// Overlap is the span repeated at the start of the next chunk.
	Overlap int

	// MinSize is the floor below which a chunk is merged into its predecessor.
	MinSize int
}

// Valid reports whether the policy can make progress.
func (p ChunkPolicy) Valid() bool {
	return p.Size > 0 && p.Overlap >= 0 && p.Overlap < p.Size && p.MinSize >= 0 && p.MinSize < p.Size
}

// IndexBackend selects the vector index adapter.
type IndexBackend string

// Available index backends.
const (
	IndexBackendSQLite  IndexBackend = "sqlite"
	IndexBackendMemory  IndexBackend = "memory"
	IndexBackendChromem IndexBackend = "chromem"
)

// IsValid returns true if the backend is recognised.
func (b IndexBackend) IsValid() bool {
	switch b {
	case IndexBackendSQLite, IndexBackendMemory, IndexBackendChromem:
		return true
	default:
		return false
	}
}

// IndexSettings holds vector index configuration.
type IndexSettings struct {
	// Backend selects the adapter.
	Backend IndexBackend

	// Path is the chromem persistence directory.
	Path string
}

// MailSettings holds Gmail configuration.
type MailSettings struct {
	// Accounts lists the mail accounts synced by the scheduler.
	Accounts []string

	// CredentialsPath is the OAuth client credentials JSON file.
	CredentialsPath string

	// TokenPath is the directory holding one OAuth token file per account.
	TokenPath string

	// FetchLimit bounds the messages fetched per sync.
	FetchLimit int
}

// Settings holds all application settings.
type Settings struct {
	Embedding  EmbeddingSettings
	LLM        LLMSettings
	Retrieval  RetrievalSettings
	Ingestion  IngestionSettings
	Classifier ClassifierSettings
	Chunking   map[Category]ChunkPolicy
	Index      IndexSettings
	Mail       MailSettings
	Scheduler  SchedulerConfig
}

// DefaultSettings returns settings with sensible defaults for a local
// Ollama installation.
func DefaultSettings() Settings {
	return Settings{
		Embedding: EmbeddingSettings{
			Provider:  AIProviderOllama,
			Model:     DefaultEmbeddingModels()[AIProviderOllama],
			BaseURL:   "http://localhost:11434",
			BatchSize: 16,
			Timeout:   30 * time.Second,
			Normalize: true,
		},
		LLM: LLMSettings{
			Provider:    AIProviderOllama,
			Model:       DefaultLLMModels()[AIProviderOllama],
			BaseURL:     "http://localhost:11434",
			Timeout:     120 * time.Second,
			Temperature: 0.1,
			MaxTokens:   1024,
		},
		Retrieval: RetrievalSettings{
			Floor:         0.35,
			MaxResults:    DefaultMaxResults,
			Confidence:    DefaultConfidenceThresholds(),
			FollowUpBoost: 0.05,
		},
		Ingestion: IngestionSettings{
			MaxUnitBytes:     DefaultMaxUnitBytes,
			MinContentLength: 20,
			Workers:          2,
			QueueSize:        64,
		},
		Classifier: DefaultClassifierSettings(),
		Chunking:   DefaultChunkPolicies(),
		Index: IndexSettings{
			Backend: IndexBackendSQLite,
		},
		Mail: MailSettings{
			FetchLimit: 100,
		},
		Scheduler: DefaultSchedulerConfig(),
	}
}

// DefaultClassifierSettings returns the default classification thresholds.
func DefaultClassifierSettings() ClassifierSettings {
	return ClassifierSettings{
		FinancialCurrencyPerPage:   5,
		FinancialDatePerPage:       3,
		TabularRatio:               0.3,
		LongFormMinPages:           10,
		LongFormMaxCurrencyPerPage: 1,
		LowConfidence:              0.5,
	}
}

// DefaultChunkPolicies returns the policy table keyed by category.
// Financial content gets small spans so amounts stay with their labels;
// long-form content gets large spans with large overlap.
func DefaultChunkPolicies() map[Category]ChunkPolicy {
	small := ChunkPolicy{Size: 400, Overlap: 40, MinSize: 60}
	medium := ChunkPolicy{Size: 1000, Overlap: 200, MinSize: 120}
	return map[Category]ChunkPolicy{
		CategoryFinancial:     small,
		CategoryTransactional: small,
		CategoryGeneric:       medium,
		CategoryBusiness:      medium,
		CategoryPersonal:      medium,
		CategoryPromotional:   {Size: 800, Overlap: 100, MinSize: 120},
		CategoryLongForm:      {Size: 2000, Overlap: 400, MinSize: 200},
	}
}

// AllAIProviders returns every supported provider.
func AllAIProviders() []AIProvider {
	return []AIProvider{AIProviderOllama, AIProviderOpenAI}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "nomic-embed-text-v1.5",
	}
}

// DefaultLLMModels returns default models for each generation provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "llama3.2",
		AIProviderOpenAI: "llama-3.2-3b-instruct",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		"nomic-embed-text":      768,
		"nomic-embed-text-v1.5": 768,
		"mxbai-embed-large":     1024,
		"all-minilm":            384,
		"bge-m3":                1024,
	}
}
