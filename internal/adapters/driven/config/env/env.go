// Package env overlays VELLUM_* environment variables, optionally read
// from .env files, on top of file-based settings.
package env

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	goenv "github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/logger"
)

var _ driven.SettingsOverlay = (*Overrides)(nil)

// Prefix is prepended to every variable name.
const Prefix = "VELLUM_"

// Overrides holds the environment values. Zero values mean unset.
type Overrides struct {
	DataDir string `env:"DATA_DIR"`
	Owner   string `env:"OWNER"`

	EmbeddingProvider string        `env:"EMBEDDING_PROVIDER"`
	EmbeddingModel    string        `env:"EMBEDDING_MODEL"`
	EmbeddingURL      string        `env:"EMBEDDING_URL"`
	EmbeddingAPIKey   string        `env:"EMBEDDING_API_KEY"`
	EmbeddingTimeout  time.Duration `env:"EMBEDDING_TIMEOUT"`

	LLMProvider string        `env:"LLM_PROVIDER"`
	LLMModel    string        `env:"LLM_MODEL"`
	LLMURL      string        `env:"LLM_URL"`
	LLMAPIKey   string        `env:"LLM_API_KEY"`
	LLMTimeout  time.Duration `env:"LLM_TIMEOUT"`

	Floor      float64 `env:"FLOOR"`
	MaxResults int     `env:"MAX_RESULTS"`

	IndexBackend string `env:"INDEX_BACKEND"`
	InboxDir     string `env:"INBOX_DIR"`

	MailAccounts    []string `env:"MAIL_ACCOUNTS" envSeparator:","`
	MailCredentials string   `env:"MAIL_CREDENTIALS"`
}

// Load reads the given .env files, skipping missing ones, then parses
// VELLUM_* variables. Variables already set in the process environment
// win over .env files.
func Load(files ...string) (*Overrides, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
		logger.Debug("loaded environment from %s", f)
	}

	var o Overrides
	if err := goenv.ParseWithOptions(&o, goenv.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return &o, nil
}

// Apply copies every set override onto settings.
func (o *Overrides) Apply(s *domain.Settings) {
	setString(&s.Embedding.Model, o.EmbeddingModel)
	setString(&s.Embedding.BaseURL, o.EmbeddingURL)
	setString(&s.Embedding.APIKey, o.EmbeddingAPIKey)
	if o.EmbeddingProvider != "" {
		s.Embedding.Provider = domain.AIProvider(o.EmbeddingProvider)
	}
	if o.EmbeddingTimeout > 0 {
		s.Embedding.Timeout = o.EmbeddingTimeout
	}

	setString(&s.LLM.Model, o.LLMModel)
	setString(&s.LLM.BaseURL, o.LLMURL)
	setString(&s.LLM.APIKey, o.LLMAPIKey)
	if o.LLMProvider != "" {
		s.LLM.Provider = domain.AIProvider(o.LLMProvider)
	}
	if o.LLMTimeout > 0 {
		s.LLM.Timeout = o.LLMTimeout
	}

	if o.Floor > 0 {
		s.Retrieval.Floor = o.Floor
	}
	if o.MaxResults > 0 {
		s.Retrieval.MaxResults = o.MaxResults
	}

	if o.IndexBackend != "" {
		s.Index.Backend = domain.IndexBackend(o.IndexBackend)
	}
	setString(&s.Ingestion.InboxDir, o.InboxDir)

	if len(o.MailAccounts) > 0 {
		s.Mail.Accounts = o.MailAccounts
	}
	setString(&s.Mail.CredentialsPath, o.MailCredentials)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// DotEnvFiles returns the .env files read at startup: the working
// directory first, then the data directory.
func DotEnvFiles(dataDir string) []string {
	files := []string{".env"}
	if dataDir != "" {
		files = append(files, filepath.Join(dataDir, ".env"))
	}
	return files
}
