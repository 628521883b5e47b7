package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider   = "embedding.provider"
	keyEmbedModel      = "embedding.model"
	keyEmbedBaseURL    = "embedding.base_url"
	keyEmbedAPIKey     = "embedding.api_key"
	keyEmbedBatchSize  = "embedding.batch_size"
	keyEmbedTimeout    = "embedding.timeout"
	keyEmbedNormalize  = "embedding.normalize"
	keyEmbedGeneration = "embedding.generation"

	keyLLMProvider    = "llm.provider"
	keyLLMModel       = "llm.model"
	keyLLMBaseURL     = "llm.base_url"
	keyLLMAPIKey      = "llm.api_key"
	keyLLMTimeout     = "llm.timeout"
	keyLLMTemperature = "llm.temperature"
	keyLLMMaxTokens   = "llm.max_tokens"

	keyFloor            = "retrieval.floor"
	keyMaxResults       = "retrieval.max_results"
	keyConfidenceHigh   = "retrieval.confidence_high"
	keyConfidenceMedium = "retrieval.confidence_medium"
	keyFollowUpBoost    = "retrieval.follow_up_boost"

	keyMaxUnitBytes     = "ingestion.max_unit_bytes"
	keyMinContentLength = "ingestion.min_content_length"
	keyWorkers          = "ingestion.workers"
	keyQueueSize        = "ingestion.queue_size"
	keyInboxDir         = "ingestion.inbox_dir"

	keyFinancialCurrency = "classifier.financial_currency_per_page"
	keyFinancialDates    = "classifier.financial_date_per_page"
	keyTabularRatio      = "classifier.tabular_ratio"
	keyLongFormPages     = "classifier.long_form_min_pages"
	keyLongFormCurrency  = "classifier.long_form_max_currency_per_page"
	keyLowConfidence     = "classifier.low_confidence"
	keyRulesPath         = "classifier.rules_path"

	keyIndexBackend = "index.backend"
	keyIndexPath    = "index.path"

	keyMailAccounts    = "mail.accounts"
	keyMailCredentials = "mail.credentials_path"
	keyMailToken       = "mail.token_path"
	keyMailFetchLimit  = "mail.fetch_limit"

	keySchedulerEnabled = "scheduler.enabled"

	chunkingPrefix = "chunking."
)

// keyKind is the value type stored under a key.
type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindFloat
	kindBool
	kindDuration
	kindList
)

// schedulerTaskKeys maps task IDs to their config table (underscore version for TOML).
var schedulerTaskKeys = map[string]string{
	domain.TaskIDMailSync:  "mail_sync",
	domain.TaskIDReconcile: "reconcile",
}

// knownKeys returns every settable key and its kind.
func knownKeys() map[string]keyKind {
	keys := map[string]keyKind{
		keyEmbedProvider: kindString, keyEmbedModel: kindString, keyEmbedBaseURL: kindString,
		keyEmbedAPIKey: kindString, keyEmbedBatchSize: kindInt, keyEmbedTimeout: kindDuration,
		keyEmbedNormalize: kindBool, keyEmbedGeneration: kindString,

		keyLLMProvider: kindString, keyLLMModel: kindString, keyLLMBaseURL: kindString,
		keyLLMAPIKey: kindString, keyLLMTimeout: kindDuration, keyLLMTemperature: kindFloat,
		keyLLMMaxTokens: kindInt,

		keyFloor: kindFloat, keyMaxResults: kindInt, keyConfidenceHigh: kindFloat,
		keyConfidenceMedium: kindFloat, keyFollowUpBoost: kindFloat,

		keyMaxUnitBytes: kindInt, keyMinContentLength: kindInt, keyWorkers: kindInt,
		keyQueueSize: kindInt, keyInboxDir: kindString,

		keyFinancialCurrency: kindFloat, keyFinancialDates: kindFloat, keyTabularRatio: kindFloat,
		keyLongFormPages: kindInt, keyLongFormCurrency: kindFloat, keyLowConfidence: kindFloat,
		keyRulesPath: kindString,

		keyIndexBackend: kindString, keyIndexPath: kindString,

		keyMailAccounts: kindList, keyMailCredentials: kindString, keyMailToken: kindString,
		keyMailFetchLimit: kindInt,

		keySchedulerEnabled: kindBool,
	}
	for _, table := range schedulerTaskKeys {
		keys["scheduler."+table+".enabled"] = kindBool
		keys["scheduler."+table+".interval"] = kindDuration
	}
	for _, c := range domain.AllCategories() {
		prefix := chunkingPrefix + string(c) + "."
		keys[prefix+"size"] = kindInt
		keys[prefix+"overlap"] = kindInt
		keys[prefix+"min_size"] = kindInt
	}
	return keys
}

// SettingKeys returns every settable key in sorted order.
func SettingKeys() []string {
	keys := knownKeys()
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	overlays    []driven.SettingsOverlay
}

// NewSettingsService creates a new settings service. Overlays are applied
// in order after the config file, so later ones win.
func NewSettingsService(
	configStore driven.ConfigStore,
	aiValidator driven.AIConfigValidator,
	overlays ...driven.SettingsOverlay,
) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		overlays:    overlays,
	}
}

// Get resolves current settings from configuration, falling back to defaults.
func (s *SettingsService) Get() (*domain.Settings, error) {
	settings := domain.DefaultSettings()

	e := &settings.Embedding
	e.Provider = s.getProvider(keyEmbedProvider, e.Provider)
	e.Model = s.getString(keyEmbedModel, e.Model)
	e.BaseURL = s.getString(keyEmbedBaseURL, e.BaseURL)
	e.APIKey = s.configStore.GetString(keyEmbedAPIKey)
	e.BatchSize = s.getInt(keyEmbedBatchSize, e.BatchSize)
	e.Timeout = s.getDuration(keyEmbedTimeout, e.Timeout)
	e.Normalize = s.getBool(keyEmbedNormalize, e.Normalize)
	e.Generation = s.configStore.GetString(keyEmbedGeneration)

	l := &settings.LLM
	l.Provider = s.getProvider(keyLLMProvider, l.Provider)
	l.Model = s.getString(keyLLMModel, l.Model)
	l.BaseURL = s.getString(keyLLMBaseURL, l.BaseURL)
	l.APIKey = s.configStore.GetString(keyLLMAPIKey)
	l.Timeout = s.getDuration(keyLLMTimeout, l.Timeout)
	l.Temperature = s.getFloat(keyLLMTemperature, l.Temperature)
	l.MaxTokens = s.getInt(keyLLMMaxTokens, l.MaxTokens)

	r := &settings.Retrieval
	r.Floor = s.getFloat(keyFloor, r.Floor)
	r.MaxResults = s.getInt(keyMaxResults, r.MaxResults)
	r.Confidence.High = s.getFloat(keyConfidenceHigh, r.Confidence.High)
	r.Confidence.Medium = s.getFloat(keyConfidenceMedium, r.Confidence.Medium)
	r.FollowUpBoost = s.getFloat(keyFollowUpBoost, r.FollowUpBoost)

	in := &settings.Ingestion
	in.MaxUnitBytes = s.getInt(keyMaxUnitBytes, in.MaxUnitBytes)
	in.MinContentLength = s.getInt(keyMinContentLength, in.MinContentLength)
	in.Workers = s.getInt(keyWorkers, in.Workers)
	in.QueueSize = s.getInt(keyQueueSize, in.QueueSize)
	in.InboxDir = s.getString(keyInboxDir, in.InboxDir)

	c := &settings.Classifier
	c.FinancialCurrencyPerPage = s.getFloat(keyFinancialCurrency, c.FinancialCurrencyPerPage)
	c.FinancialDatePerPage = s.getFloat(keyFinancialDates, c.FinancialDatePerPage)
	c.TabularRatio = s.getFloat(keyTabularRatio, c.TabularRatio)
	c.LongFormMinPages = s.getInt(keyLongFormPages, c.LongFormMinPages)
	c.LongFormMaxCurrencyPerPage = s.getFloat(keyLongFormCurrency, c.LongFormMaxCurrencyPerPage)
	c.LowConfidence = s.getFloat(keyLowConfidence, c.LowConfidence)
	c.RulesPath = s.getString(keyRulesPath, c.RulesPath)

	for category, policy := range settings.Chunking {
		prefix := chunkingPrefix + string(category) + "."
		policy.Size = s.getInt(prefix+"size", policy.Size)
		policy.Overlap = s.getInt(prefix+"overlap", policy.Overlap)
		policy.MinSize = s.getInt(prefix+"min_size", policy.MinSize)
		settings.Chunking[category] = policy
	}

	if backend := domain.IndexBackend(s.configStore.GetString(keyIndexBackend)); backend.IsValid() {
		settings.Index.Backend = backend
	}
	settings.Index.Path = s.getString(keyIndexPath, settings.Index.Path)

	m := &settings.Mail
	if accounts := s.configStore.GetStringSlice(keyMailAccounts); len(accounts) > 0 {
		m.Accounts = accounts
	}
	m.CredentialsPath = s.getString(keyMailCredentials, m.CredentialsPath)
	m.TokenPath = s.getString(keyMailToken, m.TokenPath)
	m.FetchLimit = s.getInt(keyMailFetchLimit, m.FetchLimit)

	settings.Scheduler = s.schedulerConfig()

	for _, o := range s.overlays {
		o.Apply(&settings)
	}

	// A configured account switches mail sync on unless the user turned it off.
	if len(settings.Mail.Accounts) > 0 {
		if _, set := s.configStore.Get("scheduler.mail_sync.enabled"); !set {
			cfg := settings.Scheduler.TaskConfigs[domain.TaskIDMailSync]
			cfg.Enabled = true
			settings.Scheduler.TaskConfigs[domain.TaskIDMailSync] = cfg
		}
	}

	return &settings, nil
}

// Set stores a single configuration key. String values are converted to
// the key's type so CLI input is persisted as typed TOML.
func (s *SettingsService) Set(key string, value any) error {
	kind, ok := knownKeys()[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	str, isString := value.(string)
	if !isString {
		return s.configStore.Set(key, value)
	}

	typed, err := parseValue(kind, str)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, key, err)
	}
	if err := s.configStore.Set(key, typed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func parseValue(kind keyKind, str string) (any, error) {
	switch kind {
	case kindInt:
		return strconv.Atoi(str)
	case kindFloat:
		return strconv.ParseFloat(str, 64)
	case kindBool:
		return strconv.ParseBool(str)
	case kindDuration:
		d, err := time.ParseDuration(str)
		if err != nil {
			return nil, err
		}
		return d, nil
	case kindList:
		var items []string
		for _, item := range strings.Split(str, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	default:
		return str, nil
	}
}

// Keys returns every settable key in sorted order.
func (s *SettingsService) Keys() []string {
	return SettingKeys()
}

// Validate checks the settings are usable.
//
//nolint:gocyclo // One check per setting group.
func (s *SettingsService) Validate(settings *domain.Settings) error {
	if settings == nil {
		return fmt.Errorf("%w: settings are required", domain.ErrInvalidInput)
	}

	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !settings.Embedding.IsConfigured() {
		add("embedding provider %q with model %q is not usable", settings.Embedding.Provider, settings.Embedding.Model)
	}
	if settings.Embedding.BatchSize <= 0 {
		add("embedding batch size must be positive")
	}
	if !settings.LLM.IsConfigured() {
		add("llm provider %q with model %q is not usable", settings.LLM.Provider, settings.LLM.Model)
	}

	r := settings.Retrieval
	if r.Floor < 0 || r.Floor > 1 {
		add("retrieval floor %.2f is outside [0, 1]", r.Floor)
	}
	if r.MaxResults <= 0 {
		add("retrieval max results must be positive")
	}
	if r.Confidence.Medium > r.Confidence.High {
		add("confidence medium bound %.2f is above high bound %.2f", r.Confidence.Medium, r.Confidence.High)
	}

	if settings.Ingestion.MaxUnitBytes <= 0 {
		add("ingestion max unit bytes must be positive")
	}

	for _, c := range domain.AllCategories() {
		if p, ok := settings.Chunking[c]; !ok || !p.Valid() {
			add("chunk policy for %s is invalid", c)
		}
	}

	if !settings.Index.Backend.IsValid() {
		add("unknown index backend %q", settings.Index.Backend)
	}

	for id, cfg := range settings.Scheduler.TaskConfigs {
		if cfg.Enabled && cfg.Interval <= 0 {
			add("scheduler task %s needs a positive interval", id)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// schedulerConfig returns the scheduler configuration.
// Returns default configuration if nothing is configured.
func (s *SettingsService) schedulerConfig() domain.SchedulerConfig {
	defaults := domain.DefaultSchedulerConfig()

	// Master switch
	if _, exists := s.configStore.Get(keySchedulerEnabled); exists {
		defaults.Enabled = s.configStore.GetBool(keySchedulerEnabled)
	}

	for taskID, table := range schedulerTaskKeys {
		prefix := "scheduler." + table + "."
		taskCfg := defaults.TaskConfigs[taskID]
		taskCfg.Enabled = s.getBool(prefix+"enabled", taskCfg.Enabled)
		taskCfg.Interval = s.getDuration(prefix+"interval", taskCfg.Interval)
		defaults.TaskConfigs[taskID] = taskCfg
	}

	return defaults
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetDuration(key)
	if val <= 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}
