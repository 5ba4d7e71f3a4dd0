// Package config holds the single configuration record supplying API keys,
// search engine identifiers, and behavioral limits. File discovery belongs
// to the caller; this package parses, defaults, env-overlays, and validates.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"litassist/internal/audit"
	"litassist/internal/logging"
)

// =============================================================================
// SETTINGS STRUCTURE
// =============================================================================

// Settings is the full configuration record.
type Settings struct {
	OpenRouter OpenRouterSettings `yaml:"openrouter"`
	OpenAI     OpenAISettings     `yaml:"openai"`
	GoogleCSE  GoogleCSESettings  `yaml:"google_cse"`
	Jina       JinaSettings       `yaml:"jina"`
	General    GeneralSettings    `yaml:"general"`
	Fetch      FetchSettings      `yaml:"fetch"`
}

// OpenRouterSettings configures the LLM gateway endpoint.
type OpenRouterSettings struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url,omitempty"`
	SiteURL  string `yaml:"site_url,omitempty"`
	SiteName string `yaml:"site_name,omitempty"`
}

// OpenAISettings supplies the embedding key/model consumed by the external
// retriever collaborator. Carried here so one record configures everything.
type OpenAISettings struct {
	APIKey         string `yaml:"api_key"`
	EmbeddingModel string `yaml:"embedding_model,omitempty"`
}

// GoogleCSESettings identifies the three Custom Search Engines used for
// citation verification: primary legal DB, comprehensive government, AustLII.
type GoogleCSESettings struct {
	APIKey             string `yaml:"api_key"`
	CSEID              string `yaml:"cse_id"`
	CSEIDComprehensive string `yaml:"cse_id_comprehensive,omitempty"`
	CSEIDAustLII       string `yaml:"cse_id_austlii,omitempty"`
}

// JinaSettings carries the optional Jina Reader key for higher rate limits.
type JinaSettings struct {
	APIKey string `yaml:"api_key,omitempty"`
}

// GeneralSettings holds process-wide behavior switches.
type GeneralSettings struct {
	HeartbeatIntervalSeconds int    `yaml:"heartbeat_interval,omitempty"`
	MaxChars                 int    `yaml:"max_chars,omitempty"`
	LogFormat                string `yaml:"log_format,omitempty"`
	UseTokenLimits           bool   `yaml:"use_token_limits,omitempty"`
	MaxTokens                int    `yaml:"max_tokens,omitempty"`
	EnableOfflineValidation  bool   `yaml:"enable_offline_validation,omitempty"`
	TestEnvironment          bool   `yaml:"test_environment,omitempty"`
}

// FetchSettings holds web-scraping timeouts and pacing.
type FetchSettings struct {
	TimeoutSeconds     int     `yaml:"timeout_seconds,omitempty"`
	JinaTimeoutSeconds int     `yaml:"jina_timeout_seconds,omitempty"`
	PDFTimeoutSeconds  int     `yaml:"pdf_timeout_seconds,omitempty"`
	CSETimeoutSeconds  int     `yaml:"cse_timeout_seconds,omitempty"`
	CSEDelaySeconds    float64 `yaml:"cse_delay_seconds,omitempty"`
	DomainDelaySeconds float64 `yaml:"domain_delay_seconds,omitempty"`
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

// Default returns a Settings record with every optional field defaulted.
func Default() Settings {
	s := Settings{}
	s.applyDefaults()
	return s
}

func (s *Settings) applyDefaults() {
	if s.OpenRouter.BaseURL == "" {
		s.OpenRouter.BaseURL = "https://openrouter.ai/api/v1"
	}
	if s.OpenAI.EmbeddingModel == "" {
		s.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if s.General.HeartbeatIntervalSeconds == 0 {
		s.General.HeartbeatIntervalSeconds = 20
	}
	if s.General.MaxChars == 0 {
		s.General.MaxChars = 200000
	}
	if s.General.LogFormat == "" {
		s.General.LogFormat = audit.FormatJSON
	}
	if s.General.MaxTokens == 0 {
		s.General.MaxTokens = 16384
	}
	if s.Fetch.TimeoutSeconds == 0 {
		s.Fetch.TimeoutSeconds = 10
	}
	if s.Fetch.JinaTimeoutSeconds == 0 {
		s.Fetch.JinaTimeoutSeconds = 15
	}
	if s.Fetch.PDFTimeoutSeconds == 0 {
		s.Fetch.PDFTimeoutSeconds = 10
	}
	if s.Fetch.CSETimeoutSeconds == 0 {
		s.Fetch.CSETimeoutSeconds = 10
	}
	if s.Fetch.CSEDelaySeconds == 0 {
		s.Fetch.CSEDelaySeconds = 1.5
	}
	if s.Fetch.DomainDelaySeconds == 0 {
		s.Fetch.DomainDelaySeconds = 0.5
	}
}

// Load parses a YAML settings document, applies defaults and the env
// overlay, and validates.
func Load(data []byte) (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	s.applyDefaults()
	s.ApplyEnv()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads and parses a YAML settings file.
func LoadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	s, err := Load(data)
	if err != nil {
		return nil, err
	}
	logging.Config("Loaded settings from %s", path)
	return s, nil
}

// FromEnv builds Settings purely from environment variables, for key-only
// setups in CI.
func FromEnv() (*Settings, error) {
	s := Default()
	s.ApplyEnv()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplyEnv overlays environment variables onto the record.
func (s *Settings) ApplyEnv() {
	setIfEnv(&s.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	setIfEnv(&s.OpenRouter.BaseURL, "OPENROUTER_BASE_URL")
	setIfEnv(&s.OpenAI.APIKey, "OPENAI_API_KEY")
	setIfEnv(&s.GoogleCSE.APIKey, "GOOGLE_CSE_API_KEY")
	setIfEnv(&s.GoogleCSE.CSEID, "GOOGLE_CSE_ID")
	setIfEnv(&s.GoogleCSE.CSEIDComprehensive, "GOOGLE_CSE_ID_COMPREHENSIVE")
	setIfEnv(&s.GoogleCSE.CSEIDAustLII, "GOOGLE_CSE_ID_AUSTLII")
	setIfEnv(&s.Jina.APIKey, "JINA_API_KEY")
	setIfEnv(&s.General.LogFormat, "LITASSIST_LOG_FORMAT")

	if v := os.Getenv("LITASSIST_CSE_DELAY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			s.Fetch.CSEDelaySeconds = f
		} else {
			logging.ConfigError("Ignoring invalid LITASSIST_CSE_DELAY=%q", v)
		}
	}
	if os.Getenv("LITASSIST_TEST_ENV") == "1" {
		s.General.TestEnvironment = true
	}
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks required keys, naming the dotted path of the first one
// missing so setup errors are actionable.
func (s *Settings) Validate() error {
	required := []struct {
		value string
		path  string
	}{
		{s.OpenRouter.APIKey, "openrouter.api_key"},
		{s.OpenAI.APIKey, "openai.api_key"},
		{s.GoogleCSE.APIKey, "google_cse.api_key"},
		{s.GoogleCSE.CSEID, "google_cse.cse_id"},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("missing required config value: %s", r.path)
		}
	}

	if s.General.LogFormat != audit.FormatJSON && s.General.LogFormat != audit.FormatMarkdown {
		return fmt.Errorf("general.log_format must be json or markdown, got %q", s.General.LogFormat)
	}
	return nil
}

// =============================================================================
// APPLICATION
// =============================================================================

// Apply wires the settings into the logging and audit subsystems for the
// given working directory.
func (s *Settings) Apply(workdir string) error {
	if err := logging.Initialize(workdir); err != nil {
		return err
	}
	if err := audit.Init(workdir); err != nil {
		return err
	}
	return audit.SetLogFormat(s.General.LogFormat)
}

// HeartbeatInterval returns the heartbeat period as a duration; zero when
// heartbeats are disabled.
func (s *Settings) HeartbeatInterval() time.Duration {
	if s.General.HeartbeatIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(s.General.HeartbeatIntervalSeconds) * time.Second
}

// CSEDelay returns the inter-call delay between CSE searches.
func (s *Settings) CSEDelay() time.Duration {
	return time.Duration(s.Fetch.CSEDelaySeconds * float64(time.Second))
}

// FetchTimeout returns the per-request timeout for direct page fetches.
func (s *Settings) FetchTimeout() time.Duration {
	return time.Duration(s.Fetch.TimeoutSeconds) * time.Second
}

// JinaTimeout returns the timeout for Jina Reader requests, longer than the
// direct timeout because the proxy renders pages.
func (s *Settings) JinaTimeout() time.Duration {
	return time.Duration(s.Fetch.JinaTimeoutSeconds) * time.Second
}

// PDFTimeout returns the timeout for PDF downloads.
func (s *Settings) PDFTimeout() time.Duration {
	return time.Duration(s.Fetch.PDFTimeoutSeconds) * time.Second
}

// CSETimeout returns the timeout for Custom Search Engine calls.
func (s *Settings) CSETimeout() time.Duration {
	return time.Duration(s.Fetch.CSETimeoutSeconds) * time.Second
}

// DomainDelay returns the per-domain web-fetch delay.
func (s *Settings) DomainDelay() time.Duration {
	return time.Duration(s.Fetch.DomainDelaySeconds * float64(time.Second))
}
