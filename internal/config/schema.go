package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Config holds radlabel configuration.
// Stored at: ~/.radlabel/config.yaml (or ./config.yaml, or --config)
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	Labeling     LabelingCfg               `mapstructure:"labeling" yaml:"labeling"`
}

// LLMProviderCfg configures a label service provider.
type LLMProviderCfg struct {
	Type        string        `mapstructure:"type" yaml:"type"`         // "gemini", "openai", "openrouter", "mock"
	Model       string        `mapstructure:"model" yaml:"model"`       // Model name
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`   // API key (supports ${ENV_VAR} syntax)
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"` // Optional endpoint override
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float64       `mapstructure:"top_p" yaml:"top_p"`
	TopK        float64       `mapstructure:"top_k" yaml:"top_k"` // Gemini only
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"` // SDK-level retries
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
}

// LabelingCfg controls the classification run.
type LabelingCfg struct {
	Provider          string        `mapstructure:"provider" yaml:"provider"`                       // Key into llm_providers
	Protocol          string        `mapstructure:"protocol" yaml:"protocol"`                       // "single" or "two-stage"
	CallDelay         time.Duration `mapstructure:"call_delay" yaml:"call_delay"`                   // Minimum spacing between calls
	FindingDelay      time.Duration `mapstructure:"finding_delay" yaml:"finding_delay"`             // Wait before each Stage B call
	RecordDelay       time.Duration `mapstructure:"record_delay" yaml:"record_delay"`               // Wait before each record
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`               // Transport attempts per call
	RetryDelay        time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`                 // Wait between attempts
	PromptPath        string        `mapstructure:"prompt_path" yaml:"prompt_path"`                 // Single-stage instruction override
	MentionPromptPath string        `mapstructure:"mention_prompt_path" yaml:"mention_prompt_path"` // Stage A template override
	FindingPromptPath string        `mapstructure:"finding_prompt_path" yaml:"finding_prompt_path"` // Stage B template override
}

// Protocol names accepted in labeling.protocol.
var validProtocols = []string{"single", "two-stage"}

// Provider types accepted in llm_providers.
var validProviderTypes = []string{"gemini", "mock", "openai", "openrouter"}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"gemini": {
				Type:        "gemini",
				Model:       "gemini-2.0-flash",
				APIKey:      "${GEMINI_API_KEY}",
				Temperature: 1,
				TopP:        0.95,
				TopK:        40,
				MaxTokens:   8192,
				Timeout:     2 * time.Minute,
				Enabled:     true,
			},
			"openai": {
				Type:        "openai",
				Model:       "gpt-4",
				APIKey:      "${OPENAI_API_KEY}",
				Temperature: 1,
				TopP:        0.95,
				MaxTokens:   1024,
				Timeout:     2 * time.Minute,
				Enabled:     true,
			},
			"openrouter": {
				Type:        "openrouter",
				Model:       "google/gemini-2.0-flash-001",
				APIKey:      "${OPENROUTER_API_KEY}",
				Temperature: 1,
				Timeout:     2 * time.Minute,
				Enabled:     false,
			},
		},
		Labeling: LabelingCfg{
			Provider:     "gemini",
			Protocol:     "two-stage",
			CallDelay:    1 * time.Second,
			FindingDelay: 3 * time.Second,
			RecordDelay:  0,
			MaxAttempts:  1,
			RetryDelay:   2 * time.Second,
		},
	}
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// ProviderNames returns every configured provider name, sorted.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.LLMProviders))
	for name := range c.LLMProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate reports configuration problems that must stop a run before the
// first record.
func (c *Config) Validate() error {
	var problems []string

	for _, name := range c.ProviderNames() {
		p := c.LLMProviders[name]
		if !contains(validProviderTypes, p.Type) {
			problems = append(problems, fmt.Sprintf("llm_providers.%s.type %q is not one of %s", name, p.Type, strings.Join(validProviderTypes, ", ")))
		}
		if p.Timeout < 0 {
			problems = append(problems, fmt.Sprintf("llm_providers.%s.timeout must not be negative", name))
		}
	}

	l := c.Labeling
	if !contains(validProtocols, strings.ToLower(l.Protocol)) {
		problems = append(problems, fmt.Sprintf("labeling.protocol %q is not one of %s", l.Protocol, strings.Join(validProtocols, ", ")))
	}
	if l.CallDelay < 0 || l.FindingDelay < 0 || l.RecordDelay < 0 || l.RetryDelay < 0 {
		problems = append(problems, "labeling delays must not be negative")
	}
	if l.MaxAttempts < 1 {
		problems = append(problems, fmt.Sprintf("labeling.max_attempts must be at least 1, got %d", l.MaxAttempts))
	}
	if p, ok := c.LLMProviders[l.Provider]; !ok {
		problems = append(problems, fmt.Sprintf("labeling.provider %q is not configured", l.Provider))
	} else if !p.Enabled {
		problems = append(problems, fmt.Sprintf("labeling.provider %q is disabled", l.Provider))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
