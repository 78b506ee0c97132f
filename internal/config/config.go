package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/radlabel/internal/providers"
)

// EnvPrefix prefixes environment overrides, e.g. RADLABEL_LABELING_PROTOCOL.
const EnvPrefix = "RADLABEL"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v         *viper.Viper
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string, searchPaths ...string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    slog.Default(),
	}

	if err := cm.initViper(cfgFile, searchPaths); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// SetLogger sets the logger used for reload notices.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string, searchPaths []string) error {
	v := cm.v
	defaults := DefaultConfig()
	v.SetDefault("llm_providers", defaults.LLMProviders)

	// Labeling keys are set one by one so env overrides can reach them.
	l := defaults.Labeling
	v.SetDefault("labeling.provider", l.Provider)
	v.SetDefault("labeling.protocol", l.Protocol)
	v.SetDefault("labeling.call_delay", l.CallDelay)
	v.SetDefault("labeling.finding_delay", l.FindingDelay)
	v.SetDefault("labeling.record_delay", l.RecordDelay)
	v.SetDefault("labeling.max_attempts", l.MaxAttempts)
	v.SetDefault("labeling.retry_delay", l.RetryDelay)
	v.SetDefault("labeling.prompt_path", l.PromptPath)
	v.SetDefault("labeling.mention_prompt_path", l.MentionPromptPath)
	v.SetDefault("labeling.finding_prompt_path", l.FindingPromptPath)

	// Environment variables with RADLABEL_ prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		for _, p := range searchPaths {
			v.AddConfigPath(p)
		}
		v.AddConfigPath("$HOME/.radlabel")
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func (cm *Manager) ConfigFileUsed() string {
	return cm.v.ConfigFileUsed()
}

// Set overrides a single key (flags take precedence over file and env) and
// reloads the configuration.
func (cm *Manager) Set(key string, value any) error {
	cm.v.Set(key, value)
	cfg, err := cm.load()
	if err != nil {
		return err
	}
	cm.mu.Lock()
	cm.config = cfg
	cm.mu.Unlock()
	return nil
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. A changed file that
// fails to parse or validate is ignored and the previous config stays active.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err == nil {
			err = cfg.Validate()
		}

		cm.mu.Lock()
		logger := cm.logger
		if err != nil {
			cm.mu.Unlock()
			logger.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		logger.Info("config reloaded", "file", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		LLMProviders: make(map[string]providers.LLMProviderConfig),
	}

	for name, llm := range c.LLMProviders {
		cfg.LLMProviders[name] = providers.LLMProviderConfig{
			Type:        llm.Type,
			Model:       llm.Model,
			APIKey:      ResolveEnvVars(llm.APIKey),
			BaseURL:     llm.BaseURL,
			Temperature: llm.Temperature,
			TopP:        llm.TopP,
			TopK:        llm.TopK,
			MaxTokens:   llm.MaxTokens,
			MaxRetries:  llm.MaxRetries,
			Timeout:     llm.Timeout,
			Enabled:     llm.Enabled,
		}
	}

	return cfg
}

// fileConfig mirrors Config with durations spelled as strings ("1s") so the
// written file reads naturally and round-trips through viper.
type fileConfig struct {
	LLMProviders map[string]fileProvider `yaml:"llm_providers"`
	Labeling     fileLabeling            `yaml:"labeling"`
}

type fileProvider struct {
	Type        string  `yaml:"type"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	TopP        float64 `yaml:"top_p,omitempty"`
	TopK        float64 `yaml:"top_k,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	MaxRetries  int     `yaml:"max_retries,omitempty"`
	Timeout     string  `yaml:"timeout,omitempty"`
	Enabled     bool    `yaml:"enabled"`
}

type fileLabeling struct {
	Provider          string `yaml:"provider"`
	Protocol          string `yaml:"protocol"`
	CallDelay         string `yaml:"call_delay"`
	FindingDelay      string `yaml:"finding_delay"`
	RecordDelay       string `yaml:"record_delay"`
	MaxAttempts       int    `yaml:"max_attempts"`
	RetryDelay        string `yaml:"retry_delay"`
	PromptPath        string `yaml:"prompt_path"`
	MentionPromptPath string `yaml:"mention_prompt_path"`
	FindingPromptPath string `yaml:"finding_prompt_path"`
}

func toFile(c *Config) fileConfig {
	dur := func(d time.Duration) string {
		if d == 0 {
			return "0s"
		}
		return d.String()
	}

	out := fileConfig{LLMProviders: make(map[string]fileProvider, len(c.LLMProviders))}
	for name, p := range c.LLMProviders {
		fp := fileProvider{
			Type:        p.Type,
			Model:       p.Model,
			APIKey:      p.APIKey,
			BaseURL:     p.BaseURL,
			Temperature: p.Temperature,
			TopP:        p.TopP,
			TopK:        p.TopK,
			MaxTokens:   p.MaxTokens,
			MaxRetries:  p.MaxRetries,
			Enabled:     p.Enabled,
		}
		if p.Timeout > 0 {
			fp.Timeout = dur(p.Timeout)
		}
		out.LLMProviders[name] = fp
	}

	l := c.Labeling
	out.Labeling = fileLabeling{
		Provider:          l.Provider,
		Protocol:          l.Protocol,
		CallDelay:         dur(l.CallDelay),
		FindingDelay:      dur(l.FindingDelay),
		RecordDelay:       dur(l.RecordDelay),
		MaxAttempts:       l.MaxAttempts,
		RetryDelay:        dur(l.RetryDelay),
		PromptPath:        l.PromptPath,
		MentionPromptPath: l.MentionPromptPath,
		FindingPromptPath: l.FindingPromptPath,
	}
	return out
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(toFile(DefaultConfig()))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# radlabel configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export GEMINI_API_KEY=xxx OPENAI_API_KEY=xxx OPENROUTER_API_KEY=xxx
# Any labeling key can be overridden from the environment, e.g. RADLABEL_LABELING_PROTOCOL=single

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
