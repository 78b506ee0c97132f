package providers

import (
	"context"
	"os"
)

// TestConfig holds provider configurations loaded from environment variables.
// This allows tests to use the same configuration pattern as production.
type TestConfig struct {
	OpenAIAPIKey     string
	GeminiAPIKey     string
	OpenRouterAPIKey string
}

// LoadTestConfig loads provider API keys from environment variables.
// Returns a TestConfig with whatever keys are available.
func LoadTestConfig() TestConfig {
	return TestConfig{
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
	}
}

// HasAnyLLM returns true if any LLM provider is configured.
func (c TestConfig) HasAnyLLM() bool {
	return c.OpenAIAPIKey != "" || c.GeminiAPIKey != "" || c.OpenRouterAPIKey != ""
}

// ToRegistryConfig converts test config to a RegistryConfig for the provider registry.
// Only includes providers that have API keys configured.
func (c TestConfig) ToRegistryConfig() RegistryConfig {
	cfg := RegistryConfig{
		LLMProviders: make(map[string]LLMProviderConfig),
	}

	if c.OpenAIAPIKey != "" {
		cfg.LLMProviders[TypeOpenAI] = LLMProviderConfig{Type: TypeOpenAI, APIKey: c.OpenAIAPIKey, Enabled: true}
	}
	if c.GeminiAPIKey != "" {
		cfg.LLMProviders[TypeGemini] = LLMProviderConfig{Type: TypeGemini, APIKey: c.GeminiAPIKey, Enabled: true}
	}
	if c.OpenRouterAPIKey != "" {
		cfg.LLMProviders[TypeOpenRouter] = LLMProviderConfig{Type: TypeOpenRouter, APIKey: c.OpenRouterAPIKey, Enabled: true}
	}

	return cfg
}

// NewTestRegistry builds a registry from whatever keys the environment holds.
func (c TestConfig) NewTestRegistry(ctx context.Context) (*Registry, error) {
	return NewRegistryFromConfig(ctx, c.ToRegistryConfig(), nil)
}
