package providers

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestTestConfig_ToRegistryConfig(t *testing.T) {
	cfg := TestConfig{OpenAIAPIKey: "sk-test", OpenRouterAPIKey: "or-test"}
	if !cfg.HasAnyLLM() {
		t.Fatal("HasAnyLLM() = false with keys set")
	}

	reg := cfg.ToRegistryConfig()
	if len(reg.LLMProviders) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(reg.LLMProviders))
	}
	if _, ok := reg.LLMProviders[TypeGemini]; ok {
		t.Error("gemini should be absent without a key")
	}
	if p := reg.LLMProviders[TypeOpenAI]; p.APIKey != "sk-test" || !p.Enabled {
		t.Errorf("unexpected openai config: %+v", p)
	}

	if (TestConfig{}).HasAnyLLM() {
		t.Error("HasAnyLLM() = true without keys")
	}
}

// TestLiveProviders calls every label service with a key in the environment.
func TestLiveProviders(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping live provider test in short mode")
	}
	cfg := LoadTestConfig()
	if !cfg.HasAnyLLM() {
		t.Skip("no provider API keys set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	reg, err := cfg.NewTestRegistry(ctx)
	if err != nil {
		t.Fatalf("NewTestRegistry() error = %v", err)
	}

	for _, name := range reg.ListLLM() {
		t.Run(name, func(t *testing.T) {
			client, err := reg.GetLLM(name)
			if err != nil {
				t.Fatal(err)
			}
			result, err := client.Chat(ctx, &ChatRequest{
				Messages: []Message{{Role: RoleUser, Content: "Answer with exactly one word: Yes, No or Maybe. Is the sky blue?"}},
			})
			if err != nil {
				t.Fatalf("Chat() error = %v", err)
			}
			if strings.TrimSpace(result.Content) == "" {
				t.Error("empty response")
			}
		})
	}
}
