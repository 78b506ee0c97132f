package providers

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRegistry(t *testing.T) {
	t.Run("register and get LLM", func(t *testing.T) {
		r := NewRegistry()
		mock := NewMockClient()

		r.RegisterLLM("test-llm", mock)

		client, err := r.GetLLM("test-llm")
		if err != nil {
			t.Fatalf("GetLLM() error = %v", err)
		}
		if client != mock {
			t.Error("got different client than registered")
		}
	})

	t.Run("get nonexistent LLM", func(t *testing.T) {
		r := NewRegistry()
		if _, err := r.GetLLM("nope"); err == nil {
			t.Error("expected error for missing client")
		}
	})

	t.Run("list and unregister", func(t *testing.T) {
		r := NewRegistry()
		r.RegisterLLM("b", NewMockClient())
		r.RegisterLLM("a", NewMockClient())

		names := r.ListLLM()
		if len(names) != 2 || names[0] != "a" || names[1] != "b" {
			t.Errorf("ListLLM() = %v, want [a b]", names)
		}

		r.UnregisterLLM("a")
		if r.HasLLM("a") {
			t.Error("expected a to be unregistered")
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		r := NewRegistry()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.RegisterLLM("mock", NewMockClient())
				r.GetLLM("mock")
				r.ListLLM()
			}()
		}
		wg.Wait()
		if !r.HasLLM("mock") {
			t.Error("expected mock to be registered")
		}
	})
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := RegistryConfig{
		LLMProviders: map[string]LLMProviderConfig{
			"openai":   {Type: TypeOpenAI, APIKey: "sk-test", Enabled: true},
			"router":   {Type: TypeOpenRouter, APIKey: "or-test", Enabled: true},
			"nokey":    {Type: TypeOpenAI, Enabled: true},
			"disabled": {Type: TypeOpenAI, APIKey: "sk", Enabled: false},
			"mock":     {Type: TypeMock, Enabled: true},
		},
	}

	r, err := NewRegistryFromConfig(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewRegistryFromConfig() error = %v", err)
	}

	for _, name := range []string{"openai", "router", "mock"} {
		if !r.HasLLM(name) {
			t.Errorf("expected %s to be registered", name)
		}
	}
	for _, name := range []string{"nokey", "disabled"} {
		if r.HasLLM(name) {
			t.Errorf("expected %s to be skipped", name)
		}
	}

	client, _ := r.GetLLM("router")
	if client.Name() != OpenRouterName {
		t.Errorf("router client name = %q", client.Name())
	}
}

func TestNewRegistryFromConfig_UnknownType(t *testing.T) {
	cfg := RegistryConfig{
		LLMProviders: map[string]LLMProviderConfig{
			"weird": {Type: "carrier-pigeon", APIKey: "k", Enabled: true},
		},
	}
	r, err := NewRegistryFromConfig(context.Background(), cfg, nil)
	if err == nil {
		t.Fatal("expected error for unknown provider type")
	}
	if r.HasLLM("weird") {
		t.Error("unknown provider should not be registered")
	}
}

func TestMockClient(t *testing.T) {
	t.Run("default response", func(t *testing.T) {
		m := NewMockClient()
		result, err := m.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: RoleUser, Content: "hello"}},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if result.Content != "mock response" {
			t.Errorf("Content = %q", result.Content)
		}
		if m.RequestCount() != 1 || len(m.Requests()) != 1 {
			t.Error("expected one recorded request")
		}
	})

	t.Run("respond hook", func(t *testing.T) {
		m := NewMockClient()
		m.Respond = func(req *ChatRequest) (string, error) {
			if req.Messages[0].Content == "fail" {
				return "", errors.New("boom")
			}
			return "ok", nil
		}

		result, _ := m.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
		if result.Content != "ok" {
			t.Errorf("Content = %q", result.Content)
		}
		_, err := m.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "fail"}}})
		if !errors.Is(err, ErrTransport) {
			t.Errorf("expected transport error, got %v", err)
		}
	})

	t.Run("fail after", func(t *testing.T) {
		m := NewMockClient()
		m.FailAfter = 1
		ctx := context.Background()
		req := &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}}
		if _, err := m.Chat(ctx, req); err != nil {
			t.Fatalf("first call error = %v", err)
		}
		if _, err := m.Chat(ctx, req); err == nil {
			t.Error("expected second call to fail")
		}
		m.Reset()
		if m.RequestCount() != 0 {
			t.Error("expected reset counter")
		}
	})
}
