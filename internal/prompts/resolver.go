package prompts

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

// Resolver resolves prompts with overrides.
// Resolution order: Override > Embedded default
type Resolver struct {
	embedded  map[string]EmbeddedPrompt
	overrides map[string]Override
	mu        sync.RWMutex
	logger    *slog.Logger
}

// NewResolver creates a new prompt resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		embedded:  make(map[string]EmbeddedPrompt),
		overrides: make(map[string]Override),
		logger:    logger,
	}
}

// Register registers an embedded prompt.
func (r *Resolver) Register(prompt EmbeddedPrompt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Compute hash if not provided
	if prompt.Hash == "" {
		prompt.Hash = HashText(prompt.Text)
	}

	// Extract variables if not provided
	if prompt.Variables == nil {
		prompt.Variables = ExtractVariables(prompt.Text)
	}

	r.embedded[prompt.Key] = prompt
	r.logger.Debug("registered embedded prompt", "key", prompt.Key, "vars", prompt.Variables)
}

// SetOverride replaces the text for a registered key.
func (r *Resolver) SetOverride(o Override) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.embedded[o.Key]; !ok {
		return fmt.Errorf("prompt not found: %s", o.Key)
	}
	if strings.TrimSpace(o.Text) == "" {
		return fmt.Errorf("override for %s is empty", o.Key)
	}
	r.overrides[o.Key] = o
	r.logger.Info("prompt override set", "key", o.Key, "source", o.Source)
	return nil
}

// LoadOverrideFile reads path and installs its content as the override for key.
// An empty path is a no-op.
func (r *Resolver) LoadOverrideFile(key, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read prompt file: %w", err)
	}
	return r.SetOverride(Override{Key: key, Text: string(data), Source: path})
}

// ClearOverride removes the override for key, if any.
func (r *Resolver) ClearOverride(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, key)
}

// Resolve returns the override for key if it exists, otherwise the embedded default.
func (r *Resolver) Resolve(key string) (*ResolvedPrompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if o, ok := r.overrides[key]; ok {
		return &ResolvedPrompt{
			Key:        key,
			Text:       o.Text,
			Variables:  ExtractVariables(o.Text),
			IsOverride: true,
			Source:     o.Source,
			Hash:       HashText(o.Text),
		}, nil
	}

	embedded, ok := r.embedded[key]
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", key)
	}

	return &ResolvedPrompt{
		Key:       key,
		Text:      embedded.Text,
		Variables: embedded.Variables,
		Hash:      embedded.Hash,
	}, nil
}

// GetEmbedded returns the embedded default for a key (no override resolution).
func (r *Resolver) GetEmbedded(key string) (*EmbeddedPrompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.embedded[key]
	return &p, ok
}

// AllEmbedded returns all registered embedded prompts sorted by key.
func (r *Resolver) AllEmbedded() []EmbeddedPrompt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]EmbeddedPrompt, 0, len(r.embedded))
	for _, p := range r.embedded {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}
