// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
)

var ErrUnknownProvider = errors.New("unknown LLM provider")

// CompletionRequest is the normalized request shape shared by all providers.
type CompletionRequest struct {
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Temperature  float32  `json:"temperature,omitempty"`
	Model        string   `json:"model,omitempty"`
	StopWords    []string `json:"stop_words,omitempty"`
	JSONOutput   bool     `json:"json_output,omitempty"`
}

// CompletionResponse is the normalized response shape.
type CompletionResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// Provider is implemented by every LLM backend.
type Provider interface {
	// Initialize configures the provider from a flat string map.
	Initialize(config map[string]string) error

	// GetName returns the provider name used for registry lookup.
	GetName() string

	// CompleteText runs a single text completion.
	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ProviderFactory builds an unconfigured provider instance.
type ProviderFactory func() Provider

// Registry maps provider names to factories.
type Registry struct {
	providers map[string]ProviderFactory
}

var DefaultRegistry = &Registry{
	providers: make(map[string]ProviderFactory),
}

// Register adds a provider factory under a name.
func (r *Registry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// GetProvider builds and initializes the named provider.
func (r *Registry) GetProvider(name string, config map[string]string) (Provider, error) {
	factory, exists := r.providers[name]
	if !exists {
		return nil, ErrUnknownProvider
	}

	provider := factory()
	if err := provider.Initialize(config); err != nil {
		return nil, err
	}

	return provider, nil
}

// GetAvailableProviders returns all registered provider names.
func (r *Registry) GetAvailableProviders() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Register adds a provider factory to the default registry.
func Register(name string, factory ProviderFactory) {
	DefaultRegistry.Register(name, factory)
}
