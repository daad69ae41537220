package llm

import (
	"context"
	"fmt"
)

// Provider is the interface for LLM interactions (§6's chat/embed contract:
// the core depends only on this, never on a vendor SDK).
type Provider interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Embed generates embeddings for a batch of texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// ResponseFormat can be set to "json_object" for JSON mode.
	ResponseFormat string `json:"response_format,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures an LLM provider. APIKey is always resolved by the
// caller (semem.ProviderConfig.ResolvedAPIKey: the explicit key, else the
// named environment variable); this package never reads the environment
// itself.
type Config struct {
	Provider string `json:"provider"` // mistral, claude, ollama, nomic, custom
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"api_key"`
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "mistral":
		return NewMistral(cfg), nil
	case "claude":
		return NewClaude(cfg), nil
	case "ollama":
		return NewOllama(cfg), nil
	case "nomic":
		return NewNomic(cfg), nil
	case "custom":
		return NewOpenAICompat(cfg), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// Selection is one entry in a priority-ordered provider list (§6, §9): the
// core's dynamic dispatch over Mistral/Claude/Ollama/Nomic is a pure
// function over such a list, not a runtime vendor SDK dependency.
type Selection struct {
	Config   Config
	HasKey   bool // true if an API key was resolved for this entry
}

// SelectProvider returns the first entry with a resolved API key, or the
// first "ollama" entry (Ollama needs no key) as the zero-config fallback.
// Returns an error if neither exists.
func SelectProvider(candidates []Selection) (Config, error) {
	for _, c := range candidates {
		if c.HasKey {
			return c.Config, nil
		}
	}
	for _, c := range candidates {
		if c.Config.Provider == "ollama" {
			return c.Config, nil
		}
	}
	return Config{}, fmt.Errorf("no llm provider with a valid api key, and no ollama fallback configured")
}
