package llm

import "context"

// mistralProvider implements Provider for Mistral's chat and embedding
// endpoints, which speak the OpenAI-compatible format.
//
// API key: set via config or the MISTRAL_API_KEY environment variable
// (resolved by the caller's ProviderConfig.ResolvedAPIKey, never read
// directly by this package).
type mistralProvider struct {
	base openAICompatClient
}

// NewMistral creates a provider for Mistral.
func NewMistral(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mistral.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "mistral-small-latest"
	}
	return &mistralProvider{base: newOpenAICompatClient(cfg)}
}

func (p *mistralProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

func (p *mistralProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.base.embed(ctx, texts)
}
