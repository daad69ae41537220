package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// nomicProvider implements Provider for Nomic's embedding API. Nomic has no
// chat endpoint; it is the embedding specialist among the configured
// providers.
type nomicProvider struct {
	cfg    Config
	client *http.Client
}

// NewNomic creates a provider for Nomic embeddings.
func NewNomic(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api-atlas.nomic.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text-v1.5"
	}
	return &nomicProvider{cfg: cfg, client: &http.Client{Timeout: 60 * time.Second}}
}

type nomicEmbedRequest struct {
	Model string   `json:"model"`
	Texts []string `json:"texts"`
}

type nomicEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *nomicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return nil, fmt.Errorf("nomic: chat not supported, use mistral, claude, or ollama")
}

func (p *nomicProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body := nomicEmbedRequest{Model: p.cfg.Model, Texts: texts}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+"/v1/embedding/text", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("nomic embed request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading nomic response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nomic embed error %d: %s", resp.StatusCode, string(respBody))
	}

	var er nomicEmbedResponse
	if err := json.Unmarshal(respBody, &er); err != nil {
		return nil, fmt.Errorf("decoding nomic embed response: %w", err)
	}
	return er.Embeddings, nil
}
