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

// claudeProvider implements Provider for Anthropic's Messages API, which
// uses a distinct request/response shape and auth header from the
// OpenAI-compatible providers, so it does not share openAICompatClient.
type claudeProvider struct {
	cfg    Config
	client *http.Client
}

const claudeAPIVersion = "2023-06-01"

// NewClaude creates a provider for Anthropic Claude. Claude has no
// embedding endpoint; Embed always returns an error, matching the spec's
// "Nomic is the embedding specialist" division of labor.
func NewClaude(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-latest"
	}
	return &claudeProvider{cfg: cfg, client: &http.Client{Timeout: 120 * time.Second}}
}

type claudeRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *claudeProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	var system string
	var msgs []claudeMessage
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		msgs = append(msgs, claudeMessage{Role: m.Role, Content: m.Content})
	}

	body := claudeRequest{Model: model, System: system, Messages: msgs, MaxTokens: maxTokens, Temperature: req.Temperature}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", claudeAPIVersion)
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("claude request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading claude response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("claude API error %d: %s", resp.StatusCode, string(respBody))
	}

	var cr claudeResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return nil, fmt.Errorf("decoding claude response: %w", err)
	}
	if len(cr.Content) == 0 {
		return nil, fmt.Errorf("no content in claude response")
	}

	return &ChatResponse{
		Content:          cr.Content[0].Text,
		Model:            cr.Model,
		FinishReason:     cr.StopReason,
		PromptTokens:     cr.Usage.InputTokens,
		CompletionTokens: cr.Usage.OutputTokens,
		TotalTokens:      cr.Usage.InputTokens + cr.Usage.OutputTokens,
	}, nil
}

func (p *claudeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("claude: embeddings not supported, use the nomic provider")
}
