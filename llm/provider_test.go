package llm

import "testing"

func TestNewProviderUnknownFails(t *testing.T) {
	if _, err := NewProvider(Config{Provider: "bogus"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewProviderEmptyFails(t *testing.T) {
	if _, err := NewProvider(Config{}); err == nil {
		t.Fatal("expected error for unspecified provider")
	}
}

func TestNewProviderKnownNames(t *testing.T) {
	for _, name := range []string{"mistral", "claude", "ollama", "nomic", "custom"} {
		p, err := NewProvider(Config{Provider: name})
		if err != nil {
			t.Fatalf("provider %q: unexpected error: %v", name, err)
		}
		if p == nil {
			t.Fatalf("provider %q: expected non-nil provider", name)
		}
	}
}

func TestSelectProviderPrefersFirstWithKey(t *testing.T) {
	got, err := SelectProvider([]Selection{
		{Config: Config{Provider: "mistral"}, HasKey: false},
		{Config: Config{Provider: "claude"}, HasKey: true},
		{Config: Config{Provider: "ollama"}, HasKey: false},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Provider != "claude" {
		t.Fatalf("expected claude to win, got %s", got.Provider)
	}
}

func TestSelectProviderFallsBackToOllama(t *testing.T) {
	got, err := SelectProvider([]Selection{
		{Config: Config{Provider: "mistral"}, HasKey: false},
		{Config: Config{Provider: "ollama"}, HasKey: false},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Provider != "ollama" {
		t.Fatalf("expected ollama fallback, got %s", got.Provider)
	}
}

func TestSelectProviderNoCandidatesFails(t *testing.T) {
	if _, err := SelectProvider(nil); err == nil {
		t.Fatal("expected error with no candidates and no ollama fallback")
	}
}

func TestNewOllamaDefaultsBaseURL(t *testing.T) {
	p := NewOllama(Config{Model: "llama3"})
	op, ok := p.(*ollamaProvider)
	if !ok {
		t.Fatalf("expected *ollamaProvider, got %T", p)
	}
	if op.base.cfg.BaseURL != "http://localhost:11434" {
		t.Fatalf("expected default ollama base url, got %s", op.base.cfg.BaseURL)
	}
}

func TestClaudeEmbedIsUnsupported(t *testing.T) {
	p := NewClaude(Config{})
	if _, err := p.Embed(nil, []string{"x"}); err == nil {
		t.Fatal("expected claude.Embed to fail, nomic is the embedding specialist")
	}
}

func TestNomicChatIsUnsupported(t *testing.T) {
	p := NewNomic(Config{})
	if _, err := p.Chat(nil, ChatRequest{}); err == nil {
		t.Fatal("expected nomic.Chat to fail, it is embedding-only")
	}
}
