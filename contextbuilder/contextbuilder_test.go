package contextbuilder

import (
	"strings"
	"testing"
)

func TestBuildOrdersByScoreDescending(t *testing.T) {
	b := New(DefaultConfig(), nil)
	hits := []Hit{
		{URI: "a", Title: "A", Content: "alpha content", Score: 0.2},
		{URI: "b", Title: "B", Content: "beta content", Score: 0.9},
	}
	p := b.Build("what is it?", hits)
	if len(p.Cited) != 2 || p.Cited[0] != "b" || p.Cited[1] != "a" {
		t.Fatalf("expected b before a in citation order, got %v", p.Cited)
	}
	if !strings.Contains(p.Context, "beta content") {
		t.Fatal("expected context to include beta content")
	}
}

func TestBuildTruncatesOversizedHitToPerHitCap(t *testing.T) {
	cfg := Config{Budget: 120} // perHitCap = 40 tokens (about 160 chars)
	b := New(cfg, nil)
	longContent := strings.Repeat("word ", 200)
	p := b.Build("q", []Hit{{URI: "a", Title: "A", Content: longContent, Score: 1}})
	if len(p.Cited) != 1 {
		t.Fatalf("expected the single hit to still be included truncated, got %v", p.Cited)
	}
	if roughTokens(p.Context) > cfg.Budget {
		t.Fatalf("expected context to fit budget %d, cost %d", cfg.Budget, roughTokens(p.Context))
	}
}

func TestBuildDropsHitsThatWouldExceedTotalBudget(t *testing.T) {
	cfg := Config{Budget: 60}
	b := New(cfg, nil)
	hits := []Hit{
		{URI: "a", Title: "A", Content: strings.Repeat("x", 40), Score: 1},
		{URI: "b", Title: "B", Content: strings.Repeat("y", 40), Score: 0.5},
	}
	p := b.Build("q", hits)
	if len(p.Cited) == 0 {
		t.Fatal("expected at least the top hit to be included")
	}
	if roughTokens(p.System)+roughTokens(p.Question)+roughTokens(p.Context) > cfg.Budget+10 {
		t.Fatalf("total prompt cost exceeded budget: %s", p.Context)
	}
}

func TestBuildEmptyHitsStillProducesSystemAndQuestion(t *testing.T) {
	b := New(DefaultConfig(), nil)
	p := b.Build("anything stored?", nil)
	if p.System == "" || p.Question != "anything stored?" {
		t.Fatalf("expected system+question to be set with no hits: %+v", p)
	}
	if len(p.Cited) != 0 {
		t.Fatal("expected no citations with no hits")
	}
}
