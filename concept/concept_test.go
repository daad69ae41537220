package concept

import (
	"context"
	"strings"
	"testing"

	"github.com/danja/semem/prompt"
)

type fakeChat struct {
	responses []string
	calls     int
}

func (f *fakeChat) Chat(ctx context.Context, system, user string, temperature float64) (string, error) {
	r := f.responses[f.calls]
	if f.calls < len(f.responses)-1 {
		f.calls++
	}
	return r, nil
}

func testPromptService(t *testing.T) *prompt.Service {
	t.Helper()
	dir := t.TempDir()
	return prompt.NewService(dir, nil)
}

func TestExtractConceptsPlainArray(t *testing.T) {
	chat := &fakeChat{responses: []string{`["database", "NoSQL", "database"]`}}
	e := New(chat, testPromptService(t), "test-model", nil)

	got, err := e.ExtractConcepts(context.Background(), "CouchDB is a document-oriented NoSQL database.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected deduped list of 2, got %v", got)
	}
}

func TestExtractConceptsCodeFence(t *testing.T) {
	chat := &fakeChat{responses: []string{"```json\n[\"neural networks\", \"patterns\"]\n```"}}
	e := New(chat, testPromptService(t), "test-model", nil)

	got, err := e.ExtractConcepts(context.Background(), "Neural networks learn patterns from data.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 concepts, got %v", got)
	}
}

func TestExtractConceptsRetriesThenFails(t *testing.T) {
	chat := &fakeChat{responses: []string{"garbage", "still garbage", "nope"}}
	e := New(chat, testPromptService(t), "test-model", nil)

	_, err := e.ExtractConcepts(context.Background(), "some text")
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Fatalf("expected parse-after-retries error, got %v", err)
	}
}

func TestExtractConceptsEmptyInput(t *testing.T) {
	chat := &fakeChat{responses: []string{`[]`}}
	e := New(chat, testPromptService(t), "test-model", nil)

	got, err := e.ExtractConcepts(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestNormalizeDropsEmptyAndOverlong(t *testing.T) {
	long := strings.Repeat("x", 200)
	got := normalize([]string{"", "  ", "ok", long, "Ok"})
	if len(got) != 1 || got[0] != "ok" {
		t.Fatalf("expected dedup-by-lowercase single entry 'ok', got %v", got)
	}
}
