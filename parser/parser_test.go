package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestTextParserUsesFileNameAsTitle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &TextParser{}
	res, err := p.Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Title != "notes.txt" || res.Content != "hello world" || res.Format != "txt" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestTextParserMissingFile(t *testing.T) {
	p := &TextParser{}
	if _, err := p.Parse(context.Background(), "/nonexistent/path.txt"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestMarkdownParserExtractsFirstHeading(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	content := "intro line\n# My Document Title\nsome body text\n# second heading ignored"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &MarkdownParser{}
	res, err := p.Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Title != "My Document Title" {
		t.Fatalf("expected extracted heading as title, got %q", res.Title)
	}
	if res.Format != "md" {
		t.Fatalf("unexpected format: %q", res.Format)
	}
}

func TestMarkdownParserFallsBackToFileNameWithoutHeading(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.md")
	if err := os.WriteFile(path, []byte("no heading here"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &MarkdownParser{}
	res, err := p.Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Title != "plain.md" {
		t.Fatalf("expected file name fallback title, got %q", res.Title)
	}
}

func TestRegistryDispatchesByFormat(t *testing.T) {
	r := NewRegistry()

	p, err := r.Get("txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*TextParser); !ok {
		t.Fatalf("expected *TextParser for txt, got %T", p)
	}

	p, err = r.Get("md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*MarkdownParser); !ok {
		t.Fatalf("expected *MarkdownParser for md, got %T", p)
	}

	p, err = r.Get("markdown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*MarkdownParser); !ok {
		t.Fatalf("expected *MarkdownParser for markdown, got %T", p)
	}
}

func TestRegistryUnknownFormat(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("pdf"); err == nil {
		t.Fatal("expected error for unregistered format")
	}
}

func TestRegistryRegisterOverridesFormat(t *testing.T) {
	r := NewRegistry()
	custom := &TextParser{}
	r.Register("txt", custom)

	got, err := r.Get("txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Parser(custom) {
		t.Fatal("expected registered override to take effect")
	}
}
