package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danja/semem"
)

func writeTemplate(t *testing.T, root, relName, body string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(relName)+".yaml")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSelectPicksMostSpecificModelGlob(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "concepts/default", "name: concepts-default\nsupportedModels: [\"*\"]\nformat: completion\nbody: default body\n")
	writeTemplate(t, root, "concepts/enhanced", "name: concepts-enhanced\nsupportedModels: [\"claude-*\"]\nformat: chat\nbody: enhanced body\n")

	s := NewService(root, nil)
	tpl, err := s.Select("concepts", "claude-3-opus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Name != "concepts-enhanced" {
		t.Fatalf("expected the more specific claude-* template, got %q", tpl.Name)
	}
}

func TestSelectFallsBackToWildcardWhenNoSpecificMatch(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "concepts/default", "name: concepts-default\nsupportedModels: [\"*\"]\nformat: completion\nbody: default body\n")
	writeTemplate(t, root, "concepts/enhanced", "name: concepts-enhanced\nsupportedModels: [\"claude-*\"]\nformat: chat\nbody: enhanced body\n")

	s := NewService(root, nil)
	tpl, err := s.Select("concepts", "llama3:8b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Name != "concepts-default" {
		t.Fatalf("expected the wildcard template, got %q", tpl.Name)
	}
}

func TestSelectFallsBackToEnhancedWhenNameMissing(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "concepts/enhanced", "name: concepts-enhanced\nsupportedModels: [\"claude-*\"]\nformat: chat\nbody: enhanced body\n")

	s := NewService(root, nil)
	tpl, err := s.Select("concepts", "gpt-4o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Name != "concepts-enhanced" {
		t.Fatalf("expected fallback to enhanced template, got %q", tpl.Name)
	}
}

func TestSelectFallsBackToBuiltinWhenNothingResolves(t *testing.T) {
	root := t.TempDir()

	s := NewService(root, nil)
	tpl, err := s.Select("concepts", "gpt-4o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Name != "builtin-fallback" {
		t.Fatalf("expected builtin fallback, got %q", tpl.Name)
	}
	if tpl.Body != builtinFallback {
		t.Fatalf("expected builtin fallback body")
	}
}

func TestListIgnoresNonYAMLFiles(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "concepts/default", "name: concepts-default\nsupportedModels: [\"*\"]\nformat: completion\nbody: default body\n")
	if err := os.WriteFile(filepath.Join(root, "concepts", "README.md"), []byte("not a template"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewService(root, nil)
	tpl, err := s.Select("concepts", "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Name != "concepts-default" {
		t.Fatalf("unexpected selection: %q", tpl.Name)
	}
}

func TestLoadWrapsMissingDirAsValidationWhenParentExistsButFileDoesnt(t *testing.T) {
	root := t.TempDir()
	s := NewService(root, nil)

	_, err := s.load("concepts/missing")
	if semem.KindOf(err) != semem.KindValidation {
		t.Fatalf("expected KindValidation, got %v", semem.KindOf(err))
	}
}

func TestLoadCachesUntilModTimeChanges(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "concepts/default", "name: concepts-default\nsupportedModels: [\"*\"]\nformat: completion\nbody: v1\n")

	s := NewService(root, nil)
	tpl1, err := s.load("concepts/default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl1.Body != "v1\n" {
		t.Fatalf("unexpected body: %q", tpl1.Body)
	}

	writeTemplate(t, root, "concepts/default", "name: concepts-default\nsupportedModels: [\"*\"]\nformat: completion\nbody: v2\n")
	tpl2, err := s.load("concepts/default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl2.Body != "v2\n" {
		t.Fatalf("expected reloaded body v2, got %q", tpl2.Body)
	}
}

func TestRenderSubstitutesParams(t *testing.T) {
	tpl := Template{Body: "Hello ${name}, today is ${day}."}
	got := Render(tpl, map[string]string{"name": "Ada", "day": "Tuesday"})
	want := "Hello Ada, today is Tuesday."
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRenderLeavesUnknownPlaceholdersUntouched(t *testing.T) {
	tpl := Template{Body: "Known: ${known}. Unknown: ${missing}."}
	got := Render(tpl, map[string]string{"known": "value"})
	want := "Known: value. Unknown: ${missing}."
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestGlobSpecificityPrefersLongerLiteral(t *testing.T) {
	if globSpecificity("*") != 0 {
		t.Fatal("expected bare wildcard to have zero specificity")
	}
	if globSpecificity("claude-*") <= globSpecificity("c*") {
		t.Fatal("expected longer literal prefix to be more specific")
	}
}
