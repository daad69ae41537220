// Package prompt implements the Prompt Template Service (C3): the same
// file-tree + mtime-cache shape as store.QueryTemplates, applied to
// model-specific LLM prompts instead of SPARQL bodies.
package prompt

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danja/semem"
)

// Format is the prompting style a template expects.
type Format string

const (
	FormatCompletion Format = "completion"
	FormatChat       Format = "chat"
)

// Template is a single prompt definition loaded from disk.
type Template struct {
	Name            string   `yaml:"name"`
	SupportedModels []string `yaml:"supportedModels"`
	Format          Format   `yaml:"format"`
	Body            string   `yaml:"body"`
}

const fallbackEnhanced = "enhanced"

// builtinFallback is used only when no template file at all resolves,
// including the "enhanced" fallback — it is intentionally minimal and its
// use is always accompanied by a loud warning (§9: silent fallbacks are a
// design smell).
const builtinFallback = `Extract the key concepts from the following text as a JSON array of strings.

Text:
${text}`

// Service is the Prompt Template Service (C3).
type Service struct {
	root string
	log  *slog.Logger

	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	tpl     Template
	modTime time.Time
}

func NewService(root string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{root: root, log: log, entries: make(map[string]*cacheEntry)}
}

// Select picks the template whose SupportedModels matches model with the
// most specific (non-wildcard) match, falling back to "enhanced" and then
// to a built-in minimal template with a loud warning.
func (s *Service) Select(name, model string) (Template, error) {
	candidates, err := s.list(name)
	if err != nil {
		return Template{}, err
	}

	best, specificity := Template{}, -1
	for _, c := range candidates {
		for _, glob := range c.SupportedModels {
			ok, _ := filepath.Match(glob, model)
			if !ok {
				continue
			}
			spec := globSpecificity(glob)
			if spec > specificity {
				best, specificity = c, spec
			}
		}
	}
	if specificity >= 0 {
		return best, nil
	}

	if fb, err := s.load(filepath.Join(name, fallbackEnhanced)); err == nil {
		s.log.Warn("prompt: falling back to enhanced template", "name", name, "model", model)
		return fb, nil
	}

	s.log.Warn("prompt: using built-in minimal fallback, no on-disk template matched", "name", name, "model", model)
	return Template{Name: "builtin-fallback", Format: FormatCompletion, Body: builtinFallback}, nil
}

func globSpecificity(glob string) int {
	if glob == "*" {
		return 0
	}
	return len(strings.ReplaceAll(glob, "*", ""))
}

func (s *Service) list(name string) ([]Template, error) {
	dir := filepath.Join(s.root, filepath.FromSlash(name))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, semem.Wrap(semem.KindValidation, "prompt", err)
	}

	var out []Template
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		tpl, err := s.load(filepath.Join(name, strings.TrimSuffix(e.Name(), ".yaml")))
		if err != nil {
			continue
		}
		out = append(out, tpl)
	}
	return out, nil
}

func (s *Service) load(relName string) (Template, error) {
	p := filepath.Join(s.root, filepath.FromSlash(relName)+".yaml")
	info, err := os.Stat(p)
	if err != nil {
		return Template{}, semem.Wrap(semem.KindValidation, "prompt", err)
	}

	s.mu.RLock()
	entry, ok := s.entries[relName]
	s.mu.RUnlock()
	if ok && entry.modTime.Equal(info.ModTime()) {
		return entry.tpl, nil
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return Template{}, semem.Wrap(semem.KindValidation, "prompt", err)
	}
	var tpl Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return Template{}, semem.Wrap(semem.KindValidation, "prompt", err)
	}

	s.mu.Lock()
	s.entries[relName] = &cacheEntry{tpl: tpl, modTime: info.ModTime()}
	s.mu.Unlock()
	return tpl, nil
}

// Render substitutes ${param} placeholders in the template body.
func Render(tpl Template, params map[string]string) string {
	out := tpl.Body
	for k, v := range params {
		out = strings.ReplaceAll(out, "${"+k+"}", v)
	}
	return out
}
