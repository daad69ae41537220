package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/danja/semem"
)

// QueryTemplates is the Query Template Service (C2). Templates live under
// a `queries/` tree organized by category ({retrieval, management, search,
// visualization}); a shared prefixes.sparql is prepended on load.
type QueryTemplates struct {
	root string

	mu      sync.RWMutex
	entries map[string]*templateEntry

	loadLocks sync.Map // name -> *sync.Mutex, prevents thundering-herd reloads
}

type templateEntry struct {
	body    string
	modTime time.Time
}

func NewQueryTemplates(root string) *QueryTemplates {
	return &QueryTemplates{root: root, entries: make(map[string]*templateEntry)}
}

// path resolves "retrieval/similar" to <root>/retrieval/similar.sparql.
func (t *QueryTemplates) path(name string) string {
	return filepath.Join(t.root, filepath.FromSlash(name)+".sparql")
}

// load reads a template from disk, reusing the cache entry unless the
// file's mtime has changed.
func (t *QueryTemplates) load(name string) (string, error) {
	lockIface, _ := t.loadLocks.LoadOrStore(name, &sync.Mutex{})
	lock := lockIface.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	p := t.path(name)
	info, err := os.Stat(p)
	if err != nil {
		return "", semem.Wrap(semem.KindValidation, "store.querytpl", fmt.Errorf("template %q: %w", name, err))
	}

	t.mu.RLock()
	entry, ok := t.entries[name]
	t.mu.RUnlock()
	if ok && entry.modTime.Equal(info.ModTime()) {
		return entry.body, nil
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return "", semem.Wrap(semem.KindValidation, "store.querytpl", fmt.Errorf("template %q: %w", name, err))
	}

	prefixes, err := t.prefixes()
	if err != nil {
		return "", err
	}

	body := prefixes + "\n" + string(data)
	t.mu.Lock()
	t.entries[name] = &templateEntry{body: body, modTime: info.ModTime()}
	t.mu.Unlock()
	return body, nil
}

func (t *QueryTemplates) prefixes() (string, error) {
	p := filepath.Join(t.root, "prefixes.sparql")
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			var b strings.Builder
			for _, prefix := range AllPrefixes() {
				b.WriteString("PREFIX " + prefix + "\n")
			}
			return b.String(), nil
		}
		return "", semem.Wrap(semem.KindValidation, "store.querytpl", err)
	}
	return string(data), nil
}

// GetQuery substitutes ${param} placeholders into the named template.
// Placeholders with no value in params make it return a KindValidation
// error wrapping semem.ErrTemplateMissing.
func (t *QueryTemplates) GetQuery(name string, params map[string]string) (string, error) {
	body, err := t.load(name)
	if err != nil {
		return "", err
	}
	return substitute(body, params)
}

func substitute(body string, params map[string]string) (string, error) {
	var missing []string
	out := body
	for {
		start := strings.Index(out, "${")
		if start == -1 {
			break
		}
		end := strings.Index(out[start:], "}")
		if end == -1 {
			break
		}
		end += start
		key := out[start+2 : end]
		val, ok := params[key]
		if !ok {
			missing = append(missing, key)
			val = ""
		}
		out = out[:start] + val + out[end+1:]
	}
	if len(missing) > 0 {
		return "", semem.Wrap(semem.KindValidation, "store.querytpl", fmt.Errorf("%w: %s", semem.ErrTemplateMissing, strings.Join(missing, ", ")))
	}
	return out, nil
}

// FormatEntityList renders a list of URIs as `<u1>, <u2>, …` for VALUES
// clauses and IN-style filters.
func FormatEntityList(uris []string) string {
	parts := make([]string, len(uris))
	for i, u := range uris {
		parts[i] = "<" + u + ">"
	}
	return strings.Join(parts, ", ")
}

// FormatDateTime renders t as an xsd:dateTime literal.
func FormatDateTime(t time.Time) string {
	return fmt.Sprintf(`"%s"^^xsd:dateTime`, t.UTC().Format(time.RFC3339))
}
