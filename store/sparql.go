package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/danja/semem"
)

// Endpoint configures a remote SPARQL 1.1 query/update service.
type Endpoint struct {
	QueryURL  string
	UpdateURL string
	User      string
	Password  string
	Graph     string
}

// SPARQLAdapter is the Triple Store Adapter (C1). It is stateless aside
// from its connection pool; all auth is HTTP Basic supplied at
// construction.
type SPARQLAdapter struct {
	endpoint Endpoint
	client   *http.Client
	log      *slog.Logger

	maxRetries int
	baseDelay  time.Duration
}

// NewSPARQLAdapter builds an adapter with a bounded connection pool (§5
// default 16) and the default 30s SPARQL timeout (§5).
func NewSPARQLAdapter(endpoint Endpoint, poolSize int, timeout time.Duration, log *slog.Logger) *SPARQLAdapter {
	if poolSize <= 0 {
		poolSize = 16
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	transport := &http.Transport{
		MaxIdleConns:        poolSize,
		MaxIdleConnsPerHost: poolSize,
		MaxConnsPerHost:     poolSize,
	}
	return &SPARQLAdapter{
		endpoint:   endpoint,
		client:     &http.Client{Transport: transport, Timeout: timeout},
		log:        log,
		maxRetries: 3,
		baseDelay:  200 * time.Millisecond,
	}
}

// ResultBindings is the decoded body of a SPARQL SELECT response
// (application/sparql-results+json).
type ResultBindings struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]Binding `json:"bindings"`
	} `json:"results"`
}

// Binding is one RDF term within a result row.
type Binding struct {
	Type     string `json:"type"` // uri, literal, bnode
	Value    string `json:"value"`
	DataType string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Select executes a SPARQL SELECT/ASK query and returns the parsed result
// bindings.
func (a *SPARQLAdapter) Select(ctx context.Context, query string) (*ResultBindings, error) {
	body, err := a.doWithRetry(ctx, a.endpoint.QueryURL, "application/sparql-query", "application/sparql-results+json", query)
	if err != nil {
		return nil, err
	}
	var rb ResultBindings
	if err := json.Unmarshal(body, &rb); err != nil {
		return nil, semem.Wrap(semem.KindPermanent, "store.sparql", fmt.Errorf("parse select response: %w", err))
	}
	return &rb, nil
}

// Update executes a SPARQL UPDATE (INSERT DATA / DELETE / etc). Retried on
// transient network errors with exponential backoff (default 3 attempts:
// the 2nd waits ~200ms, the 3rd ~400ms, before giving up).
func (a *SPARQLAdapter) Update(ctx context.Context, update string) error {
	_, err := a.doWithRetry(ctx, a.endpoint.UpdateURL, "application/sparql-update", "", update)
	return err
}

// ClearGraph idempotently empties the configured named graph.
func (a *SPARQLAdapter) ClearGraph(ctx context.Context, graphURI string) error {
	if graphURI == "" {
		graphURI = a.endpoint.Graph
	}
	return a.Update(ctx, fmt.Sprintf("CLEAR GRAPH <%s>", graphURI))
}

// Verify issues `ASK { ?s ?p ?o }` on the configured graph; used at startup
// to confirm connectivity and credentials.
func (a *SPARQLAdapter) Verify(ctx context.Context) error {
	graphURI := a.endpoint.Graph
	if graphURI == "" {
		graphURI = DefaultGraphURI
	}
	query := fmt.Sprintf("ASK { GRAPH <%s> { ?s ?p ?o } }", graphURI)
	_, err := a.Select(ctx, query)
	return err
}

func (a *SPARQLAdapter) doWithRetry(ctx context.Context, url, contentType, accept, body string) ([]byte, error) {
	var lastErr error
	delay := a.baseDelay
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if attempt > 0 {
			jitter := time.Duration(rand.Int64N(int64(delay) / 2))
			select {
			case <-ctx.Done():
				return nil, semem.Wrap(semem.KindCancelled, "store.sparql", ctx.Err())
			case <-time.After(delay + jitter):
			}
			delay *= 2
		}

		respBody, status, err := a.doOnce(ctx, url, contentType, accept, body)
		if err == nil {
			return respBody, nil
		}

		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return nil, semem.Wrap(semem.KindPermanent, "store.sparql", fmt.Errorf("%w: status %d", semem.ErrBackendAuthFailed, status))
		}
		if status >= 400 && status < 500 {
			return nil, semem.Wrap(semem.KindPermanent, "store.sparql", fmt.Errorf("sparql rejected query: status %d: %w", status, err))
		}
		if errCtx := ctx.Err(); errCtx != nil {
			if errCtx == context.DeadlineExceeded {
				return nil, semem.Wrap(semem.KindTimeout, "store.sparql", errCtx)
			}
			return nil, semem.Wrap(semem.KindCancelled, "store.sparql", errCtx)
		}

		lastErr = err
		a.log.Debug("sparql request failed, will retry", "attempt", attempt+1, "err", err)
	}
	return nil, semem.Wrap(semem.KindTransient, "store.sparql", fmt.Errorf("%w: %v", semem.ErrBackendUnavailable, lastErr))
}

func (a *SPARQLAdapter) doOnce(ctx context.Context, url, contentType, accept, body string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", contentType+"; charset=utf-8")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if a.endpoint.User != "" {
		req.SetBasicAuth(a.endpoint.User, a.endpoint.Password)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("sparql endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return data, resp.StatusCode, nil
}

// EscapeLiteral escapes a string for safe embedding inside a SPARQL string
// literal (I6): backslash, double quote, and control characters.
func EscapeLiteral(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
