package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danja/semem"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*SPARQLAdapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	adapter := NewSPARQLAdapter(Endpoint{QueryURL: srv.URL + "/query", UpdateURL: srv.URL + "/update"}, 4, time.Second, nil)
	adapter.baseDelay = time.Millisecond
	return adapter, srv
}

func TestSelectParsesBindings(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/sparql-results+json")
		io.WriteString(w, `{"head":{"vars":["s"]},"results":{"bindings":[
			{"s":{"type":"uri","value":"http://example.org/1"}}
		]}}`)
	})

	rb, err := adapter.Select(context.Background(), "SELECT ?s WHERE { ?s ?p ?o }")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rb.Results.Bindings) != 1 || rb.Results.Bindings[0]["s"].Value != "http://example.org/1" {
		t.Fatalf("unexpected bindings: %+v", rb.Results.Bindings)
	}
}

func TestUpdateSendsBody(t *testing.T) {
	var gotBody, gotContentType string
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	})

	if err := adapter.Update(context.Background(), "INSERT DATA { <a> <b> <c> }"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody != "INSERT DATA { <a> <b> <c> }" {
		t.Fatalf("unexpected body: %q", gotBody)
	}
	if gotContentType != "application/sparql-update; charset=utf-8" {
		t.Fatalf("unexpected content type: %q", gotContentType)
	}
}

func TestClearGraphUsesConfiguredGraph(t *testing.T) {
	var gotBody string
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
	})

	if err := adapter.ClearGraph(context.Background(), "http://hyperdata.it/content"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "CLEAR GRAPH <http://hyperdata.it/content>"
	if gotBody != want {
		t.Fatalf("expected %q, got %q", want, gotBody)
	}
}

func TestAuthFailureIsNotRetried(t *testing.T) {
	attempts := 0
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := adapter.Select(context.Background(), "SELECT * WHERE { ?s ?p ?o }")
	if err == nil {
		t.Fatal("expected error")
	}
	if semem.KindOf(err) != semem.KindPermanent {
		t.Fatalf("expected KindPermanent, got %v", semem.KindOf(err))
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt for auth failure, got %d", attempts)
	}
}

func TestTransientFailureRetriesThenFails(t *testing.T) {
	attempts := 0
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := adapter.Select(context.Background(), "SELECT * WHERE { ?s ?p ?o }")
	if err == nil {
		t.Fatal("expected error")
	}
	if semem.KindOf(err) != semem.KindTransient {
		t.Fatalf("expected KindTransient, got %v", semem.KindOf(err))
	}
	if attempts != adapter.maxRetries {
		t.Fatalf("expected %d attempts, got %d", adapter.maxRetries, attempts)
	}
}

func TestTransientFailureRecoversOnRetry(t *testing.T) {
	attempts := 0
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/sparql-results+json")
		json.NewEncoder(w).Encode(ResultBindings{})
	})

	if _, err := adapter.Select(context.Background(), "SELECT * WHERE { ?s ?p ?o }"); err != nil {
		t.Fatalf("unexpected error after recovery: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestVerifyIssuesAskOnConfiguredGraph(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		gotQuery = string(buf)
		w.Header().Set("Content-Type", "application/sparql-results+json")
		json.NewEncoder(w).Encode(ResultBindings{})
	}))
	defer srv.Close()

	adapter := NewSPARQLAdapter(Endpoint{QueryURL: srv.URL, UpdateURL: srv.URL, Graph: "http://hyperdata.it/content"}, 4, time.Second, nil)
	if err := adapter.Verify(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "ASK { GRAPH <http://hyperdata.it/content> { ?s ?p ?o } }" {
		t.Fatalf("unexpected ASK query: %q", gotQuery)
	}
}

func TestEscapeLiteralEscapesSpecialCharacters(t *testing.T) {
	got := EscapeLiteral("line1\nline2\t\"quoted\"\\backslash\r")
	want := `line1\nline2\t\"quoted\"\\backslash\r`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
