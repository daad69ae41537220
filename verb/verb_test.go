package verb

import (
	"context"
	"testing"

	"github.com/danja/semem/ingest"
	"github.com/danja/semem/retrieval"
	"github.com/danja/semem/store"
)

type fakeTeller struct{ lastContent string }

func (f *fakeTeller) Ingest(ctx context.Context, title, content string) (ingest.Result, error) {
	f.lastContent = content
	return ingest.Result{DocumentURI: "doc:1", ChunkCount: 2}, nil
}

type fakeLazy struct {
	stored     map[string]store.Interaction
	promoted   []string
	corpuscles []store.ConceptCorpuscle
}

func newFakeLazy() *fakeLazy { return &fakeLazy{stored: map[string]store.Interaction{}} }

func (f *fakeLazy) StoreLazy(ctx context.Context, content string, metadata map[string]string) (string, error) {
	id := "lazy-1"
	f.stored[id] = store.Interaction{ID: id, Prompt: content}
	return id, nil
}

func (f *fakeLazy) FindLazy(ctx context.Context, limit int) ([]store.Interaction, error) {
	var out []store.Interaction
	for _, it := range f.stored {
		out = append(out, it)
	}
	return out, nil
}

func (f *fakeLazy) PromoteLazy(ctx context.Context, id string, embedding []float32, corpuscleURI string) error {
	f.promoted = append(f.promoted, id)
	delete(f.stored, id)
	return nil
}

func (f *fakeLazy) AllEmbedded(ctx context.Context) (map[string][]float32, error) {
	return map[string][]float32{"http://x/1": {1, 0}}, nil
}

func (f *fakeLazy) UpsertConceptCorpuscle(ctx context.Context, c store.ConceptCorpuscle, derivedFrom string) error {
	f.corpuscles = append(f.corpuscles, c)
	return nil
}

type fakeContent struct{}

func (fakeContent) GetByURI(ctx context.Context, uri string) (store.Interaction, error) {
	return store.Interaction{Title: "T", Prompt: "content for " + uri}, nil
}

type fakeRetriever struct {
	hits      []retrieval.Hit
	lastPan   map[string]string
	lastTilt  string
}

func (f *fakeRetriever) Search(ctx context.Context, q []float32, pan map[string]string, tilt string, k int) ([]retrieval.Hit, retrieval.Trace, error) {
	f.lastPan = pan
	f.lastTilt = tilt
	return f.hits, retrieval.Trace{FusedHits: len(f.hits)}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type fakeChat struct{ reply string }

func (f fakeChat) Chat(ctx context.Context, system, user string, temperature float64) (string, error) {
	return f.reply, nil
}

type fakeConcepts struct{}

func (fakeConcepts) ExtractConcepts(ctx context.Context, text string) ([]string, error) {
	return []string{"c1"}, nil
}

type fakeSweeper struct{ called bool }

func (f *fakeSweeper) Sweep(ctx context.Context) error {
	f.called = true
	return nil
}

func newTestDispatcher() *Dispatcher {
	return New(&fakeTeller{}, newFakeLazy(), fakeContent{}, &fakeRetriever{hits: []retrieval.Hit{{URI: "http://x/1", Score: 0.9}}}, fakeConcepts{}, &fakeSweeper{}, fakeEmbedder{}, fakeChat{reply: "the answer"}, nil, nil, nil)
}

func TestDispatchUnknownVerbFails(t *testing.T) {
	d := newTestDispatcher()
	resp, err := d.Dispatch(context.Background(), Request{Verb: "nope"})
	if err == nil || resp.Success {
		t.Fatal("expected unknown verb to fail")
	}
}

func TestDispatchTellEager(t *testing.T) {
	d := newTestDispatcher()
	resp, err := d.Dispatch(context.Background(), Request{Verb: "tell", Params: map[string]any{"content": "hello world"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success || resp.Data["documentUri"] != "doc:1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDispatchTellLazy(t *testing.T) {
	d := newTestDispatcher()
	resp, err := d.Dispatch(context.Background(), Request{Verb: "tell", Params: map[string]any{"content": "hello", "lazy": true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Data["lazy"] != true {
		t.Fatalf("expected lazy:true, got %+v", resp.Data)
	}
}

func TestDispatchTellEmptyContentFails(t *testing.T) {
	d := newTestDispatcher()
	_, err := d.Dispatch(context.Background(), Request{Verb: "tell", Params: map[string]any{"content": ""}})
	if err == nil {
		t.Fatal("expected validation error for empty content")
	}
}

func TestDispatchTellLegacyParamName(t *testing.T) {
	d := newTestDispatcher()
	resp, err := d.Dispatch(context.Background(), Request{Verb: "tell", Params: map[string]any{"text": "hello via legacy name"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected legacy 'text' to map to 'content': %+v", resp)
	}
}

func TestDispatchAsk(t *testing.T) {
	d := newTestDispatcher()
	resp, err := d.Dispatch(context.Background(), Request{Verb: "ask", Params: map[string]any{"question": "what is it?"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Data["answer"] != "the answer" {
		t.Fatalf("unexpected answer: %+v", resp.Data)
	}
}

func TestDispatchAskNoResultsReturnsStructuredAnswerNotError(t *testing.T) {
	d := New(&fakeTeller{}, newFakeLazy(), fakeContent{}, &fakeRetriever{hits: nil}, fakeConcepts{}, &fakeSweeper{}, fakeEmbedder{}, fakeChat{}, nil, nil, nil)
	resp, err := d.Dispatch(context.Background(), Request{Verb: "ask", Params: map[string]any{"question": "anything?"}})
	if err != nil {
		t.Fatalf("expected no error for empty-store ask, got %v", err)
	}
	if resp.Data["degraded"] != false {
		t.Fatalf("expected non-degraded structured no-context answer, got %+v", resp.Data)
	}
}

func TestDispatchZoomPanTiltInspectRoundTrip(t *testing.T) {
	d := newTestDispatcher()
	sid := "session-1"
	if _, err := d.Dispatch(context.Background(), Request{Verb: "zoom", SessionID: sid, Params: map[string]any{"level": "unit"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dispatch(context.Background(), Request{Verb: "pan", SessionID: sid, Params: map[string]any{"filter": map[string]any{"domain": "AI"}}}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dispatch(context.Background(), Request{Verb: "tilt", SessionID: sid, Params: map[string]any{"style": "graph"}}); err != nil {
		t.Fatal(err)
	}
	resp, err := d.Dispatch(context.Background(), Request{Verb: "inspect", SessionID: sid})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Data["zoom"] != "unit" || resp.Data["tilt"] != "graph" {
		t.Fatalf("unexpected inspected state: %+v", resp.Data)
	}
}

func TestDispatchAskHonorsPriorPanState(t *testing.T) {
	retr := &fakeRetriever{hits: []retrieval.Hit{{URI: "http://x/1", Score: 0.9}}}
	d := New(&fakeTeller{}, newFakeLazy(), fakeContent{}, retr, fakeConcepts{}, &fakeSweeper{}, fakeEmbedder{}, fakeChat{reply: "the answer"}, nil, nil, nil)
	sid := "session-ask"

	if _, err := d.Dispatch(context.Background(), Request{Verb: "pan", SessionID: sid, Params: map[string]any{"filter": map[string]any{"domains": "AI"}}}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dispatch(context.Background(), Request{Verb: "tilt", SessionID: sid, Params: map[string]any{"style": "graph"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dispatch(context.Background(), Request{Verb: "ask", SessionID: sid, Params: map[string]any{"question": "what is it?"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retr.lastPan["domains"] != "AI" {
		t.Fatalf("expected ask to forward prior pan state, got %+v", retr.lastPan)
	}
	if retr.lastTilt != "graph" {
		t.Fatalf("expected ask to forward prior tilt state, got %q", retr.lastTilt)
	}
}

func TestDispatchAskWithoutPriorStateSearchesUnfiltered(t *testing.T) {
	retr := &fakeRetriever{hits: []retrieval.Hit{{URI: "http://x/1", Score: 0.9}}}
	d := New(&fakeTeller{}, newFakeLazy(), fakeContent{}, retr, fakeConcepts{}, &fakeSweeper{}, fakeEmbedder{}, fakeChat{reply: "the answer"}, nil, nil, nil)
	if _, err := d.Dispatch(context.Background(), Request{Verb: "ask", SessionID: "fresh-session", Params: map[string]any{"question": "what is it?"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(retr.lastPan) != 0 {
		t.Fatalf("expected no pan filter for a session with no prior pan call, got %+v", retr.lastPan)
	}
}

func TestDispatchAugmentAttributes(t *testing.T) {
	d := newTestDispatcher()
	resp, err := d.Dispatch(context.Background(), Request{Verb: "augment", Params: map[string]any{"operation": "attributes", "target": "some text"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Data["attributes"] == nil {
		t.Fatalf("expected attributes in response: %+v", resp.Data)
	}
}

func TestDispatchAugmentChunkDocuments(t *testing.T) {
	d := newTestDispatcher()
	resp, err := d.Dispatch(context.Background(), Request{Verb: "augment", Params: map[string]any{"operation": "chunk_documents", "target": "some long document content"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Data["documentUri"] != "doc:1" {
		t.Fatalf("expected chunk_documents to delegate to the ingestor: %+v", resp.Data)
	}
}

func TestDispatchAugmentConcepts(t *testing.T) {
	d := newTestDispatcher()
	resp, err := d.Dispatch(context.Background(), Request{Verb: "augment", Params: map[string]any{"operation": "concepts", "target": "some text"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Data["concepts"] == nil {
		t.Fatalf("expected concepts in response: %+v", resp.Data)
	}
}

func TestDispatchAugmentProcessLazy(t *testing.T) {
	lazy := newFakeLazy()
	lazy.stored["lazy-1"] = store.Interaction{ID: "lazy-1", Prompt: "pending"}
	d := New(&fakeTeller{}, lazy, fakeContent{}, &fakeRetriever{}, fakeConcepts{}, &fakeSweeper{}, fakeEmbedder{}, fakeChat{}, nil, nil, nil)
	resp, err := d.Dispatch(context.Background(), Request{Verb: "augment", Params: map[string]any{"operation": "process_lazy"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Data["promoted"] != 1 {
		t.Fatalf("expected 1 promoted, got %+v", resp.Data)
	}
	if len(lazy.corpuscles) != 1 {
		t.Fatalf("expected process_lazy to persist a concept corpuscle, got %d", len(lazy.corpuscles))
	}
	if len(lazy.corpuscles[0].Members) == 0 {
		t.Fatal("expected the persisted corpuscle to have concept members")
	}
}

func TestDispatchTrainVSOM(t *testing.T) {
	d := newTestDispatcher()
	resp, err := d.Dispatch(context.Background(), Request{Verb: "train-vsom", Params: map[string]any{"gridSize": float64(4), "epochs": float64(5)}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := resp.Data["quantizationError"]; !ok {
		t.Fatalf("expected quantizationError in response: %+v", resp.Data)
	}
}
