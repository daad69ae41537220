// Package verb implements the Verb Dispatcher (C13): validates and routes
// {tell, ask, augment, zoom, pan, tilt, inspect, train-vsom} requests into
// the components that implement them.
package verb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/danja/semem"
	"github.com/danja/semem/contextbuilder"
	"github.com/danja/semem/ingest"
	"github.com/danja/semem/retrieval"
	"github.com/danja/semem/store"
	"github.com/danja/semem/vsom"
	"github.com/danja/semem/zpt"
)

// Chat is the narrow chat-completion collaborator ask/augment use.
type Chat interface {
	Chat(ctx context.Context, system, user string, temperature float64) (string, error)
}

// Embedder embeds query text for ask.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Teller drives eager ingestion (C8).
type Teller interface {
	Ingest(ctx context.Context, title, content string) (ingest.Result, error)
}

// LazyStore is the C5 lazy-write/promote/find surface.
type LazyStore interface {
	StoreLazy(ctx context.Context, content string, metadata map[string]string) (string, error)
	FindLazy(ctx context.Context, limit int) ([]store.Interaction, error)
	PromoteLazy(ctx context.Context, id string, embedding []float32, corpuscleURI string) error
	AllEmbedded(ctx context.Context) (map[string][]float32, error)
	UpsertConceptCorpuscle(ctx context.Context, c store.ConceptCorpuscle, derivedFrom string) error
}

// ContentResolver resolves a retrieval hit URI into displayable content.
type ContentResolver interface {
	GetByURI(ctx context.Context, uri string) (store.Interaction, error)
}

// Retriever is the C10 hybrid retrieval surface.
type Retriever interface {
	Search(ctx context.Context, queryEmbedding []float32, pan map[string]string, tilt string, k int) ([]retrieval.Hit, retrieval.Trace, error)
}

// ConceptExtractor is the C7 surface.
type ConceptExtractor interface {
	ExtractConcepts(ctx context.Context, text string) ([]string, error)
}

// RelationshipSweeper is the C9 surface.
type RelationshipSweeper interface {
	Sweep(ctx context.Context) error
}

// Dispatcher is the Verb Dispatcher (C13): a transport-agnostic request
// router shared by cmd/server's HTTP handlers and cmd/semem's CLI.
type Dispatcher struct {
	teller   Teller
	lazy     LazyStore
	content  ContentResolver
	retr     Retriever
	concepts ConceptExtractor
	rels     RelationshipSweeper
	embed    Embedder
	chat     Chat
	nav      *zpt.Navigator
	ctxBuild *contextbuilder.Builder
	log      *slog.Logger
}

func New(teller Teller, lazy LazyStore, content ContentResolver, retr Retriever, concepts ConceptExtractor, rels RelationshipSweeper, embed Embedder, chat Chat, nav *zpt.Navigator, ctxBuild *contextbuilder.Builder, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if nav == nil {
		nav = zpt.New()
	}
	if ctxBuild == nil {
		ctxBuild = contextbuilder.New(contextbuilder.DefaultConfig(), nil)
	}
	return &Dispatcher{teller: teller, lazy: lazy, content: content, retr: retr, concepts: concepts, rels: rels, embed: embed, chat: chat, nav: nav, ctxBuild: ctxBuild, log: log}
}

// Request is the validated {verb, params, sessionId} shape (§4.13).
type Request struct {
	Verb      string
	Params    map[string]any
	SessionID string
}

// Response is the stable JSON envelope (§6): success, verb-specific payload
// under Data, and sessionId. Errors set Success=false with Error/Code.
type Response struct {
	Success   bool           `json:"success"`
	SessionID string         `json:"sessionId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	Code      string         `json:"code,omitempty"`
}

var legacyParamAliases = map[string]string{
	"text":  "content",
	"query": "question",
	"kind":  "type",
}

// Dispatch validates params, applies legacy-name mapping, routes to the
// named verb, and returns the response envelope. The returned error, when
// non-nil, is a *semem.Error suitable for HTTP status mapping; Response is
// always populated so STDIO/CLI callers can render it directly.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Response, error) {
	params := applyLegacyAliases(req.Params, d.log)

	var data map[string]any
	var err error
	switch req.Verb {
	case "tell":
		data, err = d.tell(ctx, params)
	case "ask":
		data, err = d.ask(ctx, req.SessionID, params)
	case "augment":
		data, err = d.augment(ctx, params)
	case "zoom":
		data, err = d.zoom(req.SessionID, params)
	case "pan":
		data, err = d.pan(req.SessionID, params)
	case "tilt":
		data, err = d.tilt(req.SessionID, params)
	case "inspect":
		data, err = d.inspect(ctx, req.SessionID, params)
	case "train-vsom":
		data, err = d.trainVSOM(ctx, params)
	default:
		err = semem.Wrap(semem.KindValidation, "verb", fmt.Errorf("%w: %q", semem.ErrUnknownVerb, req.Verb))
	}

	if err != nil {
		return Response{Success: false, SessionID: req.SessionID, Error: err.Error(), Code: semem.KindOf(err).String()}, err
	}
	return Response{Success: true, SessionID: req.SessionID, Data: data}, nil
}

func applyLegacyAliases(params map[string]any, log *slog.Logger) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if canonical, ok := legacyParamAliases[k]; ok {
			log.Debug("verb: mapping legacy parameter name", "legacy", k, "canonical", canonical)
			k = canonical
		}
		out[k] = v
	}
	return out
}

func getString(params map[string]any, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getBool(params map[string]any, key string) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func getStringMap(params map[string]any, key string) map[string]string {
	out := map[string]string{}
	if v, ok := params[key]; ok {
		if m, ok := v.(map[string]string); ok {
			return m
		}
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					out[k] = s
				}
			}
		}
	}
	return out
}

func (d *Dispatcher) tell(ctx context.Context, params map[string]any) (map[string]any, error) {
	content := getString(params, "content")
	if strings.TrimSpace(content) == "" {
		return nil, semem.Wrap(semem.KindValidation, "verb.tell", semem.ErrEmptyContent)
	}
	typ := getString(params, "type")
	if typ == "" {
		typ = "interaction"
	}
	metadata := getStringMap(params, "metadata")

	if getBool(params, "lazy") {
		id, err := d.lazy.StoreLazy(ctx, content, metadata)
		if err != nil {
			return nil, semem.Wrap(semem.KindOf(err), "verb.tell", err)
		}
		return map[string]any{"id": id, "lazy": true}, nil
	}

	res, err := d.teller.Ingest(ctx, metadata["title"], content)
	if err != nil {
		return nil, semem.Wrap(semem.KindOf(err), "verb.tell", err)
	}
	return map[string]any{"documentUri": res.DocumentURI, "chunkCount": res.ChunkCount, "entityCount": res.EntityCount, "type": typ}, nil
}

func (d *Dispatcher) ask(ctx context.Context, sessionID string, params map[string]any) (map[string]any, error) {
	question := getString(params, "question")
	if strings.TrimSpace(question) == "" {
		return nil, semem.Wrap(semem.KindValidation, "verb.ask", fmt.Errorf("%w: question is required", semem.ErrInvalidParams))
	}

	vecs, err := d.embed.Embed(ctx, []string{question})
	if err != nil || len(vecs) == 0 {
		return nil, semem.Wrap(semem.KindProvider, "verb.ask", semem.ErrProviderUnavailable)
	}
	queryEmbedding := vecs[0]

	if getBool(params, "useHyDE") && d.chat != nil {
		hypo, err := d.chat.Chat(ctx, "Write a short hypothetical answer to the question.", question, 0.3)
		if err == nil && strings.TrimSpace(hypo) != "" {
			if hvecs, err := d.embed.Embed(ctx, []string{hypo}); err == nil && len(hvecs) > 0 {
				queryEmbedding = averageVectors(queryEmbedding, hvecs[0])
			}
		}
	}

	state := d.nav.Inspect(sessionID)
	hits, trace, err := d.retr.Search(ctx, queryEmbedding, state.Pan, string(state.Tilt), 10)
	if err != nil {
		return nil, semem.Wrap(semem.KindOf(err), "verb.ask", err)
	}
	if trace.FusedHits == 0 {
		return map[string]any{"answer": "I don't have any relevant information stored yet.", "degraded": false, "citedUris": []string{}}, nil
	}

	var cbHits []contextbuilder.Hit
	for _, h := range hits {
		it, err := d.content.GetByURI(ctx, h.URI)
		if err != nil {
			continue
		}
		cbHits = append(cbHits, contextbuilder.Hit{URI: h.URI, Title: it.Title, Content: it.Prompt, Score: h.Score})
	}

	prompt := d.ctxBuild.Build(question, cbHits)

	if d.chat == nil {
		return map[string]any{"answer": "", "degraded": true, "citedUris": prompt.Cited}, nil
	}
	answer, err := d.chat.Chat(ctx, prompt.System, prompt.Context+"\n\nQuestion: "+prompt.Question, 0.2)
	if err != nil {
		d.log.Warn("verb.ask: chat provider failed, returning degraded fallback", "err", err)
		return map[string]any{"answer": "I found relevant context but could not generate an answer right now.", "degraded": true, "citedUris": prompt.Cited}, nil
	}
	return map[string]any{"answer": answer, "degraded": false, "citedUris": prompt.Cited}, nil
}

func averageVectors(a, b []float32) []float32 {
	if len(a) != len(b) {
		return a
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = (a[i] + b[i]) / 2
	}
	return out
}

func (d *Dispatcher) augment(ctx context.Context, params map[string]any) (map[string]any, error) {
	op := getString(params, "operation")
	if op == "" {
		op = "auto"
	}
	switch op {
	case "concepts", "auto", "attributes":
		target := getString(params, "target")
		if target == "" {
			return nil, semem.Wrap(semem.KindValidation, "verb.augment", fmt.Errorf("%w: target is required for operation %q", semem.ErrInvalidParams, op))
		}
		cs, err := d.concepts.ExtractConcepts(ctx, target)
		if err != nil {
			return nil, semem.Wrap(semem.KindOf(err), "verb.augment", err)
		}
		if op == "attributes" {
			return map[string]any{"attributes": cs}, nil
		}
		return map[string]any{"concepts": cs}, nil
	case "relationships":
		if err := d.rels.Sweep(ctx); err != nil {
			return nil, semem.Wrap(semem.KindOf(err), "verb.augment", err)
		}
		return map[string]any{"swept": true}, nil
	case "chunk_documents":
		target := getString(params, "target")
		if target == "" {
			return nil, semem.Wrap(semem.KindValidation, "verb.augment", fmt.Errorf("%w: target is required for operation %q", semem.ErrInvalidParams, op))
		}
		res, err := d.teller.Ingest(ctx, getString(params, "title"), target)
		if err != nil {
			return nil, semem.Wrap(semem.KindOf(err), "verb.augment", err)
		}
		return map[string]any{"documentUri": res.DocumentURI, "chunkCount": res.ChunkCount, "entityCount": res.EntityCount}, nil
	case "process_lazy":
		pending, err := d.lazy.FindLazy(ctx, 1000)
		if err != nil {
			return nil, semem.Wrap(semem.KindOf(err), "verb.augment", err)
		}
		promoted := 0
		for _, it := range pending {
			vecs, err := d.embed.Embed(ctx, []string{it.Prompt})
			if err != nil || len(vecs) == 0 {
				continue
			}
			emb := vecs[0]

			corpuscleURI := ""
			if cs, err := d.concepts.ExtractConcepts(ctx, it.Prompt); err == nil && len(cs) > 0 {
				members := make([]store.Concept, len(cs))
				for i, label := range cs {
					members[i] = store.Concept{URI: lazyConceptURI(it.ID, i, label), Label: label, Embedding: emb}
				}
				corpuscle := store.ConceptCorpuscle{URI: lazyCorpuscleURI(it.ID), Members: members, Embedding: emb}
				if err := d.lazy.UpsertConceptCorpuscle(ctx, corpuscle, store.InteractionURI(it.ID)); err == nil {
					corpuscleURI = corpuscle.URI
				} else {
					d.log.Warn("verb.augment: failed to persist concept corpuscle for lazy item, promoting without one", "id", it.ID, "err", err)
				}
			}

			if err := d.lazy.PromoteLazy(ctx, it.ID, emb, corpuscleURI); err != nil {
				continue
			}
			promoted++
		}
		return map[string]any{"promoted": promoted, "total": len(pending)}, nil
	default:
		return nil, semem.Wrap(semem.KindValidation, "verb.augment", fmt.Errorf("%w: unsupported operation %q", semem.ErrInvalidParams, op))
	}
}

func lazyCorpuscleURI(id string) string {
	sum := sha256.Sum256([]byte("lazy-corpuscle\x00" + id))
	return "http://purl.org/stuff/ragno/corpuscle/" + hex.EncodeToString(sum[:8])
}

func lazyConceptURI(id string, idx int, label string) string {
	sum := sha256.Sum256([]byte("lazy-concept\x00" + id + "\x00" + strconv.Itoa(idx) + "\x00" + strings.ToLower(label)))
	return "http://purl.org/stuff/ragno/concept/" + hex.EncodeToString(sum[:8])
}

func (d *Dispatcher) zoom(sessionID string, params map[string]any) (map[string]any, error) {
	level := getString(params, "level")
	if level == "" {
		return nil, semem.Wrap(semem.KindValidation, "verb.zoom", fmt.Errorf("%w: level is required", semem.ErrInvalidParams))
	}
	st := d.nav.Zoom(sessionID, zpt.Zoom(level))
	return stateToMap(st), nil
}

func (d *Dispatcher) pan(sessionID string, params map[string]any) (map[string]any, error) {
	filter := getStringMap(params, "filter")
	st := d.nav.Pan(sessionID, filter)
	return stateToMap(st), nil
}

func (d *Dispatcher) tilt(sessionID string, params map[string]any) (map[string]any, error) {
	style := getString(params, "style")
	if style == "" {
		return nil, semem.Wrap(semem.KindValidation, "verb.tilt", fmt.Errorf("%w: style is required", semem.ErrInvalidParams))
	}
	st := d.nav.Tilt(sessionID, zpt.Tilt(style))
	return stateToMap(st), nil
}

func stateToMap(st zpt.State) map[string]any {
	return map[string]any{"zoom": string(st.Zoom), "pan": st.Pan, "tilt": string(st.Tilt)}
}

func (d *Dispatcher) inspect(ctx context.Context, sessionID string, params map[string]any) (map[string]any, error) {
	what := getString(params, "what")
	switch what {
	case "", "state":
		return stateToMap(d.nav.Inspect(sessionID)), nil
	case "counts":
		lazy, err := d.lazy.FindLazy(ctx, 1<<30)
		if err != nil {
			return nil, semem.Wrap(semem.KindOf(err), "verb.inspect", err)
		}
		embedded, err := d.lazy.AllEmbedded(ctx)
		if err != nil {
			return nil, semem.Wrap(semem.KindOf(err), "verb.inspect", err)
		}
		return map[string]any{"lazy": len(lazy), "processed": len(embedded)}, nil
	default:
		return nil, semem.Wrap(semem.KindValidation, "verb.inspect", fmt.Errorf("%w: unsupported what=%q", semem.ErrInvalidParams, what))
	}
}

func (d *Dispatcher) trainVSOM(ctx context.Context, params map[string]any) (map[string]any, error) {
	embedded, err := d.lazy.AllEmbedded(ctx)
	if err != nil {
		return nil, semem.Wrap(semem.KindOf(err), "verb.train-vsom", err)
	}
	if len(embedded) == 0 {
		return nil, semem.Wrap(semem.KindValidation, "verb.train-vsom", semem.ErrNoResults)
	}
	cfg := vsom.DefaultConfig()
	if gs, ok := params["gridSize"].(float64); ok && gs > 0 {
		cfg.GridSize = int(gs)
	}
	if ep, ok := params["epochs"].(float64); ok && ep > 0 {
		cfg.Epochs = int(ep)
	}
	if lr, ok := params["learningRate"].(float64); ok && lr > 0 {
		cfg.LearningRateStart = lr
	}

	vecs := make([][]float32, 0, len(embedded))
	for _, v := range embedded {
		vecs = append(vecs, v)
	}
	_, result := vsom.Train(vecs, cfg)
	return map[string]any{
		"quantizationError": result.QuantizationError,
		"topographicError":  result.TopographicError,
		"epochs":            result.Epochs,
	}, nil
}
