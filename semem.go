package semem

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/danja/semem/chunker"
	"github.com/danja/semem/concept"
	"github.com/danja/semem/contextbuilder"
	"github.com/danja/semem/embedcache"
	"github.com/danja/semem/graph"
	"github.com/danja/semem/ingest"
	"github.com/danja/semem/llm"
	"github.com/danja/semem/prompt"
	"github.com/danja/semem/retrieval"
	"github.com/danja/semem/store"
	"github.com/danja/semem/verb"
	"github.com/danja/semem/vsom"
	"github.com/danja/semem/zpt"
)

// Engine is the main entry point for the Semem memory engine. It is a thin,
// typed façade over the verb.Dispatcher (§4.13) — each verb method below
// (Tell through TrainVSOM) builds one verb.Request and returns its
// verb.Response, so callers who want the raw verb protocol (the CLI, the
// HTTP handlers) can use Dispatch directly. RebuildIndex, VerifyGraph,
// ClearGraph and Close do not go through the dispatcher.
type Engine interface {
	// Dispatch routes a raw {verb, params, sessionId} request (§6's wire
	// contract) into the component that implements it.
	Dispatch(ctx context.Context, req verb.Request) (verb.Response, error)

	// Tell ingests content eagerly (embedding + concepts computed now) or
	// lazily (deferred) depending on params["lazy"].
	Tell(ctx context.Context, title, content string, lazy bool) (verb.Response, error)

	// Ask runs hybrid retrieval + context packing + chat completion for a
	// question, honoring the caller's current ZPT lens.
	Ask(ctx context.Context, sessionID, question string) (verb.Response, error)

	// Augment extracts concepts, sweeps relationships, or processes the
	// lazy queue, depending on augmentType (sent as params["operation"]).
	Augment(ctx context.Context, augmentType string, params map[string]any) (verb.Response, error)

	Zoom(sessionID, zoomLevel string) (verb.Response, error)
	Pan(sessionID string, pan map[string]string) (verb.Response, error)
	Tilt(sessionID, tilt string) (verb.Response, error)
	Inspect(ctx context.Context, sessionID, what string) (verb.Response, error)

	// TrainVSOM (re)trains the self-organizing map over every embedded
	// interaction currently in the store.
	TrainVSOM(ctx context.Context, cfg vsom.Config) (verb.Response, error)

	// RebuildIndex reloads every embedded interaction from the triple
	// store into the in-memory ANN index — used after a cold start or an
	// out-of-band bulk load.
	RebuildIndex(ctx context.Context) (int, error)

	// VerifyGraph checks the triple store is reachable and accepts the
	// configured credentials by issuing an ASK on the named graph (used by
	// the "verify" CLI subcommand). The ASK answer is not inspected, so an
	// empty or missing graph is not reported.
	VerifyGraph(ctx context.Context) error

	// ClearGraph drops every triple in the configured named graph. This is
	// destructive and irreversible; callers (the CLI) must confirm with
	// the operator before calling it.
	ClearGraph(ctx context.Context) error

	// Close releases resources held by the engine. The triple store is a
	// remote HTTP endpoint, so this is currently a no-op, kept for
	// symmetry with callers that defer Close() unconditionally.
	Close() error
}

// CoreContext holds every wired dependency (§9: explicit dependency
// threading, no package-level globals). It implements Engine.
type CoreContext struct {
	cfg Config
	log *slog.Logger

	adapter   *store.SPARQLAdapter
	memory    *store.Memory
	graphView *store.Graph
	queries   *store.QueryTemplates
	prompts   *prompt.Service

	chatProvider  llm.Provider
	embedProvider llm.Provider

	cache     *embedcache.Cache
	chnk      *chunker.Chunker
	extractor *concept.Extractor
	orch      *ingest.Orchestrator
	relBuild  *graph.Builder
	index     *retrieval.Index
	retr      *retrieval.Engine
	nav       *zpt.Navigator
	ctxBuild  *contextbuilder.Builder

	dispatcher *verb.Dispatcher
}

// ingestStore combines the Memory Store and the entity graph view into the
// single ingest.Store surface the Ingestion Orchestrator needs: eager
// writes and embedded-interaction reads come from the C5 memory store,
// entity upserts come from the C9 entity graph view.
type ingestStore struct {
	*store.Memory
	*store.Graph
}

// chatAdapter narrows llm.Provider's {ChatRequest/ChatResponse} surface
// down to the {system, user, temperature}→text shape that concept.Chat and
// verb.Chat depend on — the core's LLM collaborators never see the vendor
// wire format.
type chatAdapter struct {
	provider llm.Provider
	model    string
}

func (a chatAdapter) Chat(ctx context.Context, system, user string, temperature float64) (string, error) {
	resp, err := a.provider.Chat(ctx, llm.ChatRequest{
		Model: a.model,
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// New wires every component named in §9's dependency graph from cfg and
// returns a ready-to-use Engine. The provider lists are resolved in
// priority order (llm.SelectProvider): the first entry with a resolvable
// API key wins, falling back to "ollama" when none do.
func New(cfg Config, log *slog.Logger) (*CoreContext, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	chatCfg, err := selectProvider(cfg.LLMProviders)
	if err != nil {
		return nil, Wrap(KindValidation, "semem.New", fmt.Errorf("selecting chat provider: %w", err))
	}
	embedCfg, err := selectProvider(cfg.EmbeddingProviders)
	if err != nil {
		return nil, Wrap(KindValidation, "semem.New", fmt.Errorf("selecting embedding provider: %w", err))
	}

	chatProvider, err := llm.NewProvider(chatCfg)
	if err != nil {
		return nil, Wrap(KindValidation, "semem.New", fmt.Errorf("chat provider: %w", err))
	}
	embedProvider, err := llm.NewProvider(embedCfg)
	if err != nil {
		return nil, Wrap(KindValidation, "semem.New", fmt.Errorf("embedding provider: %w", err))
	}

	endpoint := store.Endpoint{
		QueryURL:  cfg.Storage.QueryEndpoint,
		UpdateURL: cfg.Storage.UpdateEndpoint,
		User:      cfg.Storage.User,
		Password:  cfg.Storage.Password,
		Graph:     cfg.Storage.GraphName,
	}
	adapter := store.NewSPARQLAdapter(endpoint, cfg.Performance.SPARQLPoolSize,
		time.Duration(cfg.Performance.SPARQLTimeoutSec)*time.Second, log)

	memory := store.NewMemory(adapter, cfg.Storage.GraphName, cfg.Memory.Dimension,
		cfg.Memory.DecayRate, cfg.Memory.LongTermThreshold, log)
	graphView := store.NewGraph(adapter, cfg.Storage.GraphName)
	queries := store.NewQueryTemplates(cfg.Storage.QueryDir)
	prompts := prompt.NewService(cfg.Storage.PromptDir, log)

	cache := embedcache.New(cfg.Performance.EmbedCacheSize)
	chnk := chunker.New(chunker.DefaultConfig())

	chat := chatAdapter{provider: chatProvider, model: chatCfg.Model}
	extractor := concept.New(chat, prompts, chatCfg.Model, log)

	ingestSt := ingestStore{Memory: memory, Graph: graphView}

	ingestCfg := ingest.DefaultConfig()
	ingestCfg.Concurrency = cfg.Performance.IngestConcurrency
	orch := ingest.New(chnk, embedProvider, cache, extractor, ingestSt, ingestCfg, log)

	relBuild := graph.NewBuilder(memory, graphView, graphView, graph.DefaultConfig(), log)

	index := retrieval.NewIndex(retrieval.DefaultIndexConfig())
	retr := retrieval.New(index, memory, graphView, retrieval.DefaultConfig(), log)

	nav := zpt.New()
	tokenCounter := contextbuilder.TiktokenCounter("cl100k_base", log)
	ctxBuild := contextbuilder.New(contextbuilder.Config{Budget: cfg.Memory.ContextWindow}, tokenCounter)

	dispatcher := verb.New(orch, ingestSt, memory, retr, extractor, relBuild, embedProvider, chat, nav, ctxBuild, log)

	cc := &CoreContext{
		cfg:           cfg,
		log:           log,
		adapter:       adapter,
		memory:        memory,
		graphView:     graphView,
		queries:       queries,
		prompts:       prompts,
		chatProvider:  chatProvider,
		embedProvider: embedProvider,
		cache:         cache,
		chnk:          chnk,
		extractor:     extractor,
		orch:          orch,
		relBuild:      relBuild,
		index:         index,
		retr:          retr,
		nav:           nav,
		ctxBuild:      ctxBuild,
		dispatcher:    dispatcher,
	}

	if _, err := cc.RebuildIndex(context.Background()); err != nil {
		log.Warn("semem: initial index rebuild failed, starting with an empty ANN index", "error", err)
	}

	return cc, nil
}

// selectProvider adapts a []ProviderConfig (the on-disk config shape) into
// the []llm.Selection shape llm.SelectProvider expects.
func selectProvider(providers []ProviderConfig) (llm.Config, error) {
	candidates := make([]llm.Selection, 0, len(providers))
	for _, p := range providers {
		key := p.ResolvedAPIKey()
		candidates = append(candidates, llm.Selection{
			Config: llm.Config{Provider: p.Name, Model: p.Model, BaseURL: p.BaseURL, APIKey: key},
			HasKey: key != "",
		})
	}
	return llm.SelectProvider(candidates)
}

func (c *CoreContext) Dispatch(ctx context.Context, req verb.Request) (verb.Response, error) {
	return c.dispatcher.Dispatch(ctx, req)
}

func (c *CoreContext) Tell(ctx context.Context, title, content string, lazy bool) (verb.Response, error) {
	return c.Dispatch(ctx, verb.Request{Verb: "tell", Params: map[string]any{
		"content": content, "lazy": lazy,
		"metadata": map[string]any{"title": title},
	}})
}

func (c *CoreContext) Ask(ctx context.Context, sessionID, question string) (verb.Response, error) {
	return c.Dispatch(ctx, verb.Request{Verb: "ask", SessionID: sessionID, Params: map[string]any{
		"question": question,
	}})
}

func (c *CoreContext) Augment(ctx context.Context, augmentType string, params map[string]any) (verb.Response, error) {
	merged := map[string]any{"operation": augmentType}
	for k, v := range params {
		merged[k] = v
	}
	return c.Dispatch(ctx, verb.Request{Verb: "augment", Params: merged})
}

func (c *CoreContext) Zoom(sessionID, zoomLevel string) (verb.Response, error) {
	return c.Dispatch(context.Background(), verb.Request{Verb: "zoom", SessionID: sessionID, Params: map[string]any{
		"level": zoomLevel,
	}})
}

func (c *CoreContext) Pan(sessionID string, pan map[string]string) (verb.Response, error) {
	return c.Dispatch(context.Background(), verb.Request{Verb: "pan", SessionID: sessionID, Params: map[string]any{
		"filter": pan,
	}})
}

func (c *CoreContext) Tilt(sessionID, tilt string) (verb.Response, error) {
	return c.Dispatch(context.Background(), verb.Request{Verb: "tilt", SessionID: sessionID, Params: map[string]any{
		"style": tilt,
	}})
}

func (c *CoreContext) Inspect(ctx context.Context, sessionID, what string) (verb.Response, error) {
	return c.Dispatch(ctx, verb.Request{Verb: "inspect", SessionID: sessionID, Params: map[string]any{
		"what": what,
	}})
}

func (c *CoreContext) TrainVSOM(ctx context.Context, cfg vsom.Config) (verb.Response, error) {
	return c.Dispatch(ctx, verb.Request{Verb: "train-vsom", Params: map[string]any{
		"gridSize": float64(cfg.GridSize), "epochs": float64(cfg.Epochs),
	}})
}

// RebuildIndex reloads every embedded interaction from the triple store
// into the in-memory ANN index (§4.10). Called at startup and exposed for
// operational recovery after an out-of-band bulk load.
func (c *CoreContext) RebuildIndex(ctx context.Context) (int, error) {
	embedded, err := c.memory.AllEmbedded(ctx)
	if err != nil {
		return 0, Wrap(KindOf(err), "semem.RebuildIndex", err)
	}
	for uri, vec := range embedded {
		c.index.Insert(uri, vec)
	}
	return len(embedded), nil
}

func (c *CoreContext) VerifyGraph(ctx context.Context) error {
	return c.adapter.Verify(ctx)
}

func (c *CoreContext) ClearGraph(ctx context.Context) error {
	return c.adapter.ClearGraph(ctx, c.cfg.Storage.GraphName)
}

func (c *CoreContext) Close() error {
	return nil
}
