// Package ingest implements the Ingestion Orchestrator (C8): drives
// chunking, embedding, concept extraction, and storage for one document,
// plus a lightweight entity/relationship decomposition pass.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/danja/semem"
	"github.com/danja/semem/chunker"
	"github.com/danja/semem/embedcache"
	"github.com/danja/semem/store"
)

// Embedder is the narrow embedding-provider collaborator.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ConceptExtractor is the narrow C7 collaborator.
type ConceptExtractor interface {
	ExtractConcepts(ctx context.Context, text string) ([]string, error)
}

// Store is the narrow C5/graph write surface ingestion needs.
type Store interface {
	Store(ctx context.Context, it store.Interaction) (string, error)
	UpsertEntity(ctx context.Context, e store.Entity) error
	AllEmbedded(ctx context.Context) (map[string][]float32, error)
	UpsertTextElement(ctx context.Context, te store.TextElement, chunkIndex int) error
	UpsertConceptCorpuscle(ctx context.Context, c store.ConceptCorpuscle, derivedFrom string) error
	UpsertDocument(ctx context.Context, doc store.Document, meanEmbedding []float32) error
	AllDocumentMeans(ctx context.Context) (map[string][]float32, error)
	InsertRelationships(ctx context.Context, rels []store.Relationship) error
}

// Config tunes the ingestion pipeline (§4.8, §5).
type Config struct {
	Concurrency        int     // bounded fan-out, default 8
	DocSimilarityFloor float64 // default 0.1
	RateLimitPerSecond float64 // shared token bucket rate, default 5/s
	RateLimitBurst     int
}

func DefaultConfig() Config {
	return Config{Concurrency: 8, DocSimilarityFloor: 0.1, RateLimitPerSecond: 5, RateLimitBurst: 5}
}

// Orchestrator is the Ingestion Orchestrator (C8).
type Orchestrator struct {
	chunker  *chunker.Chunker
	embedder Embedder
	cache    *embedcache.Cache
	concepts ConceptExtractor
	st       Store
	cfg      Config
	limiter  *rate.Limiter
	log      *slog.Logger
}

func New(ch *chunker.Chunker, embedder Embedder, cache *embedcache.Cache, concepts ConceptExtractor, st Store, cfg Config, log *slog.Logger) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 5
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		chunker:  ch,
		embedder: embedder,
		cache:    cache,
		concepts: concepts,
		st:       st,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst),
		log:      log,
	}
}

// Result summarizes what Ingest wrote.
type Result struct {
	DocumentURI string
	ChunkCount  int
	EntityCount int
}

// Ingest drives C6→embed→C7→C5 for one document. Writes are issued one
// after another as each step completes and are not rolled back: when a
// write fails, Ingest logs the failure and returns the error, and the
// writes already made stay in the store; no ingestion:failed marker is
// written. Chunks whose embedding fails are skipped, and Ingest returns
// an error only when every chunk fails.
func (o *Orchestrator) Ingest(ctx context.Context, title, content string) (Result, error) {
	if strings.TrimSpace(content) == "" {
		return Result{}, semem.Wrap(semem.KindValidation, "ingest", semem.ErrEmptyContent)
	}

	docURI := documentURI(title, content)
	chunks := o.chunker.Chunk(content)
	if len(chunks) == 0 {
		return Result{DocumentURI: docURI}, nil
	}

	type chunkResult struct {
		idx       int
		embedding []float32
		concepts  []string
		err       error
	}
	results := make([]chunkResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for i, ch := range chunks {
		i, ch := i, ch
		g.Go(func() error {
			if err := o.limiter.Wait(gctx); err != nil {
				results[i] = chunkResult{idx: i, err: err}
				return nil
			}

			emb, err := o.embed(gctx, titledText(title, ch.Content))
			if err != nil {
				results[i] = chunkResult{idx: i, err: err}
				return nil
			}
			cs, err := o.concepts.ExtractConcepts(gctx, ch.Content)
			if err != nil {
				o.log.Warn("ingest: concept extraction failed for chunk, continuing without concepts", "chunk", i, "err", err)
				cs = nil
			}
			results[i] = chunkResult{idx: i, embedding: emb, concepts: cs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, o.fail(ctx, docURI, err)
	}

	failures := 0
	for _, r := range results {
		if r.err != nil {
			failures++
		}
	}
	if failures == len(results) {
		return Result{}, o.fail(ctx, docURI, fmt.Errorf("all %d chunks failed to embed", len(results)))
	}

	var entityLabels []string
	labelCount := make(map[string]int)
	var chunkEmbeddings [][]float32

	for _, r := range results {
		if r.err != nil {
			continue
		}
		ch := chunks[r.idx]
		it := store.Interaction{
			Prompt:    ch.Content,
			Embedding: r.embedding,
			Title:     title,
			Label:     fmt.Sprintf("%s#chunk-%d", title, r.idx),
			Timestamp: time.Now().UTC(),
		}
		if _, err := o.st.Store(ctx, it); err != nil {
			return Result{}, o.fail(ctx, docURI, err)
		}

		te := store.TextElement{
			URI:         textElementURI(docURI, r.idx),
			Content:     ch.Content,
			OffsetStart: ch.OffsetStart,
			OffsetEnd:   ch.OffsetEnd,
			DocumentURI: docURI,
		}
		if err := o.st.UpsertTextElement(ctx, te, r.idx); err != nil {
			return Result{}, o.fail(ctx, docURI, err)
		}

		if len(r.concepts) > 0 {
			members := make([]store.Concept, len(r.concepts))
			for i, label := range r.concepts {
				members[i] = store.Concept{
					URI:       conceptURI(docURI, r.idx, label),
					Label:     label,
					Embedding: r.embedding,
				}
			}
			corpuscle := store.ConceptCorpuscle{
				URI:       conceptCorpuscleURI(docURI, r.idx),
				Members:   members,
				Embedding: r.embedding, // I3: mean of identical member vectors equals this vector
			}
			if err := o.st.UpsertConceptCorpuscle(ctx, corpuscle, te.URI); err != nil {
				return Result{}, o.fail(ctx, docURI, err)
			}
		}

		chunkEmbeddings = append(chunkEmbeddings, r.embedding)
		for _, phrase := range extractNounPhrases(ch.Content) {
			labelCount[phrase]++
		}
	}

	entityCount := 0
	for phrase, count := range labelCount {
		if count < 2 {
			continue
		}
		entityLabels = append(entityLabels, phrase)
		e := store.Entity{
			URI:         entityURI(docURI, phrase),
			Label:       phrase,
			Type:        "concept",
			DerivedFrom: docURI,
		}
		if err := o.st.UpsertEntity(ctx, e); err != nil {
			return Result{}, o.fail(ctx, docURI, err)
		}
		entityCount++
	}

	docMean := MeanEmbedding(chunkEmbeddings)
	others, err := o.st.AllDocumentMeans(ctx)
	if err != nil {
		return Result{}, o.fail(ctx, docURI, err)
	}
	if rels := DocumentSimilarityEdges(docURI, docMean, others, o.cfg.DocSimilarityFloor); len(rels) > 0 {
		if err := o.st.InsertRelationships(ctx, rels); err != nil {
			return Result{}, o.fail(ctx, docURI, err)
		}
	}
	doc := store.Document{
		URI:        docURI,
		Title:      title,
		Format:     "text/plain",
		IngestedAt: time.Now().UTC(),
	}
	if err := o.st.UpsertDocument(ctx, doc, docMean); err != nil {
		return Result{}, o.fail(ctx, docURI, err)
	}

	return Result{DocumentURI: docURI, ChunkCount: len(chunkEmbeddings), EntityCount: entityCount}, nil
}

func (o *Orchestrator) embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := o.cache.Get(text); ok {
		return cached, nil
	}
	vecs, err := o.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, semem.Wrap(semem.KindProvider, "ingest", err)
	}
	if len(vecs) == 0 {
		return nil, semem.Wrap(semem.KindProvider, "ingest", semem.ErrProviderUnavailable)
	}
	o.cache.Put(text, vecs[0])
	return vecs[0], nil
}

func (o *Orchestrator) fail(ctx context.Context, docURI string, cause error) error {
	o.log.Error("ingest: document failed", "document", docURI, "err", cause)
	return semem.Wrap(semem.KindOf(cause), "ingest", cause)
}

func titledText(title, content string) string {
	if title == "" {
		return content
	}
	return title + "\n\n" + content
}

func documentURI(title, content string) string {
	sum := sha256.Sum256([]byte(title + "\x00" + content))
	return "http://purl.org/stuff/ragno/document/" + hex.EncodeToString(sum[:])
}

func entityURI(docURI, label string) string {
	sum := sha256.Sum256([]byte(docURI + "\x00" + strings.ToLower(label)))
	return "http://purl.org/stuff/ragno/entity/" + hex.EncodeToString(sum[:8])
}

func textElementURI(docURI string, idx int) string {
	sum := sha256.Sum256([]byte(docURI + "\x00text\x00" + fmt.Sprint(idx)))
	return "http://purl.org/stuff/ragno/text-element/" + hex.EncodeToString(sum[:8])
}

func conceptCorpuscleURI(docURI string, idx int) string {
	sum := sha256.Sum256([]byte(docURI + "\x00corpuscle\x00" + fmt.Sprint(idx)))
	return "http://purl.org/stuff/ragno/corpuscle/" + hex.EncodeToString(sum[:8])
}

func conceptURI(docURI string, idx int, label string) string {
	sum := sha256.Sum256([]byte(docURI + "\x00concept\x00" + fmt.Sprint(idx) + "\x00" + strings.ToLower(label)))
	return "http://purl.org/stuff/ragno/concept/" + hex.EncodeToString(sum[:8])
}

var wordRe = regexp.MustCompile(`[A-Za-z][A-Za-z0-9\-]{2,}(?:\s+[A-Z][A-Za-z0-9\-]{2,})*`)

// extractNounPhrases is the design-level heuristic named in §4.8: capture
// capitalized-run phrases as candidate entities. An implementation may
// swap this for a dedicated NER call.
func extractNounPhrases(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range wordRe.FindAllString(text, -1) {
		if len(strings.Fields(m)) < 1 {
			continue
		}
		r := []rune(m)
		if len(r) == 0 || !isUpper(r[0]) {
			continue
		}
		key := strings.ToLower(m)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

func isUpper(r rune) bool {
	return r >= 'A' && r <= 'Z'
}

// DocumentSimilarityEdges computes, for a newly ingested document's mean
// embedding against all other known documents, the similarity edges at or
// above DocSimilarityFloor (§4.8 step 4).
func DocumentSimilarityEdges(docURI string, docMean []float32, others map[string][]float32, floor float64) []store.Relationship {
	if floor <= 0 {
		floor = 0.1
	}
	var rels []store.Relationship
	now := time.Now().UTC()
	for other, vec := range others {
		if other == docURI {
			continue
		}
		sim := store.CosineSimilarity(docMean, vec)
		if sim < floor {
			continue
		}
		rels = append(rels, store.Relationship{
			URI:          entityURI(docURI, other) + "/sim",
			Source:       docURI,
			Target:       other,
			Type:         store.RelSimilarity,
			Weight:       sim,
			SourceCorpus: "ingest",
			Timestamp:    now,
		})
	}
	return rels
}

// MeanEmbedding mean-pools a set of chunk embeddings into a single vector
// of the same dimension (Ingest uses it for the Document mean that
// Document-Document similarity edges compare).
func MeanEmbedding(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	dim := len(vecs[0])
	mean := make([]float32, dim)
	for _, v := range vecs {
		for i := 0; i < dim && i < len(v); i++ {
			mean[i] += v[i]
		}
	}
	for i := range mean {
		mean[i] /= float32(len(vecs))
	}
	return mean
}
