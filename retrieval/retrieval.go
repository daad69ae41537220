package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/danja/semem/graph"
	"github.com/danja/semem/store"
)

// ExactMatcher resolves the SPARQL-derived exact filter driven by a ZPT pan
// constraint (e.g. {"entity": "<uri>"} or {"corpus": "<uri>"}). Implemented
// by the store package's query-template-backed lookups.
type ExactMatcher interface {
	ExactMatch(ctx context.Context, pan map[string]string, limit int) ([]string, error)
}

// RelationshipSource supplies the edge set used to build the PPR adjacency
// map (store.Graph satisfies this).
type RelationshipSource interface {
	AllRelationships(ctx context.Context) ([]store.Relationship, error)
}

// Config holds the fusion weights (§4.10). Search passes them through
// AdjustForTilt, which replaces them for the "embedding", "graph" and
// "keywords" tilts, so these weights apply only to other tilt values.
type Config struct {
	WeightSimilarity float64
	WeightExact      float64
	WeightTraversal  float64
	Threshold        float64
	OverfetchFactor  int
}

func DefaultConfig() Config {
	return Config{WeightSimilarity: 0.6, WeightExact: 0.2, WeightTraversal: 0.2, Threshold: 0, OverfetchFactor: 4}
}

// AdjustForTilt re-proportions the fusion weights for a ZPT tilt value,
// keeping their sum at 1. "embedding" favors vector similarity, "graph"
// favors traversal, "keywords" favors exact match; any other value keeps
// the configured weights.
func AdjustForTilt(cfg Config, tilt string) Config {
	switch tilt {
	case "embedding":
		cfg.WeightSimilarity, cfg.WeightExact, cfg.WeightTraversal = 0.8, 0.1, 0.1
	case "graph":
		cfg.WeightSimilarity, cfg.WeightExact, cfg.WeightTraversal = 0.3, 0.1, 0.6
	case "keywords":
		cfg.WeightSimilarity, cfg.WeightExact, cfg.WeightTraversal = 0.3, 0.6, 0.1
	}
	return cfg
}

// Hit is one fused retrieval result.
type Hit struct {
	URI        string
	Score      float64
	Similarity float64
	Exact      float64
	Traversal  float64
}

// Trace records the breakdown of a single hybrid search for observability
// (§9 — never discard below-threshold results silently).
type Trace struct {
	SimilarityHits int
	ExactHits      int
	TraversalSeeds int
	FusedHits      int
	BelowThreshold int
	ElapsedMs      int64
}

// Engine is the Hybrid Retriever (C10).
type Engine struct {
	index   *Index
	exact   ExactMatcher
	rels    RelationshipSource
	ppr     graph.PPRConfig
	cfg     Config
	log     *slog.Logger
}

func New(index *Index, exact ExactMatcher, rels RelationshipSource, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if cfg.OverfetchFactor <= 0 {
		cfg.OverfetchFactor = 4
	}
	return &Engine{index: index, exact: exact, rels: rels, ppr: graph.DefaultPPRConfig(), cfg: cfg, log: log}
}

// Search fuses ANN similarity, SPARQL exact match, and PPR graph traversal
// into a single ranked hit list capped at k (§4.10).
func (e *Engine) Search(ctx context.Context, queryEmbedding []float32, pan map[string]string, tilt string, k int) ([]Hit, Trace, error) {
	start := time.Now()
	cfg := AdjustForTilt(e.cfg, tilt)
	if k <= 0 {
		k = 10
	}
	overfetch := k * cfg.OverfetchFactor

	simHits := e.index.Search(queryEmbedding, overfetch)

	var exactURIs []string
	if e.exact != nil && len(pan) > 0 {
		var err error
		exactURIs, err = e.exact.ExactMatch(ctx, pan, overfetch)
		if err != nil {
			e.log.Warn("retrieval: exact match failed, continuing with similarity+traversal only", "err", err)
		}
	}

	var traversalScores map[string]float64
	traversalSeeds := 0
	if e.rels != nil && len(simHits) > 0 {
		rels, err := e.rels.AllRelationships(ctx)
		if err != nil {
			e.log.Warn("retrieval: loading relationships for traversal failed", "err", err)
		} else {
			adj := graph.BuildAdjacency(rels)
			seeds := topSeeds(simHits, 3)
			traversalSeeds = len(seeds)
			traversalScores = graph.PersonalizedPageRank(adj, seeds, e.ppr)
		}
	}

	combined := make(map[string]*Hit)
	for _, h := range simHits {
		combined[h.URI] = &Hit{URI: h.URI, Similarity: h.Score}
	}
	for _, u := range exactURIs {
		hit, ok := combined[u]
		if !ok {
			hit = &Hit{URI: u}
			combined[u] = hit
		}
		hit.Exact = 1.0
	}
	maxTraversal := maxScore(traversalScores)
	for u, s := range traversalScores {
		hit, ok := combined[u]
		if !ok {
			hit = &Hit{URI: u}
			combined[u] = hit
		}
		if maxTraversal > 0 {
			hit.Traversal = s / maxTraversal
		}
	}

	var all []Hit
	for _, hit := range combined {
		hit.Score = cfg.WeightSimilarity*hit.Similarity + cfg.WeightExact*hit.Exact + cfg.WeightTraversal*hit.Traversal
		all = append(all, *hit)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Score > all[j].Score })

	var kept []Hit
	below := 0
	for _, h := range all {
		if h.Score < cfg.Threshold {
			below++
			continue
		}
		kept = append(kept, h)
	}
	if len(kept) > k {
		kept = kept[:k]
	}

	trace := Trace{
		SimilarityHits: len(simHits),
		ExactHits:      len(exactURIs),
		TraversalSeeds: traversalSeeds,
		FusedHits:      len(kept),
		BelowThreshold: below,
		ElapsedMs:      time.Since(start).Milliseconds(),
	}
	return kept, trace, nil
}

func topSeeds(hits []ScoredURI, n int) []string {
	if len(hits) < n {
		n = len(hits)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = hits[i].URI
	}
	return out
}

func maxScore(m map[string]float64) float64 {
	var max float64
	for _, v := range m {
		if v > max {
			max = v
		}
	}
	return max
}
