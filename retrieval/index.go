// Package retrieval implements the Hybrid Retriever (C10): an in-memory
// approximate nearest-neighbor index over interaction embeddings, fused with
// a SPARQL-derived exact filter and a personalized-PageRank graph traversal.
package retrieval

import (
	"sort"
	"sync"

	"github.com/danja/semem/store"
)

// IndexConfig tunes the navigable small-world index (§4.10, §5).
type IndexConfig struct {
	M              int // neighbors retained per node, default 16
	EfConstruction int // candidate pool size while inserting, default 100
	EfSearch       int // candidate pool size while searching, default 64
}

func DefaultIndexConfig() IndexConfig {
	return IndexConfig{M: 16, EfConstruction: 100, EfSearch: 64}
}

type node struct {
	uri     string
	vec     []float32
	nbrs    []string
	deleted bool
}

// Index is a single-layer navigable-small-world graph, the same
// construction HNSW uses at its base layer without the upper
// logarithmic-skip layers. It trades HNSW's O(log n) search for a simpler
// O(ef) greedy walk, which is adequate at the corpus sizes a single Semem
// deployment holds in memory. Deletions are tombstoned rather than
// physically unlinked, per the mark-and-sweep policy in §4.10.
type Index struct {
	mu    sync.RWMutex
	cfg   IndexConfig
	nodes map[string]*node
	entry string
}

func NewIndex(cfg IndexConfig) *Index {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 100
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 64
	}
	return &Index{cfg: cfg, nodes: make(map[string]*node)}
}

// Len reports the number of live (non-tombstoned) vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n := 0
	for _, nd := range idx.nodes {
		if !nd.deleted {
			n++
		}
	}
	return n
}

// Insert adds or updates a vector under uri. Incremental: existing entries
// are unaffected, new entries link into the M nearest live nodes found via
// the same greedy search used at query time.
func (idx *Index) Insert(uri string, vec []float32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	nd := &node{uri: uri, vec: vec}
	if idx.entry == "" {
		idx.entry = uri
		idx.nodes[uri] = nd
		return
	}

	candidates := idx.searchLocked(vec, idx.cfg.EfConstruction, uri)
	neighbors := candidates
	if len(neighbors) > idx.cfg.M {
		neighbors = neighbors[:idx.cfg.M]
	}
	for _, c := range neighbors {
		nd.nbrs = append(nd.nbrs, c.URI)
		other := idx.nodes[c.URI]
		other.nbrs = append(other.nbrs, uri)
		if len(other.nbrs) > idx.cfg.M {
			other.nbrs = trimToBestM(other, idx.nodes, idx.cfg.M)
		}
	}
	idx.nodes[uri] = nd
}

// Delete tombstones uri: it is excluded from future search results but its
// links remain so nodes routed through it during a walk are still
// reachable, preserving graph connectivity (§4.10 mark-and-sweep).
func (idx *Index) Delete(uri string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if nd, ok := idx.nodes[uri]; ok {
		nd.deleted = true
	}
}

// ScoredURI pairs a node URI with its cosine similarity to a query vector.
type ScoredURI struct {
	URI   string
	Score float64
}

// Search returns up to k live nearest neighbors to query, ranked by cosine
// similarity descending.
func (idx *Index) Search(query []float32, k int) []ScoredURI {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ef := idx.cfg.EfSearch
	if ef < k {
		ef = k
	}
	out := idx.searchLocked(query, ef, "")
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// searchLocked performs a greedy best-first walk from the entry point,
// expanding through each visited node's neighbor list, bounded to ef
// candidates. excludeURI, when non-empty, skips that node (used while
// inserting to avoid self-links before the node is registered).
func (idx *Index) searchLocked(query []float32, ef int, excludeURI string) []ScoredURI {
	if idx.entry == "" {
		return nil
	}
	visited := make(map[string]bool)
	var candidates []ScoredURI

	start := idx.entry
	if start == excludeURI {
		for u := range idx.nodes {
			if u != excludeURI {
				start = u
				break
			}
		}
	}
	frontier := []string{start}
	visited[start] = true

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]

		nd := idx.nodes[cur]
		if nd == nil {
			continue
		}
		if cur != excludeURI && !nd.deleted {
			candidates = append(candidates, ScoredURI{URI: cur, Score: store.CosineSimilarity(query, nd.vec)})
		}
		for _, nbr := range nd.nbrs {
			if visited[nbr] {
				continue
			}
			visited[nbr] = true
			frontier = append(frontier, nbr)
		}
		if len(visited) > ef*4 {
			break
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > ef {
		candidates = candidates[:ef]
	}
	return candidates
}

func trimToBestM(nd *node, nodes map[string]*node, m int) []string {
	type scored struct {
		uri   string
		score float64
	}
	scoredNbrs := make([]scored, 0, len(nd.nbrs))
	for _, u := range nd.nbrs {
		other := nodes[u]
		if other == nil {
			continue
		}
		scoredNbrs = append(scoredNbrs, scored{uri: u, score: store.CosineSimilarity(nd.vec, other.vec)})
	}
	sort.Slice(scoredNbrs, func(i, j int) bool { return scoredNbrs[i].score > scoredNbrs[j].score })
	if len(scoredNbrs) > m {
		scoredNbrs = scoredNbrs[:m]
	}
	out := make([]string, len(scoredNbrs))
	for i, s := range scoredNbrs {
		out[i] = s.uri
	}
	return out
}
