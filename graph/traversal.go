package graph

import (
	"github.com/danja/semem/store"
)

// PPRConfig tunes the personalized PageRank traversal (§4.10).
type PPRConfig struct {
	Alpha     float64 // restart probability, default 0.15
	Tolerance float64 // L1 convergence threshold, default 1e-4
	MaxIter   int     // default 50
}

func DefaultPPRConfig() PPRConfig {
	return PPRConfig{Alpha: 0.15, Tolerance: 1e-4, MaxIter: 50}
}

// adjacency is a weighted, undirected adjacency list keyed by node URI.
type adjacency map[string][]weightedEdge

type weightedEdge struct {
	to     string
	weight float64
}

// BuildAdjacency loads relationships into an in-memory undirected adjacency
// map, the shape PPR traversal walks. Community detection does not use it;
// detectCommunities works on the relationship list directly.
func BuildAdjacency(rels []store.Relationship) adjacency {
	adj := make(adjacency)
	for _, r := range rels {
		adj[r.Source] = append(adj[r.Source], weightedEdge{to: r.Target, weight: r.Weight})
		adj[r.Target] = append(adj[r.Target], weightedEdge{to: r.Source, weight: r.Weight})
	}
	return adj
}

// PersonalizedPageRank runs power-iteration PPR restricted to the subgraph
// induced by Relationship edges, seeded at seedURIs with restart
// probability alpha. Iterates until the L1 change in the score vector is
// below tolerance or maxIter iterations have run.
func PersonalizedPageRank(adj adjacency, seedURIs []string, cfg PPRConfig) map[string]float64 {
	if len(seedURIs) == 0 || len(adj) == 0 {
		return nil
	}
	if cfg.Alpha <= 0 {
		cfg.Alpha = 0.15
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 1e-4
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = 50
	}

	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}

	restart := make(map[string]float64, len(seedURIs))
	for _, s := range seedURIs {
		restart[s] = 1.0 / float64(len(seedURIs))
	}

	scores := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		scores[n] = restart[n]
	}

	outWeight := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		var total float64
		for _, e := range adj[n] {
			total += e.weight
		}
		outWeight[n] = total
	}

	for iter := 0; iter < cfg.MaxIter; iter++ {
		next := make(map[string]float64, len(nodes))
		for _, n := range nodes {
			next[n] = cfg.Alpha * restart[n]
		}
		for _, n := range nodes {
			if outWeight[n] == 0 {
				continue
			}
			share := (1 - cfg.Alpha) * scores[n] / outWeight[n]
			for _, e := range adj[n] {
				next[e.to] += share * e.weight
			}
		}

		var l1 float64
		for _, n := range nodes {
			diff := next[n] - scores[n]
			if diff < 0 {
				diff = -diff
			}
			l1 += diff
		}
		scores = next
		if l1 < cfg.Tolerance {
			break
		}
	}
	return scores
}
