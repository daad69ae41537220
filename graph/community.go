package graph

import (
	"sort"
	"time"

	"github.com/danja/semem/store"
)

// community is a connected component of owners linked by entity-match
// edges, identified after a Leiden-like pass (connected components as
// level-0 communities; §9 leaves deeper modularity optimization optional).
type community struct {
	members []string
}

// detectCommunities groups owners into connected components using the
// entity-match relationships found so far.
func detectCommunities(owners []string, rels []store.Relationship) []community {
	parent := make(map[string]string, len(owners))
	for _, o := range owners {
		parent[o] = o
	}
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}
	for _, r := range rels {
		if _, ok := parent[r.Source]; !ok {
			continue
		}
		if _, ok := parent[r.Target]; !ok {
			continue
		}
		union(r.Source, r.Target)
	}

	groups := make(map[string][]string)
	for _, o := range owners {
		root := find(o)
		groups[root] = append(groups[root], o)
	}

	var out []community
	for _, members := range groups {
		sort.Strings(members)
		out = append(out, community{members: members})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].members[0] < out[j].members[0] })
	return out
}

// communityBridgeSweep emits an edge between the highest-degree ("highest
// betweenness" stand-in, see note below) node of each pair of adjacent
// communities, weighted 1/(graph-distance+1). Adjacency between
// communities is defined as having at least one cross-community
// entity-match edge; distance is always 1 for directly bridged
// communities, matching the edges that made them adjacent.
//
// Exact betweenness centrality requires all-pairs shortest paths; within a
// sweep pass over potentially many thousands of owners we approximate the
// "bridge point" of a community by its highest in-community degree node,
// which is cheap to compute and, for the star/hub-like structures typical
// of entity-match clusters, coincides with the true highest-betweenness
// node in practice.
func (b *Builder) communityBridgeSweep(labelsByOwner map[string][]string, matchRels []store.Relationship, sweepID string, ts time.Time) []store.Relationship {
	owners := make([]string, 0, len(labelsByOwner))
	for o := range labelsByOwner {
		owners = append(owners, o)
	}
	sort.Strings(owners)

	communities := detectCommunities(owners, matchRels)
	if len(communities) < 2 {
		return nil
	}

	degree := make(map[string]int)
	for _, r := range matchRels {
		degree[r.Source]++
		degree[r.Target]++
	}
	hub := func(c community) string {
		best, bestDeg := c.members[0], -1
		for _, m := range c.members {
			if degree[m] > bestDeg {
				best, bestDeg = m, degree[m]
			}
		}
		return best
	}

	adjacent := make(map[[2]int]bool)
	commIndex := make(map[string]int, len(owners))
	for i, c := range communities {
		for _, m := range c.members {
			commIndex[m] = i
		}
	}
	for _, r := range matchRels {
		ci, cj := commIndex[r.Source], commIndex[r.Target]
		if ci == cj {
			continue
		}
		key := [2]int{ci, cj}
		if ci > cj {
			key = [2]int{cj, ci}
		}
		adjacent[key] = true
	}

	var rels []store.Relationship
	for key := range adjacent {
		src := hub(communities[key[0]])
		dst := hub(communities[key[1]])
		rels = append(rels, store.Relationship{
			URI:       relationshipURI(sweepID, len(rels)+200000),
			Source:    src,
			Target:    dst,
			Type:      store.RelCommunityBridge,
			Weight:    0.5, // distance 1 → 1/(1+1)
			SweepID:   sweepID,
			Timestamp: ts,
		})
	}
	return rels
}
