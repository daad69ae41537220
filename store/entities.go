package store

import (
	"context"
	"fmt"
	"time"

	"github.com/danja/semem"
)

// Graph is the store-level collaborator for C8/C9's entity and
// relationship persistence, layered on the same SPARQLAdapter as Memory.
type Graph struct {
	adapter *SPARQLAdapter
	graph   string
}

func NewGraph(adapter *SPARQLAdapter, graph string) *Graph {
	return &Graph{adapter: adapter, graph: graph}
}

// UpsertEntity writes (or overwrites) a single ragno:Entity.
func (g *Graph) UpsertEntity(ctx context.Context, e Entity) error {
	update := fmt.Sprintf(`INSERT DATA { GRAPH <%s> {
<%s> a ragno:Entity ; rdfs:label "%s" ; ragno:entityType "%s" ; prov:wasDerivedFrom <%s> .
}}`, g.graph, e.URI, EscapeLiteral(e.Label), EscapeLiteral(e.Type), e.DerivedFrom)
	if err := g.adapter.Update(ctx, update); err != nil {
		return semem.Wrap(semem.KindOf(err), "store.graph", err)
	}
	return nil
}

// EntitiesByURI returns every known entity keyed by URI.
func (g *Graph) EntitiesByURI(ctx context.Context) (map[string]Entity, error) {
	query := fmt.Sprintf(`SELECT ?s ?label ?type ?source WHERE {
  GRAPH <%s> { ?s a ragno:Entity ; rdfs:label ?label ; ragno:entityType ?type ; prov:wasDerivedFrom ?source . }
}`, g.graph)
	rb, err := g.adapter.Select(ctx, query)
	if err != nil {
		return nil, semem.Wrap(semem.KindOf(err), "store.graph", err)
	}
	out := make(map[string]Entity, len(rb.Results.Bindings))
	for _, row := range rb.Results.Bindings {
		out[row["s"].Value] = Entity{
			URI:         row["s"].Value,
			Label:       row["label"].Value,
			Type:        row["type"].Value,
			DerivedFrom: row["source"].Value,
		}
	}
	return out, nil
}

// EntityLabelsByOwner returns, for every TextElement/Document that owns
// entities, the set of entity labels derived from it — the input to C9's
// entity-match sweep.
func (g *Graph) EntityLabelsByOwner(ctx context.Context) (map[string][]string, error) {
	query := fmt.Sprintf(`SELECT ?owner ?label WHERE {
  GRAPH <%s> { ?e a ragno:Entity ; rdfs:label ?label ; prov:wasDerivedFrom ?owner . }
}`, g.graph)
	rb, err := g.adapter.Select(ctx, query)
	if err != nil {
		return nil, semem.Wrap(semem.KindOf(err), "store.graph", err)
	}
	out := make(map[string][]string)
	for _, row := range rb.Results.Bindings {
		owner := row["owner"].Value
		out[owner] = append(out[owner], row["label"].Value)
	}
	return out, nil
}

// ReplaceRelationships deletes prior edges of the same (source, target,
// type) and inserts the sweep's new set, as required by §4.9's
// idempotent-resweep contract.
func (g *Graph) ReplaceRelationships(ctx context.Context, sweepID string, rels []Relationship) error {
	seen := make(map[[3]string]bool)
	for _, r := range rels {
		key := [3]string{r.Source, r.Target, string(r.Type)}
		if seen[key] {
			continue
		}
		seen[key] = true

		del := fmt.Sprintf(`DELETE WHERE {
  GRAPH <%s> {
    ?r a ragno:Relationship ; ragno:hasSourceEntity <%s> ; ragno:hasTargetEntity <%s> ; ragno:relationshipType "%s" ; ?p ?o .
  }
}`, g.graph, r.Source, r.Target, r.Type)
		if err := g.adapter.Update(ctx, del); err != nil {
			return semem.Wrap(semem.KindOf(err), "store.graph", err)
		}
	}

	for _, r := range rels {
		ts := r.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		ins := fmt.Sprintf(`INSERT DATA { GRAPH <%s> {
<%s> a ragno:Relationship ;
  ragno:hasSourceEntity <%s> ;
  ragno:hasTargetEntity <%s> ;
  ragno:relationshipType "%s" ;
  ragno:weight %s ;
  ragno:sweepId "%s" ;
  semem:timestamp %s .
}}`, g.graph, r.URI, r.Source, r.Target, r.Type, floatLiteral(r.Weight), sweepID, FormatDateTime(ts))
		if err := g.adapter.Update(ctx, ins); err != nil {
			return semem.Wrap(semem.KindOf(err), "store.graph", err)
		}
	}
	return nil
}

// AllRelationships returns every relationship currently in the graph, used
// to build the PPR adjacency map.
func (g *Graph) AllRelationships(ctx context.Context) ([]Relationship, error) {
	query := fmt.Sprintf(`SELECT ?s ?src ?tgt ?type ?weight WHERE {
  GRAPH <%s> {
    ?s a ragno:Relationship ; ragno:hasSourceEntity ?src ; ragno:hasTargetEntity ?tgt ;
       ragno:relationshipType ?type ; ragno:weight ?weight .
  }
}`, g.graph)
	rb, err := g.adapter.Select(ctx, query)
	if err != nil {
		return nil, semem.Wrap(semem.KindOf(err), "store.graph", err)
	}
	out := make([]Relationship, 0, len(rb.Results.Bindings))
	for _, row := range rb.Results.Bindings {
		var w float64
		fmt.Sscanf(row["weight"].Value, "%g", &w)
		out = append(out, Relationship{
			URI:    row["s"].Value,
			Source: row["src"].Value,
			Target: row["tgt"].Value,
			Type:   RelationshipType(row["type"].Value),
			Weight: w,
		})
	}
	return out, nil
}
