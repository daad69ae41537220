package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/danja/semem"
)

// UpsertTextElement writes a single ragno:TextElement with byte-offset
// provenance and a back-link to its owning Document (I2: offsets lie
// within the parent, chunks of one document are totally ordered).
func (g *Graph) UpsertTextElement(ctx context.Context, te TextElement, chunkIndex int) error {
	update := fmt.Sprintf(`INSERT DATA { GRAPH <%s> {
<%s> a ragno:TextElement ;
  ragno:content "%s" ;
  ragno:offsetStart %d ;
  ragno:offsetEnd %d ;
  ragno:chunkIndex %d ;
  prov:wasDerivedFrom <%s> .
}}`, g.graph, te.URI, EscapeLiteral(te.Content), te.OffsetStart, te.OffsetEnd, chunkIndex, te.DocumentURI)
	if err := g.adapter.Update(ctx, update); err != nil {
		return semem.Wrap(semem.KindOf(err), "store.graph", err)
	}
	return nil
}

// UpsertConceptCorpuscle writes a ragno:Corpuscle grouping its member
// ragno:Unit concepts via skos:member, plus the corpuscle's own pooled
// embedding (I3: equal to the mean of its members' embeddings). derivedFrom
// is the TextElement or Interaction URI the concepts were extracted from.
func (g *Graph) UpsertConceptCorpuscle(ctx context.Context, c ConceptCorpuscle, derivedFrom string) error {
	embJSON, err := json.Marshal(c.Embedding)
	if err != nil {
		return semem.Wrap(semem.KindValidation, "store.graph", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT DATA { GRAPH <%s> {\n", g.graph)
	fmt.Fprintf(&b, "<%s> a ragno:Corpuscle ;\n", c.URI)
	fmt.Fprintf(&b, "  semem:embedding \"%s\" ;\n", EscapeLiteral(string(embJSON)))
	fmt.Fprintf(&b, "  prov:wasDerivedFrom <%s>", derivedFrom)
	for _, m := range c.Members {
		fmt.Fprintf(&b, " ;\n  skos:member <%s>", m.URI)
	}
	b.WriteString(" .\n")
	for _, m := range c.Members {
		memberEmbJSON, err := json.Marshal(m.Embedding)
		if err != nil {
			return semem.Wrap(semem.KindValidation, "store.graph", err)
		}
		fmt.Fprintf(&b, "<%s> a ragno:Unit ; rdfs:label \"%s\" ; semem:embedding \"%s\" .\n",
			m.URI, EscapeLiteral(m.Label), EscapeLiteral(string(memberEmbJSON)))
	}
	b.WriteString("}}")

	if err := g.adapter.Update(ctx, b.String()); err != nil {
		return semem.Wrap(semem.KindOf(err), "store.graph", err)
	}
	return nil
}

// UpsertDocument writes the ragno:Document ingestion root along with its
// pooled mean embedding — the comparison vector DocumentSimilarityEdges
// uses against every other known document (§4.8 step 4).
func (g *Graph) UpsertDocument(ctx context.Context, doc Document, meanEmbedding []float32) error {
	embJSON, err := json.Marshal(meanEmbedding)
	if err != nil {
		return semem.Wrap(semem.KindValidation, "store.graph", err)
	}
	ts := doc.IngestedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT DATA { GRAPH <%s> {\n", g.graph)
	fmt.Fprintf(&b, "<%s> a ragno:Document ;\n", doc.URI)
	fmt.Fprintf(&b, "  dcterms:title \"%s\" ;\n", EscapeLiteral(doc.Title))
	fmt.Fprintf(&b, "  ragno:format \"%s\" ;\n", EscapeLiteral(doc.Format))
	fmt.Fprintf(&b, "  semem:timestamp %s ;\n", FormatDateTime(ts))
	fmt.Fprintf(&b, "  semem:embedding \"%s\" .\n", EscapeLiteral(string(embJSON)))
	b.WriteString("}}")

	if err := g.adapter.Update(ctx, b.String()); err != nil {
		return semem.Wrap(semem.KindOf(err), "store.graph", err)
	}
	return nil
}

// AllDocumentMeans returns every known Document's pooled mean embedding,
// keyed by URI.
func (g *Graph) AllDocumentMeans(ctx context.Context) (map[string][]float32, error) {
	query := fmt.Sprintf(`SELECT ?s ?emb WHERE {
  GRAPH <%s> { ?s a ragno:Document ; semem:embedding ?emb . }
}`, g.graph)
	rb, err := g.adapter.Select(ctx, query)
	if err != nil {
		return nil, semem.Wrap(semem.KindOf(err), "store.graph", err)
	}
	out := make(map[string][]float32, len(rb.Results.Bindings))
	for _, row := range rb.Results.Bindings {
		var vec []float32
		if err := json.Unmarshal([]byte(row["emb"].Value), &vec); err != nil {
			continue
		}
		out[row["s"].Value] = vec
	}
	return out, nil
}

// InsertRelationships appends relationship edges directly, without the
// delete-then-insert-by-key semantics ReplaceRelationships uses for C9's
// idempotent resweep. Used for one-off edges emitted during ingestion
// (document-document similarity) rather than a full sweep pass.
func (g *Graph) InsertRelationships(ctx context.Context, rels []Relationship) error {
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
  ragno:sourceCorpus "%s" ;
  semem:timestamp %s .
}}`, g.graph, r.URI, r.Source, r.Target, r.Type, floatLiteral(r.Weight), EscapeLiteral(r.SourceCorpus), FormatDateTime(ts))
		if err := g.adapter.Update(ctx, ins); err != nil {
			return semem.Wrap(semem.KindOf(err), "store.graph", err)
		}
	}
	return nil
}
