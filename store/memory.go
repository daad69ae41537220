package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danja/semem"
)

// Memory is the Memory Store (C5): a two-tier durable store layered on the
// Triple Store Adapter. It has an eager write path (embedding + concepts
// computed up front) and a lazy path (content persisted immediately,
// embedding/concepts deferred).
type Memory struct {
	adapter *SPARQLAdapter
	graph   string
	dim     int
	decay   float64 // MemoryConfig.DecayRate
	longTermThreshold float64
	log     *slog.Logger
}

func NewMemory(adapter *SPARQLAdapter, graph string, dim int, decayRate, longTermThreshold float64, log *slog.Logger) *Memory {
	if log == nil {
		log = slog.Default()
	}
	return &Memory{adapter: adapter, graph: graph, dim: dim, decay: decayRate, longTermThreshold: longTermThreshold, log: log}
}

func interactionURI(id string) string {
	return "http://purl.org/stuff/semem/interaction/" + id
}

// InteractionURI returns the canonical URI for an interaction ID, exported
// so other packages (verb, for the lazy-promotion concept corpuscle link)
// can address an interaction without duplicating the URI scheme.
func InteractionURI(id string) string {
	return interactionURI(id)
}

// Store persists an Interaction eagerly. Preconditions: embedding length =
// D (I1). Writes one INSERT DATA with all triples. Write failures are
// always returned, never silently swallowed (§4.5).
func (m *Memory) Store(ctx context.Context, it Interaction) (string, error) {
	if strings.TrimSpace(it.Prompt) == "" && strings.TrimSpace(it.Output) == "" {
		return "", semem.Wrap(semem.KindValidation, "store.memory", semem.ErrEmptyContent)
	}
	if len(it.Embedding) != m.dim {
		return "", semem.Wrap(semem.KindIntegrity, "store.memory", fmt.Errorf("%w: got %d want %d", semem.ErrDimensionMismatch, len(it.Embedding), m.dim))
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.Timestamp.IsZero() {
		it.Timestamp = time.Now().UTC()
	}
	if it.MemoryType == "" {
		it.MemoryType = MemoryShortTerm
	}
	it.ProcessingStatus = StatusProcessed

	uri := interactionURI(it.ID)
	embJSON, err := json.Marshal(it.Embedding)
	if err != nil {
		return "", semem.Wrap(semem.KindValidation, "store.memory", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT DATA { GRAPH <%s> {\n", m.graph)
	fmt.Fprintf(&b, "<%s> a semem:Interaction ;\n", uri)
	fmt.Fprintf(&b, "  semem:id \"%s\" ;\n", EscapeLiteral(it.ID))
	fmt.Fprintf(&b, "  semem:prompt \"%s\" ;\n", EscapeLiteral(it.Prompt))
	fmt.Fprintf(&b, "  semem:output \"%s\" ;\n", EscapeLiteral(it.Output))
	fmt.Fprintf(&b, "  semem:embedding \"%s\" ;\n", EscapeLiteral(string(embJSON)))
	fmt.Fprintf(&b, "  semem:timestamp %s ;\n", FormatDateTime(it.Timestamp))
	fmt.Fprintf(&b, "  semem:accessCount %d ;\n", it.AccessCount)
	fmt.Fprintf(&b, "  semem:decayFactor %s ;\n", floatLiteral(float64(orDefault(it.DecayFactor, 1.0))))
	fmt.Fprintf(&b, "  semem:memoryType \"%s\" ;\n", it.MemoryType)
	fmt.Fprintf(&b, "  semem:processingStatus \"%s\"", it.ProcessingStatus)
	if it.Title != "" {
		fmt.Fprintf(&b, " ;\n  dcterms:title \"%s\"", EscapeLiteral(it.Title))
	}
	if it.Label != "" {
		fmt.Fprintf(&b, " ;\n  rdfs:label \"%s\"", EscapeLiteral(it.Label))
	}
	b.WriteString(" .\n}}")

	if err := m.adapter.Update(ctx, b.String()); err != nil {
		return "", semem.Wrap(semem.KindOf(err), "store.memory", err)
	}
	return it.ID, nil
}

func orDefault(f float32, def float32) float32 {
	if f == 0 {
		return def
	}
	return f
}

func floatLiteral(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// StoreLazy persists an interaction without embedding or concept
// extraction. Must be ~two orders of magnitude faster than Store: it skips
// the embedding-dimension check entirely and writes a single short INSERT
// DATA with no embedding triple.
func (m *Memory) StoreLazy(ctx context.Context, content string, metadata map[string]string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", semem.Wrap(semem.KindValidation, "store.memory", semem.ErrEmptyContent)
	}
	id := uuid.NewString()
	uri := interactionURI(id)
	now := time.Now().UTC()

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT DATA { GRAPH <%s> {\n", m.graph)
	fmt.Fprintf(&b, "<%s> a semem:Interaction ;\n", uri)
	fmt.Fprintf(&b, "  semem:id \"%s\" ;\n", EscapeLiteral(id))
	fmt.Fprintf(&b, "  semem:prompt \"%s\" ;\n", EscapeLiteral(content))
	fmt.Fprintf(&b, "  semem:timestamp %s ;\n", FormatDateTime(now))
	fmt.Fprintf(&b, "  semem:accessCount 0 ;\n")
	fmt.Fprintf(&b, "  semem:decayFactor 1.0 ;\n")
	fmt.Fprintf(&b, "  semem:memoryType \"%s\" ;\n", MemoryLazy)
	fmt.Fprintf(&b, "  semem:processingStatus \"%s\"", StatusLazy)
	if title, ok := metadata["title"]; ok && title != "" {
		fmt.Fprintf(&b, " ;\n  dcterms:title \"%s\"", EscapeLiteral(title))
	}
	b.WriteString(" .\n}}")

	if err := m.adapter.Update(ctx, b.String()); err != nil {
		return "", semem.Wrap(semem.KindOf(err), "store.memory", err)
	}
	return id, nil
}

// FindLazy returns up to limit interactions still awaiting promotion.
func (m *Memory) FindLazy(ctx context.Context, limit int) ([]Interaction, error) {
	query := fmt.Sprintf(`SELECT ?id ?prompt ?ts WHERE {
  GRAPH <%s> {
    ?s a semem:Interaction ; semem:id ?id ; semem:prompt ?prompt ;
       semem:timestamp ?ts ; semem:processingStatus "%s" .
  }
} LIMIT %d`, m.graph, StatusLazy, limit)

	rb, err := m.adapter.Select(ctx, query)
	if err != nil {
		return nil, semem.Wrap(semem.KindOf(err), "store.memory", err)
	}
	out := make([]Interaction, 0, len(rb.Results.Bindings))
	for _, row := range rb.Results.Bindings {
		ts, _ := time.Parse(time.RFC3339, row["ts"].Value)
		out = append(out, Interaction{
			ID:               row["id"].Value,
			Prompt:           row["prompt"].Value,
			Timestamp:        ts,
			ProcessingStatus: StatusLazy,
			MemoryType:       MemoryLazy,
		})
	}
	return out, nil
}

// PromoteLazy atomically replaces the lazy status with embedding, concept
// corpuscle link, and processingStatus=processed, in one UPDATE (I5: the
// lazy→processed transition is monotonic, never run twice).
func (m *Memory) PromoteLazy(ctx context.Context, id string, embedding []float32, corpuscleURI string) error {
	if len(embedding) != m.dim {
		return semem.Wrap(semem.KindIntegrity, "store.memory", fmt.Errorf("%w: got %d want %d", semem.ErrDimensionMismatch, len(embedding), m.dim))
	}
	uri := interactionURI(id)
	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return semem.Wrap(semem.KindValidation, "store.memory", err)
	}

	update := fmt.Sprintf(`DELETE {
  GRAPH <%[1]s> { <%[2]s> semem:processingStatus "%[3]s" . }
} INSERT {
  GRAPH <%[1]s> {
    <%[2]s> semem:processingStatus "%[4]s" ;
            semem:embedding "%[5]s" ;
            ragno:hasConceptCorpuscle <%[6]s> .
  }
} WHERE {
  GRAPH <%[1]s> { <%[2]s> semem:processingStatus "%[3]s" . }
}`, m.graph, uri, StatusLazy, StatusProcessed, EscapeLiteral(string(embJSON)), corpuscleURI)

	if err := m.adapter.Update(ctx, update); err != nil {
		return semem.Wrap(semem.KindOf(err), "store.memory", err)
	}
	return nil
}

// Touch increments accessCount and nudges decayFactor toward the long-term
// threshold; an event-driven promotion path complementing DecayTick's
// policy-driven sweep (see DESIGN.md open-question decision).
func (m *Memory) Touch(ctx context.Context, id string) error {
	uri := interactionURI(id)
	update := fmt.Sprintf(`DELETE {
  GRAPH <%[1]s> { <%[2]s> semem:accessCount ?oldCount ; semem:decayFactor ?oldDecay . }
} INSERT {
  GRAPH <%[1]s> { <%[2]s> semem:accessCount ?newCount ; semem:decayFactor ?newDecay . }
} WHERE {
  GRAPH <%[1]s> { <%[2]s> semem:accessCount ?oldCount ; semem:decayFactor ?oldDecay . }
  BIND(?oldCount + 1 AS ?newCount)
  BIND(IF(?oldDecay + %[3]f > 1.0, 1.0, ?oldDecay + %[3]f) AS ?newDecay)
}`, m.graph, uri, m.decay)

	if err := m.adapter.Update(ctx, update); err != nil {
		return semem.Wrap(semem.KindOf(err), "store.memory", err)
	}
	return nil
}

// DecayTick sweeps short-term interactions: those whose decayFactor times a
// function of accessCount has crossed the long-term threshold are promoted
// to long-term; others have their decayFactor reduced, lowering retrieval
// priority over time.
func (m *Memory) DecayTick(ctx context.Context) (promoted int, decayed int, err error) {
	query := fmt.Sprintf(`SELECT ?s ?decay ?count WHERE {
  GRAPH <%s> {
    ?s a semem:Interaction ; semem:memoryType "%s" ;
       semem:decayFactor ?decay ; semem:accessCount ?count .
  }
}`, m.graph, MemoryShortTerm)

	rb, err := m.adapter.Select(ctx, query)
	if err != nil {
		return 0, 0, semem.Wrap(semem.KindOf(err), "store.memory", err)
	}

	for _, row := range rb.Results.Bindings {
		uri := row["s"].Value
		decay, _ := strconv.ParseFloat(row["decay"].Value, 64)
		count, _ := strconv.ParseFloat(row["count"].Value, 64)
		score := decay * reinforcementFactor(count)

		if score >= m.longTermThreshold {
			update := fmt.Sprintf(`DELETE { GRAPH <%[1]s> { <%[2]s> semem:memoryType "%[3]s" . } }
INSERT { GRAPH <%[1]s> { <%[2]s> semem:memoryType "%[4]s" . } }
WHERE { GRAPH <%[1]s> { <%[2]s> semem:memoryType "%[3]s" . } }`, m.graph, uri, MemoryShortTerm, MemoryLongTerm)
			if err := m.adapter.Update(ctx, update); err != nil {
				return promoted, decayed, semem.Wrap(semem.KindOf(err), "store.memory", err)
			}
			promoted++
			continue
		}

		newDecay := decay * (1 - m.decay)
		if newDecay < 0 {
			newDecay = 0
		}
		update := fmt.Sprintf(`DELETE { GRAPH <%[1]s> { <%[2]s> semem:decayFactor ?d . } }
INSERT { GRAPH <%[1]s> { <%[2]s> semem:decayFactor %[3]s . } }
WHERE { GRAPH <%[1]s> { <%[2]s> semem:decayFactor ?d . } }`, m.graph, uri, floatLiteral(newDecay))
		if err := m.adapter.Update(ctx, update); err != nil {
			return promoted, decayed, semem.Wrap(semem.KindOf(err), "store.memory", err)
		}
		decayed++
	}
	return promoted, decayed, nil
}

// reinforcementFactor maps access count to a [0,1) multiplier (0 for an
// item never accessed) that saturates as accesses accumulate, so
// frequently-touched items approach the long-term threshold monotonically.
func reinforcementFactor(accessCount float64) float64 {
	return 1 - 1/(1+accessCount)
}

// Search performs a direct linear-scan cosine-similarity search over
// processed interactions. It is the storage-layer primitive behind
// `search(embedding, k, threshold)`; C10's hybrid retriever searches the
// in-memory ANN index instead and does not call it.
func (m *Memory) Search(ctx context.Context, embedding []float32, k int, threshold float64) ([]ScoredInteraction, error) {
	if k == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT ?id ?prompt ?output ?emb ?ts ?title WHERE {
  GRAPH <%s> {
    ?s a semem:Interaction ; semem:id ?id ; semem:prompt ?prompt ;
       semem:processingStatus "%s" ; semem:embedding ?emb ; semem:timestamp ?ts .
    OPTIONAL { ?s semem:output ?output }
    OPTIONAL { ?s dcterms:title ?title }
  }
}`, m.graph, StatusProcessed)

	rb, err := m.adapter.Select(ctx, query)
	if err != nil {
		return nil, semem.Wrap(semem.KindOf(err), "store.memory", err)
	}

	var scored []ScoredInteraction
	for _, row := range rb.Results.Bindings {
		var vec []float32
		if err := json.Unmarshal([]byte(row["emb"].Value), &vec); err != nil {
			continue
		}
		score := CosineSimilarity(embedding, vec)
		if score < threshold {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, row["ts"].Value)
		scored = append(scored, ScoredInteraction{
			Interaction: Interaction{
				ID:        row["id"].Value,
				Prompt:    row["prompt"].Value,
				Output:    row["output"].Value,
				Embedding: vec,
				Timestamp: ts,
				Title:     row["title"].Value,
			},
			Score: score,
		})
	}

	sortScoredDesc(scored)
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func sortScoredDesc(s []ScoredInteraction) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Score > s[j-1].Score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// CosineSimilarity computes cosine similarity between two equal-length
// vectors; returns 0 if lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// GetByURI fetches a single interaction's content by its full URI, the
// lookup the ask verb uses to resolve a retrieval hit's URI into
// displayable title+content for the Context Builder.
func (m *Memory) GetByURI(ctx context.Context, uri string) (Interaction, error) {
	query := fmt.Sprintf(`SELECT ?id ?prompt ?output ?ts ?title WHERE {
  GRAPH <%s> {
    <%s> a semem:Interaction ; semem:id ?id ; semem:prompt ?prompt ; semem:timestamp ?ts .
    OPTIONAL { <%s> semem:output ?output }
    OPTIONAL { <%s> dcterms:title ?title }
  }
}`, m.graph, uri, uri, uri)

	rb, err := m.adapter.Select(ctx, query)
	if err != nil {
		return Interaction{}, semem.Wrap(semem.KindOf(err), "store.memory", err)
	}
	if len(rb.Results.Bindings) == 0 {
		return Interaction{}, semem.Wrap(semem.KindValidation, "store.memory", semem.ErrNotFound)
	}
	row := rb.Results.Bindings[0]
	ts, _ := time.Parse(time.RFC3339, row["ts"].Value)
	return Interaction{
		ID:        row["id"].Value,
		Prompt:    row["prompt"].Value,
		Output:    row["output"].Value,
		Timestamp: ts,
		Title:     row["title"].Value,
	}, nil
}

// ExactMatch resolves the SPARQL-derived exact filter driven by a ZPT pan
// (retrieval.ExactMatcher): every pan value must appear, case-insensitively,
// in a candidate's title, label, or prompt text. An empty pan matches
// nothing — exact match is a narrowing filter, not a browse-everything
// query.
func (m *Memory) ExactMatch(ctx context.Context, pan map[string]string, limit int) ([]string, error) {
	if len(pan) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	keys := make([]string, 0, len(pan))
	for k := range pan {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var filters strings.Builder
	for i, k := range keys {
		needle := EscapeLiteral(strings.ToLower(pan[k]))
		fmt.Fprintf(&filters, `    FILTER EXISTS {
      ?s ?p%[1]d ?t%[1]d .
      FILTER(?p%[1]d IN (dcterms:title, rdfs:label, semem:prompt))
      FILTER(isLiteral(?t%[1]d) && CONTAINS(LCASE(STR(?t%[1]d)), "%[2]s"))
    }
`, i, needle)
	}

	query := fmt.Sprintf(`SELECT DISTINCT ?s WHERE {
  GRAPH <%s> {
    ?s a ?type .
%s  }
} LIMIT %d`, m.graph, filters.String(), limit)

	rb, err := m.adapter.Select(ctx, query)
	if err != nil {
		return nil, semem.Wrap(semem.KindOf(err), "store.memory", err)
	}
	uris := make([]string, 0, len(rb.Results.Bindings))
	for _, row := range rb.Results.Bindings {
		uris = append(uris, row["s"].Value)
	}
	return uris, nil
}

// AllEmbedded returns every processed interaction's URI and embedding, used
// to seed the in-memory ANN index at startup.
func (m *Memory) AllEmbedded(ctx context.Context) (map[string][]float32, error) {
	query := fmt.Sprintf(`SELECT ?s ?emb WHERE {
  GRAPH <%s> {
    ?s a semem:Interaction ; semem:processingStatus "%s" ; semem:embedding ?emb .
  }
}`, m.graph, StatusProcessed)

	rb, err := m.adapter.Select(ctx, query)
	if err != nil {
		return nil, semem.Wrap(semem.KindOf(err), "store.memory", err)
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
