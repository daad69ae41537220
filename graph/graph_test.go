package graph

import (
	"context"
	"testing"

	"github.com/danja/semem/store"
)

type fakeCorpuscles struct{ embedded map[string][]float32 }

func (f fakeCorpuscles) AllEmbedded(ctx context.Context) (map[string][]float32, error) {
	return f.embedded, nil
}

type fakeEntities struct {
	labelsByOwner map[string][]string
}

func (f fakeEntities) EntitiesByURI(ctx context.Context) (map[string]store.Entity, error) {
	return nil, nil
}

func (f fakeEntities) EntityLabelsByOwner(ctx context.Context) (map[string][]string, error) {
	return f.labelsByOwner, nil
}

type fakeWriter struct {
	sweepID string
	rels    []store.Relationship
}

func (f *fakeWriter) ReplaceRelationships(ctx context.Context, sweepID string, rels []store.Relationship) error {
	f.sweepID = sweepID
	f.rels = rels
	return nil
}

func TestSweepProducesSimilarityAndEntityMatchEdges(t *testing.T) {
	corp := fakeCorpuscles{embedded: map[string][]float32{
		"a": {1, 0, 0},
		"b": {1, 0.01, 0},
		"c": {0, 1, 0},
	}}
	ents := fakeEntities{labelsByOwner: map[string][]string{
		"a": {"Acme Corp", "Widget"},
		"b": {"Acme Corp"},
		"c": {"Other Co"},
	}}
	writer := &fakeWriter{}

	b := NewBuilder(corp, ents, writer, DefaultConfig(), nil)
	if err := b.Sweep(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if writer.sweepID == "" {
		t.Fatal("expected a sweep id to be recorded")
	}

	var sawSim, sawMatch bool
	for _, r := range writer.rels {
		if r.Type == store.RelSimilarity {
			sawSim = true
		}
		if r.Type == store.RelEntityMatch {
			sawMatch = true
		}
		if r.Weight < 0 || r.Weight > 1 {
			t.Fatalf("relationship weight out of [0,1]: %v", r.Weight)
		}
	}
	if !sawSim {
		t.Fatal("expected at least one similarity edge for near-identical vectors a,b")
	}
	if !sawMatch {
		t.Fatal("expected at least one entity-match edge for shared label Acme Corp")
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	corp := fakeCorpuscles{embedded: map[string][]float32{"a": {1, 0}, "b": {1, 0}}}
	ents := fakeEntities{labelsByOwner: map[string][]string{"a": {"X"}, "b": {"X"}}}
	writer := &fakeWriter{}
	b := NewBuilder(corp, ents, writer, DefaultConfig(), nil)

	if err := b.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := len(writer.rels)
	if err := b.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	second := len(writer.rels)
	if first != second {
		t.Fatalf("expected re-running the sweep to produce the same edge count, got %d then %d", first, second)
	}
}

func TestPersonalizedPageRankConvergesAndStaysNonNegative(t *testing.T) {
	rels := []store.Relationship{
		{Source: "a", Target: "b", Weight: 1, Type: store.RelSimilarity},
		{Source: "b", Target: "c", Weight: 1, Type: store.RelSimilarity},
		{Source: "c", Target: "a", Weight: 1, Type: store.RelSimilarity},
	}
	adj := BuildAdjacency(rels)
	scores := PersonalizedPageRank(adj, []string{"a"}, DefaultPPRConfig())

	if len(scores) != 3 {
		t.Fatalf("expected scores for 3 nodes, got %d", len(scores))
	}
	for n, s := range scores {
		if s < 0 {
			t.Fatalf("node %s has negative score %v", n, s)
		}
	}
	if scores["a"] <= scores["c"] {
		t.Fatalf("expected seed node a to retain higher mass than distant node c: a=%v c=%v", scores["a"], scores["c"])
	}
}

func TestPersonalizedPageRankEmptySeeds(t *testing.T) {
	adj := BuildAdjacency(nil)
	if got := PersonalizedPageRank(adj, nil, DefaultPPRConfig()); got != nil {
		t.Fatalf("expected nil for empty seeds, got %v", got)
	}
}
