// Package graph implements the Relationship Builder (C9) sweep passes
// (similarity, entity-match, community-bridge) and the personalized
// PageRank traversal used by the Hybrid Retriever (C10).
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danja/semem"
	"github.com/danja/semem/store"
)

// CorpuscleSource is the narrow read interface the similarity sweep needs:
// every embedded corpuscle/chunk/interaction in the graph.
type CorpuscleSource interface {
	AllEmbedded(ctx context.Context) (map[string][]float32, error)
}

// EntitySource is the narrow read interface the entity-match sweep needs.
type EntitySource interface {
	EntitiesByURI(ctx context.Context) (map[string]store.Entity, error)
	EntityLabelsByOwner(ctx context.Context) (map[string][]string, error)
}

// RelationshipWriter persists sweep output.
type RelationshipWriter interface {
	ReplaceRelationships(ctx context.Context, sweepID string, rels []store.Relationship) error
}

// Config tunes the sweep thresholds (§4.9).
type Config struct {
	SimilarityThreshold  float64 // τ_sim, default 0.10
	SkipCommunityBridge  bool
}

func DefaultConfig() Config {
	return Config{SimilarityThreshold: 0.10}
}

// Builder is the Relationship Builder (C9).
type Builder struct {
	corpuscles CorpuscleSource
	entities   EntitySource
	writer     RelationshipWriter
	cfg        Config
	log        *slog.Logger
}

func NewBuilder(corpuscles CorpuscleSource, entities EntitySource, writer RelationshipWriter, cfg Config, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{corpuscles: corpuscles, entities: entities, writer: writer, cfg: cfg, log: log}
}

// Sweep runs all configured passes and replaces prior edges of the same
// (source, target, type) produced by a previous sweep (idempotent re-run,
// §4.9 and §8).
func (b *Builder) Sweep(ctx context.Context) error {
	sweepID := uuid.NewString()
	now := time.Now().UTC()

	embedded, err := b.corpuscles.AllEmbedded(ctx)
	if err != nil {
		return semem.Wrap(semem.KindOf(err), "graph.builder", fmt.Errorf("loading embedded corpuscles: %w", err))
	}
	simRels := b.similaritySweep(embedded, sweepID, now)

	entityLabels, err := b.entities.EntityLabelsByOwner(ctx)
	if err != nil {
		return semem.Wrap(semem.KindOf(err), "graph.builder", fmt.Errorf("loading entity labels: %w", err))
	}
	matchRels := b.entityMatchSweep(entityLabels, sweepID, now)

	var bridgeRels []store.Relationship
	if !b.cfg.SkipCommunityBridge {
		bridgeRels = b.communityBridgeSweep(entityLabels, matchRels, sweepID, now)
	}

	all := append(append(simRels, matchRels...), bridgeRels...)
	if err := b.writer.ReplaceRelationships(ctx, sweepID, all); err != nil {
		return semem.Wrap(semem.KindOf(err), "graph.builder", err)
	}
	b.log.Info("graph: sweep complete", "sweepId", sweepID, "similarity", len(simRels), "entityMatch", len(matchRels), "communityBridge", len(bridgeRels))
	return nil
}

// similaritySweep emits a similarity edge for every pair of corpuscles
// whose cosine similarity is at least τ_sim, weighted by that similarity
// and then scaled by normalizeWeights.
func (b *Builder) similaritySweep(embedded map[string][]float32, sweepID string, ts time.Time) []store.Relationship {
	uris := make([]string, 0, len(embedded))
	for u := range embedded {
		uris = append(uris, u)
	}
	sort.Strings(uris)

	var rels []store.Relationship
	outgoing := make(map[string]float64)
	for i := 0; i < len(uris); i++ {
		for j := i + 1; j < len(uris); j++ {
			sim := store.CosineSimilarity(embedded[uris[i]], embedded[uris[j]])
			if sim < b.cfg.SimilarityThreshold {
				continue
			}
			rels = append(rels, store.Relationship{
				URI:       relationshipURI(sweepID, len(rels)),
				Source:    uris[i],
				Target:    uris[j],
				Type:      store.RelSimilarity,
				Weight:    sim,
				SweepID:   sweepID,
				Timestamp: ts,
			})
			outgoing[uris[i]] += sim
		}
	}
	return normalizeWeights(rels, store.RelSimilarity)
}

// entityMatchSweep emits an edge for every pair of owners sharing at least
// one extracted entity label (case-insensitive), weighted by the Jaccard
// index of their entity label sets and then scaled by normalizeWeights.
func (b *Builder) entityMatchSweep(labelsByOwner map[string][]string, sweepID string, ts time.Time) []store.Relationship {
	owners := make([]string, 0, len(labelsByOwner))
	sets := make(map[string]map[string]bool, len(labelsByOwner))
	for owner, labels := range labelsByOwner {
		owners = append(owners, owner)
		set := make(map[string]bool, len(labels))
		for _, l := range labels {
			set[strings.ToLower(strings.TrimSpace(l))] = true
		}
		sets[owner] = set
	}
	sort.Strings(owners)

	var rels []store.Relationship
	for i := 0; i < len(owners); i++ {
		for j := i + 1; j < len(owners); j++ {
			jac := jaccard(sets[owners[i]], sets[owners[j]])
			if jac <= 0 {
				continue
			}
			rels = append(rels, store.Relationship{
				URI:       relationshipURI(sweepID, len(rels)+100000),
				Source:    owners[i],
				Target:    owners[j],
				Type:      store.RelEntityMatch,
				Weight:    jac,
				SweepID:   sweepID,
				Timestamp: ts,
			})
		}
	}
	return normalizeWeights(rels, store.RelEntityMatch)
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// normalizeWeights enforces I4: for any source entity, the sum of
// outgoing weights of one type is <= 1.
func normalizeWeights(rels []store.Relationship, typ store.RelationshipType) []store.Relationship {
	totals := make(map[string]float64)
	for _, r := range rels {
		totals[r.Source] += r.Weight
	}
	for i := range rels {
		if total := totals[rels[i].Source]; total > 1 {
			rels[i].Weight = rels[i].Weight / total
		}
	}
	return rels
}

func relationshipURI(sweepID string, idx int) string {
	return fmt.Sprintf("http://purl.org/stuff/ragno/relationship/%s/%d", sweepID, idx)
}
