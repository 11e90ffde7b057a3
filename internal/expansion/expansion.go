// Package expansion implements the relationship-aware expander (C5): a
// single-source priority-queue walk over the corpus graph that surfaces
// semantically adjacent provisions the retriever's seeds missed.
package expansion

import (
	"container/heap"
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/superagent/legalengine/internal/graphstore"
	"github.com/superagent/legalengine/internal/models"
)

// Tunables carries the §6.4 knobs this component reads.
type Tunables struct {
	SimilarityThreshold float64
	MaxExpanded         int
}

func (t Tunables) withDefaults() Tunables {
	if t.SimilarityThreshold == 0 {
		t.SimilarityThreshold = 0.75
	}
	if t.MaxExpanded == 0 {
		t.MaxExpanded = 50
	}
	return t
}

// Seed is one retriever hit the expansion walk starts from.
type Seed struct {
	ProvisionID string
	Similarity  float64
}

// Hit is one provision discovered by the walk, beyond the seeds.
type Hit struct {
	ProvisionID   string
	Relevance     float64
	DiscoveryKind models.EdgeKind
}

// Expander runs the RAE walk.
type Expander struct {
	store graphstore.GraphStore
	tun   Tunables
	log   *logrus.Entry
}

func New(store graphstore.GraphStore, tun Tunables, log *logrus.Logger) *Expander {
	if log == nil {
		log = logrus.New()
	}
	return &Expander{store: store, tun: tun.withDefaults(), log: log.WithField("component", "expansion")}
}

type provenance struct {
	predecessor string
	edgeKind    models.EdgeKind
}

// Expand runs the single-source variant described in spec 4.5 over seeds.
// nodeQueryVec (D_node) gates sibling edges that fall back to a neighbor's
// plain node embedding; relQueryVec (D_rel) gates sibling edges that carry
// a relation-space embedding, the documented case (spec 9). Expander hits
// are not filtered by domain membership by design: they may reach into
// sibling domains.
func (e *Expander) Expand(ctx context.Context, seeds []Seed, nodeQueryVec, relQueryVec []float32) ([]Hit, error) {
	if len(seeds) == 0 {
		return nil, nil
	}

	dist := make(map[string]float64, len(seeds)*4)
	reached := make(map[string]struct{}, len(seeds)*4)
	via := make(map[string]provenance, len(seeds)*4)
	embeddingCache := make(map[string][]float32)

	seedSet := make(map[string]struct{}, len(seeds))

	pq := make(frontier, 0, len(seeds))
	for _, s := range seeds {
		cost := 1 - s.Similarity
		dist[s.ProvisionID] = cost
		seedSet[s.ProvisionID] = struct{}{}
		pq = append(pq, frontierItem{cost: cost, provisionID: s.ProvisionID, edgeKind: "seed"})
	}
	heap.Init(&pq)

	for pq.Len() > 0 && len(reached) < e.tun.MaxExpanded {
		item := heap.Pop(&pq).(frontierItem)
		if _, ok := reached[item.provisionID]; ok {
			continue
		}
		if 1-item.cost < e.tun.SimilarityThreshold {
			break
		}
		reached[item.provisionID] = struct{}{}

		neighbors, err := e.store.GetNeighbors(ctx, item.provisionID)
		if err != nil {
			if models.IsTransient(err) {
				e.log.WithError(err).WithField("provision_id", item.provisionID).Warn("expansion neighbor lookup degraded, stopping this branch")
				continue
			}
			return nil, err
		}

		if err := e.primeSiblingEmbeddings(ctx, neighbors, embeddingCache); err != nil {
			return nil, err
		}

		for _, n := range neighbors {
			edgeCost := e.edgeCost(n, nodeQueryVec, relQueryVec, embeddingCache)
			if math.IsInf(edgeCost, 1) {
				continue
			}
			alt := item.cost + edgeCost
			if existing, ok := dist[n.NeighborID]; !ok || alt < existing {
				dist[n.NeighborID] = alt
				via[n.NeighborID] = provenance{predecessor: item.provisionID, edgeKind: n.Kind}
				heap.Push(&pq, frontierItem{cost: alt, provisionID: n.NeighborID, edgeKind: string(n.Kind)})
			}
		}
	}

	out := make([]Hit, 0, len(reached))
	for id := range reached {
		if _, isSeed := seedSet[id]; isSeed {
			continue
		}
		prov, ok := via[id]
		if !ok {
			continue
		}
		out = append(out, Hit{
			ProvisionID:   id,
			Relevance:     1 - dist[id],
			DiscoveryKind: prov.edgeKind,
		})
	}
	sortHits(out, dist)
	return out, nil
}

// edgeCost implements spec 4.5's per-edge-kind cost function. A sibling
// edge's relation-space embedding (D_rel) is only comparable against
// relQueryVec; the node-space fallback fetched by primeSiblingEmbeddings
// (D_node) is only comparable against nodeQueryVec.
func (e *Expander) edgeCost(n models.Neighbor, nodeQueryVec, relQueryVec []float32, embeddingCache map[string][]float32) float64 {
	switch n.Kind {
	case models.EdgeKindParent, models.EdgeKindChild, models.EdgeKindCrossDocument:
		return 0
	case models.EdgeKindSibling:
		if len(n.Payload.RelationEmbedding) > 0 {
			return 1 - cosineSimilarity(relQueryVec, n.Payload.RelationEmbedding)
		}
		if emb, ok := embeddingCache[n.NeighborID]; ok && len(emb) > 0 {
			return 1 - cosineSimilarity(nodeQueryVec, emb)
		}
		return math.Inf(1)
	default:
		return math.Inf(1)
	}
}

// primeSiblingEmbeddings batches a single round-trip to fetch node
// embeddings for sibling neighbors that carry no relation-space embedding
// of their own, per spec 4.5's "the adapter may return only the id and let
// the expander call C1 for missing vectors in batched form".
func (e *Expander) primeSiblingEmbeddings(ctx context.Context, neighbors []models.Neighbor, cache map[string][]float32) error {
	var missing []string
	for _, n := range neighbors {
		if n.Kind != models.EdgeKindSibling || len(n.Payload.RelationEmbedding) > 0 {
			continue
		}
		if _, ok := cache[n.NeighborID]; ok {
			continue
		}
		missing = append(missing, n.NeighborID)
	}
	if len(missing) == 0 {
		return nil
	}

	provisions, err := e.store.BatchGetProvisions(ctx, missing)
	if err != nil {
		if models.IsTransient(err) {
			return nil
		}
		return err
	}
	for _, p := range provisions {
		cache[p.ID] = p.NodeEmbedding
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
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
