package expansion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superagent/legalengine/internal/graphstore"
	"github.com/superagent/legalengine/internal/models"
)

type fakeGraph struct {
	neighbors  map[string][]models.Neighbor
	provisions map[string]*models.Provision
}

func (f *fakeGraph) GetProvision(ctx context.Context, id string) (*models.Provision, error) {
	return f.provisions[id], nil
}

func (f *fakeGraph) BatchGetProvisions(ctx context.Context, ids []string) ([]*models.Provision, error) {
	var out []*models.Provision
	for _, id := range ids {
		if p, ok := f.provisions[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeGraph) VectorSearchProvisions(ctx context.Context, domainID string, query []float32, topK int) ([]graphstore.ScoredProvision, error) {
	return nil, nil
}

func (f *fakeGraph) VectorSearchRelations(ctx context.Context, domainID string, query []float32, topK int) ([]graphstore.ScoredRelation, error) {
	return nil, nil
}

func (f *fakeGraph) GetNeighbors(ctx context.Context, provisionID string) ([]models.Neighbor, error) {
	return f.neighbors[provisionID], nil
}

func (f *fakeGraph) FindByIdentifierPattern(ctx context.Context, domainID, pattern string) ([]*models.Provision, error) {
	return nil, nil
}

func (f *fakeGraph) UpsertDomain(ctx context.Context, domain *models.Domain) error { return nil }
func (f *fakeGraph) ReplaceAssignments(ctx context.Context, domainID string, provisionIDs []string, similarities map[string]float64) error {
	return nil
}
func (f *fakeGraph) DeleteDomain(ctx context.Context, domainID string) error { return nil }
func (f *fakeGraph) IndexProvision(ctx context.Context, domainID string, p *models.Provision) error {
	return nil
}
func (f *fakeGraph) IndexRelation(ctx context.Context, domainID, edgeID string, embedding []float32, semanticType models.SemanticType) error {
	return nil
}
func (f *fakeGraph) Close(ctx context.Context) error { return nil }

var _ graphstore.GraphStore = (*fakeGraph)(nil)

func TestExpandTraversesParentAtZeroCost(t *testing.T) {
	store := &fakeGraph{
		neighbors: map[string][]models.Neighbor{
			"seed": {{NeighborID: "parent1", Kind: models.EdgeKindParent}},
		},
	}
	e := New(store, Tunables{SimilarityThreshold: 0.5, MaxExpanded: 10}, nil)

	hits, err := e.Expand(context.Background(), []Seed{{ProvisionID: "seed", Similarity: 0.9}}, []float32{1, 0}, []float32{1, 0, 0})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "parent1", hits[0].ProvisionID)
	assert.InDelta(t, 0.9, hits[0].Relevance, 1e-9)
	assert.Equal(t, models.EdgeKindParent, hits[0].DiscoveryKind)
}

func TestExpandSiblingCostFromRelationEmbedding(t *testing.T) {
	store := &fakeGraph{
		neighbors: map[string][]models.Neighbor{
			"seed": {{
				NeighborID: "sib1",
				Kind:       models.EdgeKindSibling,
				Payload:    models.EdgePayload{RelationEmbedding: []float32{1, 0, 0}},
			}},
		},
	}
	e := New(store, Tunables{SimilarityThreshold: 0.1, MaxExpanded: 10}, nil)

	// nodeQueryVec is deliberately a different dimension and orthogonal to
	// the sibling's relation embedding: if edgeCost ever compared it against
	// RelationEmbedding instead of relQueryVec this would wrongly cost out.
	hits, err := e.Expand(context.Background(), []Seed{{ProvisionID: "seed", Similarity: 1.0}}, []float32{0, 1}, []float32{1, 0, 0})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Relevance, 1e-9)
}

func TestExpandSiblingFallsBackToNodeEmbeddingWhenNoRelationEmbedding(t *testing.T) {
	store := &fakeGraph{
		neighbors: map[string][]models.Neighbor{
			"seed": {{NeighborID: "sib1", Kind: models.EdgeKindSibling}},
		},
		provisions: map[string]*models.Provision{
			"sib1": {ID: "sib1", NodeEmbedding: []float32{0, 1}},
		},
	}
	e := New(store, Tunables{SimilarityThreshold: 0.0, MaxExpanded: 10}, nil)

	hits, err := e.Expand(context.Background(), []Seed{{ProvisionID: "seed", Similarity: 1.0}}, []float32{1, 0}, []float32{0, 1, 0})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 0.0, hits[0].Relevance, 1e-9)
}

func TestExpandUnknownEdgeKindSkipped(t *testing.T) {
	store := &fakeGraph{
		neighbors: map[string][]models.Neighbor{
			"seed": {{NeighborID: "weird1", Kind: models.EdgeKind("unknown")}},
		},
	}
	e := New(store, Tunables{SimilarityThreshold: 0.1, MaxExpanded: 10}, nil)

	hits, err := e.Expand(context.Background(), []Seed{{ProvisionID: "seed", Similarity: 1.0}}, []float32{1, 0}, []float32{1, 0, 0})
	require.NoError(t, err)
	assert.Len(t, hits, 0)
}

func TestExpandStopsAtSimilarityThreshold(t *testing.T) {
	store := &fakeGraph{
		neighbors: map[string][]models.Neighbor{
			"seed": {{
				NeighborID: "far",
				Kind:       models.EdgeKindSibling,
				Payload:    models.EdgePayload{RelationEmbedding: []float32{0, 1, 0}},
			}},
		},
	}
	e := New(store, Tunables{SimilarityThreshold: 0.9, MaxExpanded: 10}, nil)

	hits, err := e.Expand(context.Background(), []Seed{{ProvisionID: "seed", Similarity: 1.0}}, []float32{1, 0}, []float32{1, 0, 0})
	require.NoError(t, err)
	assert.Len(t, hits, 0)
}

func TestExpandRespectsMaxExpanded(t *testing.T) {
	store := &fakeGraph{
		neighbors: map[string][]models.Neighbor{
			"seed": {
				{NeighborID: "p1", Kind: models.EdgeKindParent},
				{NeighborID: "p2", Kind: models.EdgeKindChild},
				{NeighborID: "p3", Kind: models.EdgeKindCrossDocument},
			},
		},
	}
	e := New(store, Tunables{SimilarityThreshold: 0.0, MaxExpanded: 1}, nil)

	hits, err := e.Expand(context.Background(), []Seed{{ProvisionID: "seed", Similarity: 1.0}}, []float32{1, 0}, []float32{1, 0, 0})
	require.NoError(t, err)
	assert.Len(t, hits, 0)
}
