package graphstore

import (
	"context"

	"github.com/superagent/legalengine/internal/models"
)

// CompositeStore pairs the Neo4j graph adapter with the Qdrant vector index
// behind the single GraphStore interface the rest of the engine depends on.
type CompositeStore struct {
	*Neo4jStore
	vectors *VectorIndex
}

var _ GraphStore = (*CompositeStore)(nil)

func NewCompositeStore(graph *Neo4jStore, vectors *VectorIndex) *CompositeStore {
	return &CompositeStore{Neo4jStore: graph, vectors: vectors}
}

func (c *CompositeStore) VectorSearchProvisions(ctx context.Context, domainID string, query []float32, topK int) ([]ScoredProvision, error) {
	return c.vectors.VectorSearchProvisions(ctx, domainID, query, topK)
}

func (c *CompositeStore) VectorSearchRelations(ctx context.Context, domainID string, query []float32, topK int) ([]ScoredRelation, error) {
	return c.vectors.VectorSearchRelations(ctx, domainID, query, topK)
}

func (c *CompositeStore) IndexProvision(ctx context.Context, domainID string, p *models.Provision) error {
	return c.vectors.IndexProvision(ctx, domainID, p)
}

func (c *CompositeStore) IndexRelation(ctx context.Context, domainID, edgeID string, embedding []float32, semanticType models.SemanticType) error {
	return c.vectors.IndexRelation(ctx, domainID, edgeID, embedding, semanticType)
}

func (c *CompositeStore) Close(ctx context.Context) error {
	vecErr := c.vectors.Close()
	graphErr := c.Neo4jStore.Close(ctx)
	if graphErr != nil {
		return graphErr
	}
	return vecErr
}
