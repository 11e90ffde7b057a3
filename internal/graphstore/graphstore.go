// Package graphstore adapts the labeled property graph holding documents,
// section containers and provisions, plus the two vector indexes built over
// provision and relation embeddings.
package graphstore

import (
	"context"

	"github.com/superagent/legalengine/internal/models"
)

// GraphStore is the single abstraction the rest of the engine uses to reach
// the corpus graph and its vector indexes. Neo4j backs the graph operations,
// Qdrant backs the two VectorSearch* operations.
type GraphStore interface {
	GetProvision(ctx context.Context, id string) (*models.Provision, error)
	BatchGetProvisions(ctx context.Context, ids []string) ([]*models.Provision, error)

	VectorSearchProvisions(ctx context.Context, domainID string, query []float32, topK int) ([]ScoredProvision, error)
	VectorSearchRelations(ctx context.Context, domainID string, query []float32, topK int) ([]ScoredRelation, error)

	GetNeighbors(ctx context.Context, provisionID string) ([]models.Neighbor, error)
	FindByIdentifierPattern(ctx context.Context, domainID, pattern string) ([]*models.Provision, error)

	UpsertDomain(ctx context.Context, domain *models.Domain) error
	ReplaceAssignments(ctx context.Context, domainID string, provisionIDs []string, similarities map[string]float64) error
	DeleteDomain(ctx context.Context, domainID string) error

	IndexProvision(ctx context.Context, domainID string, p *models.Provision) error
	IndexRelation(ctx context.Context, domainID, edgeID string, embedding []float32, semanticType models.SemanticType) error

	Close(ctx context.Context) error
}

// ScoredProvision is one hit from the node-embedding vector channel.
type ScoredProvision struct {
	Provision  *models.Provision
	Similarity float64
}

// ScoredRelation is one hit from the relation-embedding vector channel: it
// resolves to the provision at the far end of the matched edge.
type ScoredRelation struct {
	ProvisionID string
	Similarity  float64
	SemanticType models.SemanticType
}
