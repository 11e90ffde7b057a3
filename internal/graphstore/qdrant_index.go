package graphstore

import (
	"context"
	"fmt"

	qc "github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"

	"github.com/superagent/legalengine/internal/models"
)

// VectorIndexConfig configures the two Qdrant collections backing the
// node-embedding and relation-embedding search channels.
type VectorIndexConfig struct {
	Host                  string
	Port                  int
	APIKey                string
	UseTLS                bool
	NodeCollectionPrefix  string
	RelationCollectionPrefix string
	NodeVectorSize        int
	RelationVectorSize     int
}

func (c VectorIndexConfig) withDefaults() VectorIndexConfig {
	if c.NodeCollectionPrefix == "" {
		c.NodeCollectionPrefix = "provisions"
	}
	if c.RelationCollectionPrefix == "" {
		c.RelationCollectionPrefix = "relations"
	}
	if c.NodeVectorSize == 0 {
		c.NodeVectorSize = 768
	}
	if c.RelationVectorSize == 0 {
		c.RelationVectorSize = 256
	}
	return c
}

// VectorIndex implements the vector-search half of GraphStore: one Qdrant
// collection per domain per embedding space, created on demand.
type VectorIndex struct {
	client *qc.Client
	cfg    VectorIndexConfig
	log    *logrus.Entry
}

// NewVectorIndex dials the Qdrant gRPC endpoint.
func NewVectorIndex(cfg VectorIndexConfig, log *logrus.Logger) (*VectorIndex, error) {
	cfg = cfg.withDefaults()
	client, err := qc.NewClient(&qc.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, models.NewError(models.KindTransientBackend, "failed to construct qdrant client", err)
	}
	if log == nil {
		log = logrus.New()
	}
	return &VectorIndex{client: client, cfg: cfg, log: log.WithField("component", "graphstore.qdrant")}, nil
}

func (v *VectorIndex) nodeCollection(domainID string) string {
	return fmt.Sprintf("%s_%s", v.cfg.NodeCollectionPrefix, domainID)
}

func (v *VectorIndex) relationCollection(domainID string) string {
	return fmt.Sprintf("%s_%s", v.cfg.RelationCollectionPrefix, domainID)
}

// ensureCollection creates a cosine-distance collection if it does not yet
// exist; domains are created lazily the first time a provision is indexed
// into them.
func (v *VectorIndex) ensureCollection(ctx context.Context, name string, size int) error {
	exists, err := v.client.CollectionExists(ctx, name)
	if err != nil {
		return models.NewError(models.KindTransientBackend, "failed to check collection existence", err)
	}
	if exists {
		return nil
	}
	err = v.client.CreateCollection(ctx, &qc.CreateCollection{
		CollectionName: name,
		VectorsConfig: qc.NewVectorsConfig(&qc.VectorParams{
			Size:     uint64(size),
			Distance: qc.Distance_Cosine,
		}),
	})
	if err != nil {
		return models.NewError(models.KindTransientBackend, fmt.Sprintf("failed to create collection %s", name), err)
	}
	return nil
}

// IndexProvision upserts a provision's node embedding (and, if present, its
// relation embedding via IndexRelation is separate) into the domain's node
// collection.
func (v *VectorIndex) IndexProvision(ctx context.Context, domainID string, p *models.Provision) error {
	if len(p.NodeEmbedding) == 0 {
		return models.NewError(models.KindBadRequest, "provision has no node embedding to index", nil)
	}
	collection := v.nodeCollection(domainID)
	if err := v.ensureCollection(ctx, collection, len(p.NodeEmbedding)); err != nil {
		return err
	}

	payload, err := qc.TryValueMap(map[string]any{
		"provision_id":     p.ID,
		"document_title":   p.DocumentTitle,
		"provision_path":   p.ProvisionPath,
		"provision_number": p.ProvisionNumber,
	})
	if err != nil {
		return models.NewError(models.KindBadRequest, "failed to build payload", err)
	}

	_, err = v.client.Upsert(ctx, &qc.UpsertPoints{
		CollectionName: collection,
		Points: []*qc.PointStruct{
			{
				Id:      qc.NewID(p.ID),
				Vectors: qc.NewVectors(p.NodeEmbedding...),
				Payload: payload,
			},
		},
	})
	if err != nil {
		return models.NewError(models.KindTransientBackend, "failed to upsert provision vector", err)
	}
	return nil
}

// IndexRelation upserts one edge's relation-space embedding into the
// domain's relation collection, keyed by edge ID and resolving back to the
// neighbor provision through the payload.
func (v *VectorIndex) IndexRelation(ctx context.Context, domainID, edgeID string, embedding []float32, semanticType models.SemanticType) error {
	if len(embedding) == 0 {
		return models.NewError(models.KindBadRequest, "edge has no relation embedding to index", nil)
	}
	collection := v.relationCollection(domainID)
	if err := v.ensureCollection(ctx, collection, len(embedding)); err != nil {
		return err
	}

	payload, err := qc.TryValueMap(map[string]any{
		"edge_id":       edgeID,
		"semantic_type": string(semanticType),
	})
	if err != nil {
		return models.NewError(models.KindBadRequest, "failed to build payload", err)
	}

	_, err = v.client.Upsert(ctx, &qc.UpsertPoints{
		CollectionName: collection,
		Points: []*qc.PointStruct{
			{
				Id:      qc.NewID(edgeID),
				Vectors: qc.NewVectors(embedding...),
				Payload: payload,
			},
		},
	})
	if err != nil {
		return models.NewError(models.KindTransientBackend, "failed to upsert relation vector", err)
	}
	return nil
}

// VectorSearchProvisions runs the node-embedding channel within one domain.
func (v *VectorIndex) VectorSearchProvisions(ctx context.Context, domainID string, query []float32, topK int) ([]ScoredProvision, error) {
	collection := v.nodeCollection(domainID)
	exists, err := v.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, models.NewError(models.KindTransientBackend, "failed to check collection existence", err)
	}
	if !exists {
		return nil, nil
	}

	points, err := v.client.Query(ctx, &qc.QueryPoints{
		CollectionName: collection,
		Query:          qc.NewQuery(query...),
		Limit:          ptrUint64(uint64(topK)),
		WithPayload:    qc.NewWithPayload(true),
	})
	if err != nil {
		return nil, models.NewError(models.KindTransientBackend, "node embedding search failed", err)
	}

	out := make([]ScoredProvision, 0, len(points))
	for _, pt := range points {
		payload := pt.GetPayload()
		p := &models.Provision{
			ID:              valueToString(payload["provision_id"]),
			DocumentTitle:   valueToString(payload["document_title"]),
			ProvisionPath:   valueToString(payload["provision_path"]),
			ProvisionNumber: valueToString(payload["provision_number"]),
		}
		out = append(out, ScoredProvision{Provision: p, Similarity: float64(pt.GetScore())})
	}
	return out, nil
}

// VectorSearchRelations runs the relation-embedding channel within one
// domain, resolving each matched edge to the provision it points at; the
// caller supplies that resolution externally since the relation collection
// only knows the edge ID and semantic type.
func (v *VectorIndex) VectorSearchRelations(ctx context.Context, domainID string, query []float32, topK int) ([]ScoredRelation, error) {
	collection := v.relationCollection(domainID)
	exists, err := v.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, models.NewError(models.KindTransientBackend, "failed to check collection existence", err)
	}
	if !exists {
		return nil, nil
	}

	points, err := v.client.Query(ctx, &qc.QueryPoints{
		CollectionName: collection,
		Query:          qc.NewQuery(query...),
		Limit:          ptrUint64(uint64(topK)),
		WithPayload:    qc.NewWithPayload(true),
	})
	if err != nil {
		return nil, models.NewError(models.KindTransientBackend, "relation embedding search failed", err)
	}

	out := make([]ScoredRelation, 0, len(points))
	for _, pt := range points {
		payload := pt.GetPayload()
		out = append(out, ScoredRelation{
			ProvisionID:  valueToString(payload["edge_id"]),
			Similarity:   float64(pt.GetScore()),
			SemanticType: models.SemanticType(valueToString(payload["semantic_type"])),
		})
	}
	return out, nil
}

func (v *VectorIndex) Close() error {
	return v.client.Close()
}

// Ping verifies the gRPC connection to Qdrant is healthy by probing for a
// collection that will never exist; any response (true or false) proves the
// connection and the Qdrant service are both alive.
func (v *VectorIndex) Ping(ctx context.Context) error {
	if _, err := v.client.CollectionExists(ctx, "__healthcheck_probe__"); err != nil {
		return models.NewError(models.KindTransientBackend, "qdrant health check failed", err)
	}
	return nil
}

func ptrUint64(v uint64) *uint64 { return &v }

func valueToString(v *qc.Value) string {
	if v == nil {
		return ""
	}
	return v.GetStringValue()
}
