package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/superagent/legalengine/internal/models"
)

// Config configures the Neo4j graph driver behind a Neo4jStore and its retry
// policy; the Qdrant vector index is configured separately by
// VectorIndexConfig.
type Config struct {
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Neo4jDatabase == "" {
		c.Neo4jDatabase = "neo4j"
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 100 * time.Millisecond
	}
	return c
}

// Neo4jStore implements the graph half of GraphStore: hierarchy lookups,
// neighbor walks, domain membership and identifier search. It is paired with
// a VectorIndex (Qdrant) through CompositeStore for the full GraphStore.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	cfg    Config
	log    *logrus.Entry
}

// NewNeo4jStore dials the driver and verifies connectivity.
func NewNeo4jStore(ctx context.Context, cfg Config, log *logrus.Logger) (*Neo4jStore, error) {
	cfg = cfg.withDefaults()
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
	if err != nil {
		return nil, models.NewError(models.KindTransientBackend, "failed to construct neo4j driver", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, models.NewError(models.KindTransientBackend, "neo4j connectivity check failed", err)
	}
	if log == nil {
		log = logrus.New()
	}
	return &Neo4jStore{driver: driver, cfg: cfg, log: log.WithField("component", "graphstore.neo4j")}, nil
}

func (s *Neo4jStore) session(ctx context.Context, accessMode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.cfg.Neo4jDatabase,
		AccessMode:   accessMode,
	})
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping verifies the driver can still reach the cluster, for health checks.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return models.NewError(models.KindTransientBackend, "neo4j connectivity check failed", err)
	}
	return nil
}

func classifyNeo4jErr(err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsNeo4jError(err) {
		return models.NewError(models.KindConstraintViolation, "graph constraint violation", err)
	}
	return models.NewError(models.KindTransientBackend, "graph store call failed", err)
}

// GetProvision fetches one provision node plus its denormalized fields.
func (s *Neo4jStore) GetProvision(ctx context.Context, id string) (*models.Provision, error) {
	return withRetry(ctx, s.cfg.RetryMaxAttempts, s.cfg.RetryBaseDelay, func(ctx context.Context) (*models.Provision, error) {
		session := s.session(ctx, neo4j.AccessModeRead)
		defer session.Close(ctx)

		result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransactionWithContext) (any, error) {
			records, err := tx.Run(ctx, `
				MATCH (p:Provision {id: $id})
				OPTIONAL MATCH (d:Document)-[:CONTAINS*]->(p)
				RETURN p, d.title AS documentTitle
				LIMIT 1`, map[string]any{"id": id})
			if err != nil {
				return nil, err
			}
			record, err := records.Single(ctx)
			if err != nil {
				return nil, err
			}
			return recordToProvision(record)
		})
		if err != nil {
			if isNoRows(err) {
				return nil, models.NewError(models.KindNotFound, fmt.Sprintf("provision %q not found", id), err)
			}
			return nil, classifyNeo4jErr(err)
		}
		return result.(*models.Provision), nil
	})
}

// BatchGetProvisions fetches many provisions in one round trip, tolerating
// missing IDs by simply omitting them from the result.
func (s *Neo4jStore) BatchGetProvisions(ctx context.Context, ids []string) ([]*models.Provision, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return withRetry(ctx, s.cfg.RetryMaxAttempts, s.cfg.RetryBaseDelay, func(ctx context.Context) ([]*models.Provision, error) {
		session := s.session(ctx, neo4j.AccessModeRead)
		defer session.Close(ctx)

		result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransactionWithContext) (any, error) {
			records, err := tx.Run(ctx, `
				MATCH (p:Provision)
				WHERE p.id IN $ids
				OPTIONAL MATCH (d:Document)-[:CONTAINS*]->(p)
				RETURN p, d.title AS documentTitle`, map[string]any{"ids": ids})
			if err != nil {
				return nil, err
			}
			var out []*models.Provision
			for records.Next(ctx) {
				p, err := recordToProvision(records.Record())
				if err != nil {
					return nil, err
				}
				out = append(out, p)
			}
			return out, records.Err()
		})
		if err != nil {
			return nil, classifyNeo4jErr(err)
		}
		return result.([]*models.Provision), nil
	})
}

// GetNeighbors returns every edge incident to provisionID, typed and carrying
// whatever payload the relationship-aware expander needs for its cost
// function.
func (s *Neo4jStore) GetNeighbors(ctx context.Context, provisionID string) ([]models.Neighbor, error) {
	return withRetry(ctx, s.cfg.RetryMaxAttempts, s.cfg.RetryBaseDelay, func(ctx context.Context) ([]models.Neighbor, error) {
		session := s.session(ctx, neo4j.AccessModeRead)
		defer session.Close(ctx)

		result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransactionWithContext) (any, error) {
			records, err := tx.Run(ctx, `
				MATCH (p:Provision {id: $id})-[r]-(n:Provision)
				RETURN n.id AS neighborID, type(r) AS edgeType, r.semantic_type AS semanticType,
				       r.keywords AS keywords, r.position AS position
			`, map[string]any{"id": provisionID})
			if err != nil {
				return nil, err
			}
			var out []models.Neighbor
			for records.Next(ctx) {
				rec := records.Record()
				neighbor, err := recordToNeighbor(rec)
				if err != nil {
					return nil, err
				}
				out = append(out, neighbor)
			}
			return out, records.Err()
		})
		if err != nil {
			return nil, classifyNeo4jErr(err)
		}
		return result.([]models.Neighbor), nil
	})
}

// FindByIdentifierPattern runs the exact-identifier channel: a caller-parsed
// pattern (e.g. "Article 14") is matched as a substring of each provision's
// number or id, within one domain's membership.
func (s *Neo4jStore) FindByIdentifierPattern(ctx context.Context, domainID, pattern string) ([]*models.Provision, error) {
	return withRetry(ctx, s.cfg.RetryMaxAttempts, s.cfg.RetryBaseDelay, func(ctx context.Context) ([]*models.Provision, error) {
		session := s.session(ctx, neo4j.AccessModeRead)
		defer session.Close(ctx)

		result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransactionWithContext) (any, error) {
			records, err := tx.Run(ctx, `
				MATCH (dm:Domain {id: $domainID})-[:ASSIGNED]->(p:Provision)
				WHERE p.provision_number CONTAINS $pattern OR p.id CONTAINS $pattern
				OPTIONAL MATCH (d:Document)-[:CONTAINS*]->(p)
				RETURN p, d.title AS documentTitle
				LIMIT 50`, map[string]any{"domainID": domainID, "pattern": pattern})
			if err != nil {
				return nil, err
			}
			var out []*models.Provision
			for records.Next(ctx) {
				p, err := recordToProvision(records.Record())
				if err != nil {
					return nil, err
				}
				out = append(out, p)
			}
			return out, records.Err()
		})
		if err != nil {
			return nil, classifyNeo4jErr(err)
		}
		return result.([]*models.Provision), nil
	})
}

// UpsertDomain writes (or updates) a Domain node's scalar properties and its
// centroid, so a restarted registry can rehydrate cluster state from the
// graph instead of recomputing it from scratch.
func (s *Neo4jStore) UpsertDomain(ctx context.Context, domain *models.Domain) error {
	_, err := withRetry(ctx, s.cfg.RetryMaxAttempts, s.cfg.RetryBaseDelay, func(ctx context.Context) (struct{}, error) {
		session := s.session(ctx, neo4j.AccessModeWrite)
		defer session.Close(ctx)

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransactionWithContext) (any, error) {
			return tx.Run(ctx, `
				MERGE (dm:Domain {id: $id})
				SET dm.label = $label, dm.cardinality = $cardinality,
				    dm.centroid = $centroid, dm.updated_at = datetime()`,
				map[string]any{
					"id":          domain.ID,
					"label":       domain.Label,
					"cardinality": domain.Cardinality,
					"centroid":    float32sToFloat64s(domain.Centroid),
				})
		})
		return struct{}{}, err
	})
	if err != nil {
		return classifyNeo4jErr(err)
	}
	return nil
}

// ListDomains returns every Domain node currently in the graph, used at
// startup to rehydrate the registry's in-memory cluster state.
func (s *Neo4jStore) ListDomains(ctx context.Context) ([]*models.Domain, error) {
	return withRetry(ctx, s.cfg.RetryMaxAttempts, s.cfg.RetryBaseDelay, func(ctx context.Context) ([]*models.Domain, error) {
		session := s.session(ctx, neo4j.AccessModeRead)
		defer session.Close(ctx)

		result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransactionWithContext) (any, error) {
			records, err := tx.Run(ctx, `MATCH (dm:Domain) RETURN dm`, nil)
			if err != nil {
				return nil, err
			}
			var out []*models.Domain
			for records.Next(ctx) {
				d, err := recordToDomain(records.Record())
				if err != nil {
					return nil, err
				}
				out = append(out, d)
			}
			return out, records.Err()
		})
		if err != nil {
			return nil, classifyNeo4jErr(err)
		}
		return result.([]*models.Domain), nil
	})
}

// ListAssignments returns the current provision -> domain membership map,
// the other half of registry rehydration alongside ListDomains.
func (s *Neo4jStore) ListAssignments(ctx context.Context) (map[string]string, error) {
	return withRetry(ctx, s.cfg.RetryMaxAttempts, s.cfg.RetryBaseDelay, func(ctx context.Context) (map[string]string, error) {
		session := s.session(ctx, neo4j.AccessModeRead)
		defer session.Close(ctx)

		result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransactionWithContext) (any, error) {
			records, err := tx.Run(ctx, `
				MATCH (dm:Domain)-[:ASSIGNED]->(p:Provision)
				RETURN dm.id AS domainID, p.id AS provisionID`, nil)
			if err != nil {
				return nil, err
			}
			out := make(map[string]string)
			for records.Next(ctx) {
				rec := records.Record()
				domainID, _ := rec.Get("domainID")
				provisionID, _ := rec.Get("provisionID")
				did, ok1 := domainID.(string)
				pid, ok2 := provisionID.(string)
				if ok1 && ok2 {
					out[pid] = did
				}
			}
			return out, records.Err()
		})
		if err != nil {
			return nil, classifyNeo4jErr(err)
		}
		return result.(map[string]string), nil
	})
}

// ReplaceAssignments atomically swaps a domain's provision membership edges,
// used by the registry's rebalance/split/merge operations (spec 5.3). Each
// edge carries the cosine similarity of the provision's node embedding to
// the domain's centroid at assignment time (spec 3.1), supplied by the
// caller in similarities; a provision absent from that map gets no
// similarity property rather than a fabricated one.
func (s *Neo4jStore) ReplaceAssignments(ctx context.Context, domainID string, provisionIDs []string, similarities map[string]float64) error {
	assignments := make([]map[string]any, len(provisionIDs))
	for i, pid := range provisionIDs {
		a := map[string]any{"provisionID": pid}
		if sim, ok := similarities[pid]; ok {
			a["similarity"] = sim
		}
		assignments[i] = a
	}

	_, err := withRetry(ctx, s.cfg.RetryMaxAttempts, s.cfg.RetryBaseDelay, func(ctx context.Context) (struct{}, error) {
		session := s.session(ctx, neo4j.AccessModeWrite)
		defer session.Close(ctx)

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransactionWithContext) (any, error) {
			if _, err := tx.Run(ctx, `
				MATCH (dm:Domain {id: $id})-[r:ASSIGNED]->(:Provision)
				DELETE r`, map[string]any{"id": domainID}); err != nil {
				return nil, err
			}
			return tx.Run(ctx, `
				MATCH (dm:Domain {id: $id})
				UNWIND $assignments AS a
				MATCH (p:Provision {id: a.provisionID})
				MERGE (dm)-[r:ASSIGNED]->(p)
				SET r.similarity = a.similarity`,
				map[string]any{"id": domainID, "assignments": assignments})
		})
		return struct{}{}, err
	})
	if err != nil {
		return classifyNeo4jErr(err)
	}
	return nil
}

// DeleteDomain removes a domain node and its membership edges, leaving
// provisions and the underlying corpus graph untouched.
func (s *Neo4jStore) DeleteDomain(ctx context.Context, domainID string) error {
	_, err := withRetry(ctx, s.cfg.RetryMaxAttempts, s.cfg.RetryBaseDelay, func(ctx context.Context) (struct{}, error) {
		session := s.session(ctx, neo4j.AccessModeWrite)
		defer session.Close(ctx)

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransactionWithContext) (any, error) {
			return tx.Run(ctx, `
				MATCH (dm:Domain {id: $id})
				DETACH DELETE dm`, map[string]any{"id": domainID})
		})
		return struct{}{}, err
	})
	if err != nil {
		return classifyNeo4jErr(err)
	}
	return nil
}

func isNoRows(err error) bool {
	return err != nil && err.Error() == "Result contains no more records"
}

func recordToProvision(record *neo4j.Record) (*models.Provision, error) {
	node, ok := record.Get("p")
	if !ok {
		return nil, fmt.Errorf("record missing provision node")
	}
	n, ok := node.(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected provision node type %T", node)
	}
	p := &models.Provision{}
	if v, ok := n.Props["id"].(string); ok {
		p.ID = v
	}
	if v, ok := n.Props["content"].(string); ok {
		p.Content = v
	}
	if v, ok := n.Props["provision_number"].(string); ok {
		p.ProvisionNumber = v
	}
	if v, ok := n.Props["provision_path"].(string); ok {
		p.ProvisionPath = v
	}
	if v, ok := n.Props["is_sub_provision"].(bool); ok {
		p.IsSubProvision = v
	}
	if title, ok := record.Get("documentTitle"); ok {
		if s, ok := title.(string); ok {
			p.DocumentTitle = s
		}
	}
	return p, nil
}

func recordToNeighbor(record *neo4j.Record) (models.Neighbor, error) {
	neighborID, _ := record.Get("neighborID")
	edgeType, _ := record.Get("edgeType")
	n := models.Neighbor{}
	if s, ok := neighborID.(string); ok {
		n.NeighborID = s
	}
	if s, ok := edgeType.(string); ok {
		n.Kind = neo4jRelTypeToEdgeKind(s)
	}
	if semantic, ok := record.Get("semanticType"); ok {
		if s, ok := semantic.(string); ok {
			n.Payload.SemanticType = models.SemanticType(s)
		}
	}
	if kw, ok := record.Get("keywords"); ok {
		if list, ok := kw.([]any); ok {
			for _, v := range list {
				if s, ok := v.(string); ok {
					n.Payload.Keywords = append(n.Payload.Keywords, s)
				}
			}
		}
	}
	if pos, ok := record.Get("position"); ok {
		if i, ok := pos.(int64); ok {
			n.Payload.Position = int(i)
		}
	}
	return n, nil
}

func recordToDomain(record *neo4j.Record) (*models.Domain, error) {
	node, ok := record.Get("dm")
	if !ok {
		return nil, fmt.Errorf("record missing domain node")
	}
	n, ok := node.(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected domain node type %T", node)
	}
	d := &models.Domain{}
	if v, ok := n.Props["id"].(string); ok {
		d.ID = v
	}
	if v, ok := n.Props["label"].(string); ok {
		d.Label = v
	}
	if v, ok := n.Props["cardinality"].(int64); ok {
		d.Cardinality = int(v)
	}
	if v, ok := n.Props["centroid"].([]any); ok {
		d.Centroid = float64sToFloat32s(v)
	}
	return d, nil
}

func float32sToFloat64s(vs []float32) []float64 {
	if vs == nil {
		return nil
	}
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = float64(v)
	}
	return out
}

func float64sToFloat32s(vs []any) []float32 {
	out := make([]float32, 0, len(vs))
	for _, v := range vs {
		if f, ok := v.(float64); ok {
			out = append(out, float32(f))
		}
	}
	return out
}

func neo4jRelTypeToEdgeKind(relType string) models.EdgeKind {
	switch relType {
	case "PARENT_OF":
		return models.EdgeKindChild
	case "CHILD_OF":
		return models.EdgeKindParent
	case "PRECEDES", "FOLLOWS", "SIBLING_OF":
		return models.EdgeKindSibling
	case "REFERENCES_DOCUMENT":
		return models.EdgeKindCrossDocument
	default:
		return models.EdgeKindSibling
	}
}
