package domainregistry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superagent/legalengine/internal/graphstore"
	"github.com/superagent/legalengine/internal/models"
)

type fakeStore struct {
	mu           sync.Mutex
	provisions   map[string]*models.Provision
	domains      map[string]*models.Domain
	assignments  map[string][]string
	similarities map[string]map[string]float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		provisions:   make(map[string]*models.Provision),
		domains:      make(map[string]*models.Domain),
		assignments:  make(map[string][]string),
		similarities: make(map[string]map[string]float64),
	}
}

func (f *fakeStore) GetProvision(ctx context.Context, id string) (*models.Provision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.provisions[id]
	if !ok {
		return nil, models.NewError(models.KindNotFound, "not found", nil)
	}
	return p, nil
}

func (f *fakeStore) BatchGetProvisions(ctx context.Context, ids []string) ([]*models.Provision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Provision
	for _, id := range ids {
		if p, ok := f.provisions[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) VectorSearchProvisions(ctx context.Context, domainID string, query []float32, topK int) ([]graphstore.ScoredProvision, error) {
	return nil, nil
}

func (f *fakeStore) VectorSearchRelations(ctx context.Context, domainID string, query []float32, topK int) ([]graphstore.ScoredRelation, error) {
	return nil, nil
}

func (f *fakeStore) GetNeighbors(ctx context.Context, provisionID string) ([]models.Neighbor, error) {
	return nil, nil
}

func (f *fakeStore) FindByIdentifierPattern(ctx context.Context, domainID, pattern string) ([]*models.Provision, error) {
	return nil, nil
}

func (f *fakeStore) UpsertDomain(ctx context.Context, domain *models.Domain) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.domains[domain.ID] = domain.Clone()
	return nil
}

func (f *fakeStore) ReplaceAssignments(ctx context.Context, domainID string, provisionIDs []string, similarities map[string]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignments[domainID] = append([]string(nil), provisionIDs...)
	simCopy := make(map[string]float64, len(similarities))
	for k, v := range similarities {
		simCopy[k] = v
	}
	f.similarities[domainID] = simCopy
	return nil
}

func (f *fakeStore) DeleteDomain(ctx context.Context, domainID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.domains, domainID)
	delete(f.assignments, domainID)
	return nil
}

func (f *fakeStore) IndexProvision(ctx context.Context, domainID string, p *models.Provision) error {
	return nil
}

func (f *fakeStore) IndexRelation(ctx context.Context, domainID, edgeID string, embedding []float32, semanticType models.SemanticType) error {
	return nil
}

func (f *fakeStore) Close(ctx context.Context) error { return nil }

var _ graphstore.GraphStore = (*fakeStore)(nil)

func makeProvision(id string, embedding []float32) *models.Provision {
	return &models.Provision{ID: id, Content: "content of " + id, NodeEmbedding: embedding}
}

func TestAssignIncrementalCreatesNewDomainBelowThreshold(t *testing.T) {
	store := newFakeStore()
	reg := New(store, nil, Tunables{SimilarityJoinThreshold: 0.9}, nil)

	p := makeProvision("p1", []float32{1, 0})
	require.NoError(t, reg.AssignIncremental(context.Background(), []*models.Provision{p}))

	domains := reg.Snapshot()
	require.Len(t, domains, 1)
	assert.Equal(t, 1, domains[0].Cardinality)
}

func TestAssignIncrementalJoinsExistingDomainAboveThreshold(t *testing.T) {
	store := newFakeStore()
	reg := New(store, nil, Tunables{SimilarityJoinThreshold: 0.5}, nil)

	p1 := makeProvision("p1", []float32{1, 0})
	require.NoError(t, reg.AssignIncremental(context.Background(), []*models.Provision{p1}))
	store.provisions["p1"] = p1

	p2 := makeProvision("p2", []float32{0.9, 0.1})
	store.provisions["p2"] = p2
	require.NoError(t, reg.AssignIncremental(context.Background(), []*models.Provision{p2}))

	domains := reg.Snapshot()
	require.Len(t, domains, 1)
	assert.Equal(t, 2, domains[0].Cardinality)
}

func TestAssignIncrementalRecordsAssignmentSimilarity(t *testing.T) {
	store := newFakeStore()
	reg := New(store, nil, Tunables{SimilarityJoinThreshold: 0.5}, nil)

	p1 := makeProvision("p1", []float32{1, 0})
	require.NoError(t, reg.AssignIncremental(context.Background(), []*models.Provision{p1}))
	store.provisions["p1"] = p1

	p2 := makeProvision("p2", []float32{0.9, 0.436})
	store.provisions["p2"] = p2
	require.NoError(t, reg.AssignIncremental(context.Background(), []*models.Provision{p2}))

	domains := reg.Snapshot()
	require.Len(t, domains, 1)
	sims := store.similarities[domains[0].ID]
	require.NotNil(t, sims)
	assert.InDelta(t, 1.0, sims["p1"], 1e-6)
	assert.Greater(t, sims["p2"], 0.5)
}

func TestRebalanceSplitsOversizedDomain(t *testing.T) {
	store := newFakeStore()
	reg := New(store, nil, Tunables{MaxDomainSize: 3, MinDomainSize: 1, SimilarityJoinThreshold: 2}, nil)

	var provisions []*models.Provision
	for i := 0; i < 4; i++ {
		var emb []float32
		if i < 2 {
			emb = []float32{1, 0}
		} else {
			emb = []float32{0, 1}
		}
		p := makeProvision(string(rune('a'+i)), emb)
		store.provisions[p.ID] = p
		provisions = append(provisions, p)
	}

	domainID := "big-domain"
	ids := make([]string, len(provisions))
	for i, p := range provisions {
		ids[i] = p.ID
	}
	domain := &models.Domain{ID: domainID, Label: "big", Cardinality: len(provisions), Centroid: []float32{0.5, 0.5}}
	require.NoError(t, reg.Bootstrap(context.Background(), []*models.Domain{domain}, map[string]string{
		"a": domainID, "b": domainID, "c": domainID, "d": domainID,
	}, nil))
	require.NoError(t, store.ReplaceAssignments(context.Background(), domainID, ids, nil))

	require.NoError(t, reg.Rebalance(context.Background()))

	domains := reg.Snapshot()
	for _, d := range domains {
		assert.LessOrEqual(t, d.Cardinality, 3)
	}
}

func TestMergeMovesMembersToSurvivor(t *testing.T) {
	store := newFakeStore()
	reg := New(store, nil, Tunables{}, nil)

	pa := makeProvision("pa", []float32{1, 0})
	pb := makeProvision("pb", []float32{0, 1})
	store.provisions["pa"] = pa
	store.provisions["pb"] = pb

	domA := &models.Domain{ID: "A", Cardinality: 2, Centroid: []float32{1, 0}}
	domB := &models.Domain{ID: "B", Cardinality: 1, Centroid: []float32{0, 1}}
	require.NoError(t, reg.Bootstrap(context.Background(), []*models.Domain{domA, domB}, map[string]string{
		"pa": "A", "pb": "B",
	}, nil))
	require.NoError(t, store.ReplaceAssignments(context.Background(), "A", []string{"pa"}, nil))
	require.NoError(t, store.ReplaceAssignments(context.Background(), "B", []string{"pb"}, nil))

	require.NoError(t, reg.Merge(context.Background(), "A", "B"))

	domains := reg.Snapshot()
	require.Len(t, domains, 1)
	assert.Equal(t, "A", domains[0].ID)
	assert.Equal(t, 2, domains[0].Cardinality)
}
