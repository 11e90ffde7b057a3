package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superagent/legalengine/internal/domainregistry"
	"github.com/superagent/legalengine/internal/embedding"
	"github.com/superagent/legalengine/internal/expansion"
	"github.com/superagent/legalengine/internal/graphstore"
	"github.com/superagent/legalengine/internal/models"
	"github.com/superagent/legalengine/internal/retrieval"
)

// fakeStore implements graphstore.GraphStore with canned per-domain vector
// hits and neighbor edges, enough to exercise routing, C4 and C5 together.
type fakeStore struct {
	provisions map[string]*models.Provision
	nodeHits   map[string][]graphstore.ScoredProvision
	neighbors  map[string][]models.Neighbor
}

func (f *fakeStore) GetProvision(ctx context.Context, id string) (*models.Provision, error) {
	return f.provisions[id], nil
}

func (f *fakeStore) BatchGetProvisions(ctx context.Context, ids []string) ([]*models.Provision, error) {
	var out []*models.Provision
	for _, id := range ids {
		if p, ok := f.provisions[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) VectorSearchProvisions(ctx context.Context, domainID string, query []float32, topK int) ([]graphstore.ScoredProvision, error) {
	return f.nodeHits[domainID], nil
}

func (f *fakeStore) VectorSearchRelations(ctx context.Context, domainID string, query []float32, topK int) ([]graphstore.ScoredRelation, error) {
	return nil, nil
}

func (f *fakeStore) GetNeighbors(ctx context.Context, provisionID string) ([]models.Neighbor, error) {
	return f.neighbors[provisionID], nil
}

func (f *fakeStore) FindByIdentifierPattern(ctx context.Context, domainID, pattern string) ([]*models.Provision, error) {
	return nil, nil
}

func (f *fakeStore) UpsertDomain(ctx context.Context, domain *models.Domain) error { return nil }
func (f *fakeStore) ReplaceAssignments(ctx context.Context, domainID string, provisionIDs []string, similarities map[string]float64) error {
	return nil
}
func (f *fakeStore) DeleteDomain(ctx context.Context, domainID string) error { return nil }
func (f *fakeStore) IndexProvision(ctx context.Context, domainID string, p *models.Provision) error {
	return nil
}
func (f *fakeStore) IndexRelation(ctx context.Context, domainID, edgeID string, embedding []float32, semanticType models.SemanticType) error {
	return nil
}
func (f *fakeStore) Close(ctx context.Context) error { return nil }

var _ graphstore.GraphStore = (*fakeStore)(nil)

type fakeNodeEmbedder struct{ vector []float32 }

func (f *fakeNodeEmbedder) EmbedNode(ctx context.Context, text string) ([]float32, error) {
	return f.vector, nil
}

type fakeRelationEmbedder struct{ vector []float32 }

func (f *fakeRelationEmbedder) EmbedRelation(ctx context.Context, text string) ([]float32, error) {
	return f.vector, nil
}

// fakeLLM returns canned JSON responses in order, cycling once exhausted.
type fakeLLM struct {
	responses []string
	calls     int
	err       error
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	resp := f.responses[f.calls%len(f.responses)]
	f.calls++
	return resp, nil
}

func buildTestOrchestrator(t *testing.T, store *fakeStore, gw *embedding.Gateway) (*Orchestrator, *domainregistry.Registry) {
	t.Helper()
	registry := domainregistry.New(store, gw, domainregistry.Tunables{}, nil)
	retriever := retrieval.New(store, retrieval.Tunables{}, nil)
	expander := expansion.New(store, expansion.Tunables{}, nil)
	orch := New(registry, store, retriever, expander, gw, Tunables{}, nil)
	return orch, registry
}

// newNoLLMGateway builds a gateway whose embedders return vector and whose
// LLM always fails, so every LLM-driven step takes its fallback path.
func newNoLLMGateway(vector []float32) *embedding.Gateway {
	return embedding.NewGateway(&fakeNodeEmbedder{vector: vector}, &fakeRelationEmbedder{vector: vector}, &fakeLLM{err: fmt.Errorf("llm unavailable")}, nil, embedding.Config{}, nil)
}

func seedDomains(t *testing.T, registry *domainregistry.Registry, domains []*models.Domain, assignments map[string]string) {
	t.Helper()
	require.NoError(t, registry.Bootstrap(context.Background(), domains, assignments, nil))
}

func TestSearchReturnsResultsFromPrimaryDomainWithoutLLM(t *testing.T) {
	store := &fakeStore{
		provisions: map[string]*models.Provision{
			"p1": {ID: "p1", Content: "termination clause", DocumentTitle: "Labor Code"},
			"p2": {ID: "p2", Content: "notice period", DocumentTitle: "Labor Code"},
		},
		nodeHits: map[string][]graphstore.ScoredProvision{
			"dom-labor": {
				{Provision: &models.Provision{ID: "p1", Content: "termination clause"}, Similarity: 0.92},
				{Provision: &models.Provision{ID: "p2", Content: "notice period"}, Similarity: 0.81},
			},
		},
	}
	orch, registry := buildTestOrchestrator(t, store, newNoLLMGateway([]float32{1, 0}))
	seedDomains(t, registry, []*models.Domain{
		{ID: "dom-labor", Label: "Labor", Centroid: []float32{1, 0}, Cardinality: 2},
	}, map[string]string{"p1": "dom-labor", "p2": "dom-labor"})

	resp, err := orch.Search(context.Background(), models.SearchRequest{Query: "termination notice", Limit: 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Labor", resp.PrimaryDomain)
	assert.NotEmpty(t, resp.Results)
	assert.Equal(t, 1, resp.Stats.DomainsQueried)
	assert.False(t, resp.Stats.A2ATriggered)
}

func TestSearchRoutesToHighestCentroidSimilarityDomainWithoutLLM(t *testing.T) {
	store := &fakeStore{
		provisions: map[string]*models.Provision{
			"p1": {ID: "p1", Content: "zoning permit"},
		},
		nodeHits: map[string][]graphstore.ScoredProvision{
			"dom-planning": {{Provision: &models.Provision{ID: "p1", Content: "zoning permit"}, Similarity: 0.95}},
		},
	}
	orch, registry := buildTestOrchestrator(t, store, newNoLLMGateway([]float32{0, 1}))
	seedDomains(t, registry, []*models.Domain{
		{ID: "dom-labor", Label: "Labor", Centroid: []float32{1, 0}, Cardinality: 1},
		{ID: "dom-planning", Label: "Planning", Centroid: []float32{0, 1}, Cardinality: 1},
	}, map[string]string{"p1": "dom-planning"})

	resp, err := orch.Search(context.Background(), models.SearchRequest{Query: "zoning", Limit: 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Planning", resp.PrimaryDomain)
}

func TestSearchWithoutGatewayFailsToEmbed(t *testing.T) {
	store := &fakeStore{}
	orch, registry := buildTestOrchestrator(t, store, nil)
	seedDomains(t, registry, []*models.Domain{{ID: "dom-labor", Label: "Labor", Centroid: []float32{1, 0}}}, nil)

	_, err := orch.Search(context.Background(), models.SearchRequest{Query: "x"}, nil)
	require.Error(t, err)
	assert.Equal(t, models.KindEmbeddingUnavailable, models.KindOf(err))
}

func TestSearchNoDomainsReturnsNotInitialized(t *testing.T) {
	store := &fakeStore{}
	orch, _ := buildTestOrchestrator(t, store, newNoLLMGateway([]float32{1, 0}))

	_, err := orch.Search(context.Background(), models.SearchRequest{Query: "x"}, nil)
	require.Error(t, err)
	assert.Equal(t, models.KindNotInitialized, models.KindOf(err))
}

func TestSearchEmitsMonotonicProgressEvents(t *testing.T) {
	store := &fakeStore{
		provisions: map[string]*models.Provision{"p1": {ID: "p1", Content: "termination clause"}},
		nodeHits: map[string][]graphstore.ScoredProvision{
			"dom-labor": {{Provision: &models.Provision{ID: "p1"}, Similarity: 0.9}},
		},
	}
	orch, registry := buildTestOrchestrator(t, store, newNoLLMGateway([]float32{1, 0}))
	seedDomains(t, registry, []*models.Domain{{ID: "dom-labor", Label: "Labor", Centroid: []float32{1, 0}, Cardinality: 1}}, map[string]string{"p1": "dom-labor"})

	var events []models.ProgressEvent
	emit := models.Emitter(func(ev models.ProgressEvent) { events = append(events, ev) })

	_, err := orch.Search(context.Background(), models.SearchRequest{Query: "termination", Limit: 5}, emit)
	require.NoError(t, err)

	require.NotEmpty(t, events)
	assert.Equal(t, models.EventStarted, events[0].Status)
	assert.Equal(t, models.EventComplete, events[len(events)-1].Status)
	var lastProgress float64
	for _, ev := range events {
		if ev.Status == models.EventSearching {
			assert.GreaterOrEqual(t, ev.Progress, lastProgress)
			lastProgress = ev.Progress
		}
	}
}

func TestSearchLowQualityTriggersA2ACollaboration(t *testing.T) {
	store := &fakeStore{
		provisions: map[string]*models.Provision{
			"p1": {ID: "p1", Content: "weak labor hit"},
			"p2": {ID: "p2", Content: "strong planning hit"},
		},
		nodeHits: map[string][]graphstore.ScoredProvision{
			"dom-labor":    {{Provision: &models.Provision{ID: "p1"}, Similarity: 0.3}},
			"dom-planning": {{Provision: &models.Provision{ID: "p2"}, Similarity: 0.95}},
		},
	}
	llm := &fakeLLM{responses: []string{
		`{"can_answer": true, "confidence": 0.9, "reasoning": "looks right"}`,
		`{"can_answer": false, "confidence": 0.2, "reasoning": "weak match"}`,
		`{"should_collaborate": true, "targets": [{"domain_label": "Planning", "refined_query": "planning query", "reason": "low confidence"}]}`,
	}}
	node := &fakeNodeEmbedder{vector: []float32{1, 0}}
	gw := embedding.NewGateway(node, &fakeRelationEmbedder{vector: []float32{1, 0}}, llm, nil, embedding.Config{}, nil)

	orch, registry := buildTestOrchestrator(t, store, gw)
	seedDomains(t, registry, []*models.Domain{
		{ID: "dom-labor", Label: "Labor", Centroid: []float32{1, 0}, Cardinality: 1},
		{ID: "dom-planning", Label: "Planning", Centroid: []float32{0, 1}, Cardinality: 1},
	}, map[string]string{"p1": "dom-labor", "p2": "dom-planning"})

	resp, err := orch.Search(context.Background(), models.SearchRequest{Query: "ambiguous query", Limit: 5}, nil)
	require.NoError(t, err)
	assert.True(t, resp.Stats.A2ATriggered)
	assert.Equal(t, 2, resp.Stats.DomainsQueried)

	var sawPlanningHit bool
	for _, r := range resp.Results {
		if r.ProvisionID == "p2" {
			sawPlanningHit = true
			assert.True(t, r.ViaA2A)
		}
	}
	assert.True(t, sawPlanningHit, "expected peer domain's hit to be merged in")
}

func TestA2APeerCompletedEventUsesDomainLabel(t *testing.T) {
	store := &fakeStore{
		provisions: map[string]*models.Provision{
			"p1": {ID: "p1", Content: "weak labor hit"},
			"p2": {ID: "p2", Content: "strong planning hit"},
		},
		nodeHits: map[string][]graphstore.ScoredProvision{
			"dom-labor":    {{Provision: &models.Provision{ID: "p1"}, Similarity: 0.3}},
			"dom-planning": {{Provision: &models.Provision{ID: "p2"}, Similarity: 0.95}},
		},
	}
	llm := &fakeLLM{responses: []string{
		`{"can_answer": true, "confidence": 0.9, "reasoning": "looks right"}`,
		`{"can_answer": false, "confidence": 0.2, "reasoning": "weak match"}`,
		`{"should_collaborate": true, "targets": [{"domain_label": "Planning", "refined_query": "planning query", "reason": "low confidence"}]}`,
	}}
	node := &fakeNodeEmbedder{vector: []float32{1, 0}}
	gw := embedding.NewGateway(node, &fakeRelationEmbedder{vector: []float32{1, 0}}, llm, nil, embedding.Config{}, nil)

	orch, registry := buildTestOrchestrator(t, store, gw)
	seedDomains(t, registry, []*models.Domain{
		{ID: "dom-labor", Label: "Labor", Centroid: []float32{1, 0}, Cardinality: 1},
		{ID: "dom-planning", Label: "Planning", Centroid: []float32{0, 1}, Cardinality: 1},
	}, map[string]string{"p1": "dom-labor", "p2": "dom-planning"})

	var events []models.ProgressEvent
	emit := models.Emitter(func(ev models.ProgressEvent) { events = append(events, ev) })

	_, err := orch.Search(context.Background(), models.SearchRequest{Query: "ambiguous query", Limit: 5}, emit)
	require.NoError(t, err)

	var sawPeerCompleted bool
	for _, ev := range events {
		if ev.Status == models.EventA2APeerCompleted {
			sawPeerCompleted = true
			assert.Equal(t, "Planning", ev.Target, "peer-completed event should carry the human-readable domain label, not the internal domain id")
		}
	}
	assert.True(t, sawPeerCompleted, "expected an a2a_peer_completed event")
}

func TestSearchSynthesizeFallsBackWithoutLLM(t *testing.T) {
	store := &fakeStore{
		provisions: map[string]*models.Provision{"p1": {ID: "p1", Content: "termination clause"}},
		nodeHits: map[string][]graphstore.ScoredProvision{
			"dom-labor": {{Provision: &models.Provision{ID: "p1"}, Similarity: 0.9}},
		},
	}
	orch, registry := buildTestOrchestrator(t, store, newNoLLMGateway([]float32{1, 0}))
	seedDomains(t, registry, []*models.Domain{{ID: "dom-labor", Label: "Labor", Centroid: []float32{1, 0}, Cardinality: 1}}, map[string]string{"p1": "dom-labor"})

	resp, err := orch.Search(context.Background(), models.SearchRequest{Query: "termination", Limit: 5, Synthesize: true}, nil)
	require.NoError(t, err)
	require.NotNil(t, resp.SynthesizedAnswer)
	assert.True(t, resp.SynthesizedAnswer.Fallback)
}

func TestSearchNoResultsAnywhereReturnsNoResultsError(t *testing.T) {
	store := &fakeStore{}
	orch, registry := buildTestOrchestrator(t, store, newNoLLMGateway([]float32{1, 0}))
	seedDomains(t, registry, []*models.Domain{{ID: "dom-labor", Label: "Labor", Centroid: []float32{1, 0}, Cardinality: 0}}, nil)

	_, err := orch.Search(context.Background(), models.SearchRequest{Query: "nothing matches"}, nil)
	require.Error(t, err)
	assert.Equal(t, models.KindNoResults, models.KindOf(err))
}

func TestQualityScoreRewardsExactMatchAndDensity(t *testing.T) {
	tun := Tunables{}.withDefaults()
	sparse := []*models.SearchResult{
		{ProvisionID: "p1", Similarity: 0.5, Stages: models.NewStageSet(models.StageNodeEmbedding)},
	}
	dense := []*models.SearchResult{
		{ProvisionID: "p1", Similarity: 0.9, Stages: models.NewStageSet(models.StageExactMatch)},
		{ProvisionID: "p2", Similarity: 0.85, Stages: models.NewStageSet(models.StageNodeEmbedding)},
		{ProvisionID: "p3", Similarity: 0.8, Stages: models.NewStageSet(models.StageNodeEmbedding)},
	}
	assert.Greater(t, qualityScore(dense, tun), qualityScore(sparse, tun))
}

func TestMergeA2ADeduplicatesAndUnionsSourceDomains(t *testing.T) {
	primary := []*models.SearchResult{
		{ProvisionID: "p1", Similarity: 0.5, Stages: models.NewStageSet(models.StageNodeEmbedding), SourceDomains: map[string]struct{}{"dom-a": {}}},
	}
	peer := []*models.SearchResult{
		{ProvisionID: "p1", Similarity: 0.9, Stages: models.NewStageSet(models.StageExactMatch)},
		{ProvisionID: "p2", Similarity: 0.7, Stages: models.NewStageSet(models.StageNodeEmbedding)},
	}
	merged := mergeA2A(primary, "dom-b", peer)
	require.Len(t, merged, 2)
	assert.Equal(t, 0.9, merged[0].Similarity)
	assert.True(t, merged[0].Stages.Has(models.StageExactMatch))
	_, hasA := merged[0].SourceDomains["dom-a"]
	_, hasB := merged[0].SourceDomains["dom-b"]
	assert.True(t, hasA && hasB)
}

func TestDomainLabelFormatSanity(t *testing.T) {
	// guards against accidentally logging internal ids as display labels
	label := fmt.Sprintf("dom-%d", 1)
	assert.NotEqual(t, "Planning", label)
}
