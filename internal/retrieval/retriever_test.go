package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superagent/legalengine/internal/graphstore"
	"github.com/superagent/legalengine/internal/models"
)

type fakeStore struct {
	provisions      map[string]*models.Provision
	identifierHits  map[string][]*models.Provision
	nodeHits        []graphstore.ScoredProvision
	relationHits    []graphstore.ScoredRelation
	nodeErr         error
	relationErr     error
	identifierErr   error
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
	if f.nodeErr != nil {
		return nil, f.nodeErr
	}
	return f.nodeHits, nil
}

func (f *fakeStore) VectorSearchRelations(ctx context.Context, domainID string, query []float32, topK int) ([]graphstore.ScoredRelation, error) {
	if f.relationErr != nil {
		return nil, f.relationErr
	}
	return f.relationHits, nil
}

func (f *fakeStore) GetNeighbors(ctx context.Context, provisionID string) ([]models.Neighbor, error) {
	return nil, nil
}

func (f *fakeStore) FindByIdentifierPattern(ctx context.Context, domainID, pattern string) ([]*models.Provision, error) {
	if f.identifierErr != nil {
		return nil, f.identifierErr
	}
	return f.identifierHits[pattern], nil
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

func TestRetrieverSearchFusesChannels(t *testing.T) {
	store := &fakeStore{
		provisions: map[string]*models.Provision{
			"p1": {ID: "p1", Content: "termination clause", DocumentTitle: "Labor Code"},
			"p2": {ID: "p2", Content: "notice period"},
		},
		nodeHits: []graphstore.ScoredProvision{
			{Provision: &models.Provision{ID: "p1", Content: "termination clause"}, Similarity: 0.9},
			{Provision: &models.Provision{ID: "p2", Content: "notice period"}, Similarity: 0.6},
		},
	}
	r := New(store, Tunables{}, nil)

	results, err := r.Search(context.Background(), Request{
		DomainID:     "d1",
		Query:        "termination",
		NodeQueryVec: []float32{1, 0},
		MemberIDs:    map[string]struct{}{"p1": {}, "p2": {}},
		Limit:        10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "p1", results[0].ProvisionID)
	assert.True(t, results[0].Stages.Has(stageNodeEmbedding))
}

func TestRetrieverExactMatchGetsSimilarityOne(t *testing.T) {
	store := &fakeStore{
		provisions: map[string]*models.Provision{
			"p1": {ID: "p1", Content: "article five text"},
		},
		identifierHits: map[string][]*models.Provision{
			"Article 5": {{ID: "p1", Content: "article five text"}},
		},
	}
	r := New(store, Tunables{}, nil)

	results, err := r.Search(context.Background(), Request{
		DomainID:  "d1",
		Query:     "what does Article 5 say",
		MemberIDs: map[string]struct{}{"p1": {}},
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].Similarity)
	assert.True(t, results[0].Stages.Has(stageExactMatch))
}

func TestRetrieverExcludesMemberFilterMismatch(t *testing.T) {
	store := &fakeStore{
		provisions: map[string]*models.Provision{
			"p1": {ID: "p1", Content: "outside domain"},
		},
		nodeHits: []graphstore.ScoredProvision{
			{Provision: &models.Provision{ID: "p1"}, Similarity: 0.9},
		},
	}
	r := New(store, Tunables{}, nil)

	results, err := r.Search(context.Background(), Request{
		DomainID:     "d1",
		Query:        "anything",
		NodeQueryVec: []float32{1, 0},
		MemberIDs:    map[string]struct{}{"other": {}},
		Limit:        10,
	})
	require.NoError(t, err)
	assert.Len(t, results, 0)
}

func TestRetrieverDegradesFailedChannelToEmpty(t *testing.T) {
	store := &fakeStore{
		provisions: map[string]*models.Provision{
			"p1": {ID: "p1", Content: "still findable"},
		},
		identifierHits: map[string][]*models.Provision{
			"Article 9": {{ID: "p1", Content: "still findable"}},
		},
		nodeErr: models.NewError(models.KindTransientBackend, "vector store down", nil),
	}
	r := New(store, Tunables{}, nil)

	results, err := r.Search(context.Background(), Request{
		DomainID:     "d1",
		Query:        "Article 9",
		NodeQueryVec: []float32{1, 0},
		MemberIDs:    map[string]struct{}{"p1": {}},
		Limit:        10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].ProvisionID)
}

func TestRetrieverAllChannelsFailingReturnsSearchUnavailable(t *testing.T) {
	store := &fakeStore{
		nodeErr:       models.NewError(models.KindTransientBackend, "down", nil),
		relationErr:   models.NewError(models.KindTransientBackend, "down", nil),
		identifierErr: models.NewError(models.KindTransientBackend, "down", nil),
	}
	r := New(store, Tunables{}, nil)

	_, err := r.Search(context.Background(), Request{
		DomainID:     "d1",
		Query:        "Article 9",
		NodeQueryVec: []float32{1, 0},
		RelQueryVec:  []float32{1, 0},
		MemberIDs:    map[string]struct{}{},
		Limit:        10,
	})
	require.Error(t, err)
	assert.Equal(t, models.KindSearchUnavailable, models.KindOf(err))
}

func TestRetrieverExcludedSectionTokensDropResult(t *testing.T) {
	store := &fakeStore{
		provisions: map[string]*models.Provision{
			"Transitional Provisions > Article 1": {ID: "Transitional Provisions > Article 1", Content: "x"},
		},
		identifierHits: map[string][]*models.Provision{
			"Article 1": {{ID: "Transitional Provisions > Article 1", Content: "x"}},
		},
	}
	r := New(store, Tunables{ExcludedSectionTokens: []string{"Transitional"}}, nil)

	results, err := r.Search(context.Background(), Request{
		DomainID:  "d1",
		Query:     "Article 1",
		MemberIDs: map[string]struct{}{"Transitional Provisions > Article 1": {}},
		Limit:     10,
	})
	require.NoError(t, err)
	assert.Len(t, results, 0)
}
