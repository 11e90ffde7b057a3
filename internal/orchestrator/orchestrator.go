// Package orchestrator implements the top-level multi-domain search flow
// (spec 4.6): route the query to a primary domain, run hybrid retrieval and
// relationship-aware expansion against it, decide whether the result
// quality warrants consulting peer domains, merge what comes back, and
// optionally synthesize a grounded natural-language answer. It is the one
// package that owns the request's progress event stream end to end.
package orchestrator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/superagent/legalengine/internal/domainregistry"
	"github.com/superagent/legalengine/internal/embedding"
	"github.com/superagent/legalengine/internal/expansion"
	"github.com/superagent/legalengine/internal/graphstore"
	"github.com/superagent/legalengine/internal/models"
	"github.com/superagent/legalengine/internal/retrieval"
)

// Orchestrator wires the domain registry, hybrid retriever, expander and
// embedding gateway into the single request flow described by spec 4.6.
// gateway may be nil, but Search then fails with EmbeddingUnavailable
// because the query cannot be embedded. When the gateway's LLM calls fail,
// routing falls back to centroid similarity alone, collaboration is
// skipped, and synthesis returns the conventional fallback answer.
type Orchestrator struct {
	registry  *domainregistry.Registry
	store     graphstore.GraphStore
	retriever *retrieval.Retriever
	expander  *expansion.Expander
	gateway   *embedding.Gateway
	tun       Tunables
	log       *logrus.Entry
}

func New(registry *domainregistry.Registry, store graphstore.GraphStore, retriever *retrieval.Retriever, expander *expansion.Expander, gateway *embedding.Gateway, tun Tunables, log *logrus.Logger) *Orchestrator {
	if log == nil {
		log = logrus.New()
	}
	return &Orchestrator{
		registry:  registry,
		store:     store,
		retriever: retriever,
		expander:  expander,
		gateway:   gateway,
		tun:       tun.withDefaults(),
		log:       log.WithField("component", "orchestrator"),
	}
}

// Search implements the full spec 4.6 flow. emit may be nil for callers that
// don't want progress events (models.Emitter.Emit is a no-op on a nil
// receiver); the streaming transport passes a real one.
func (o *Orchestrator) Search(ctx context.Context, req models.SearchRequest, emit models.Emitter) (*models.SearchResponse, error) {
	start := time.Now()
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	emit.Emit(models.ProgressEvent{Status: models.EventStarted})

	nodeVec, err := o.embedNode(ctx, req.Query)
	if err != nil {
		emit.Emit(models.ProgressEvent{Status: models.EventError, Kind: string(models.KindOf(err)), Message: err.Error()})
		return nil, err
	}

	primaryCandidate, peerCandidates, routeLLMCalls, err := o.route(ctx, req.Query, nodeVec)
	if err != nil {
		emit.Emit(models.ProgressEvent{Status: models.EventError, Kind: string(models.KindOf(err)), Message: err.Error()})
		return nil, err
	}
	llmCalls := routeLLMCalls

	emit.Emit(models.ProgressEvent{Status: models.EventSearching, Stage: models.StageExactMatch, Progress: 0.2, PrimaryDomain: primaryCandidate.Label})
	emit.Emit(models.ProgressEvent{Status: models.EventSearching, Stage: models.StageNodeEmbedding, Progress: 0.4})
	emit.Emit(models.ProgressEvent{Status: models.EventSearching, Stage: models.StageRelationEmbedding, Progress: 0.6})

	results, err := o.searchDomain(ctx, primaryCandidate.ID, req.Query, limit, 0)
	if err != nil {
		emit.Emit(models.ProgressEvent{Status: models.EventError, Kind: string(models.KindOf(err)), Message: err.Error()})
		return nil, err
	}
	emit.Emit(models.ProgressEvent{Status: models.EventSearching, Stage: models.StageExpansion, Progress: 0.8})

	domainsQueried := 1
	a2aTriggered := false
	sortBySimilarityDesc(results)
	quality := qualityScore(results, o.tun)
	if quality < o.tun.QualityFloor || len(results) < o.tun.MinResults {
		env := peerEnvelope{depth: 0}
		merged, completedPeers, collabLLMCalls, cErr := o.collaborate(ctx, req.Query, results, peerCandidates, env, limit, emit)
		llmCalls += collabLLMCalls
		if cErr == nil {
			results = merged
			if len(completedPeers) > 0 {
				a2aTriggered = true
				domainsQueried += len(completedPeers)
			}
		} else {
			o.log.WithError(cErr).Warn("A2A collaboration failed, continuing with primary domain results only")
		}
	}

	labelByID := map[string]string{primaryCandidate.ID: primaryCandidate.Label}
	for _, p := range peerCandidates {
		labelByID[p.ID] = p.Label
	}
	relabelDomains(results, labelByID)
	sortBySimilarityDesc(results)
	if limit < len(results) {
		results = results[:limit]
	}

	if len(results) == 0 {
		err := models.NewError(models.KindNoResults, "no results found for this query", nil)
		emit.Emit(models.ProgressEvent{Status: models.EventError, Kind: string(models.KindOf(err)), Message: err.Error()})
		return nil, err
	}

	var answer *models.SynthesizedAnswer
	if req.Synthesize {
		emit.Emit(models.ProgressEvent{Status: models.EventSynthesizing})
		answer = o.synthesize(ctx, req.Query, results)
		if o.gateway != nil {
			llmCalls++
		}
	}

	dtos := make([]models.ResultDTO, len(results))
	for i, r := range results {
		dtos[i] = r.ToDTO()
	}

	resp := &models.SearchResponse{
		Results:       dtos,
		PrimaryDomain: primaryCandidate.Label,
		Stats: models.SearchStats{
			DomainsQueried: domainsQueried,
			A2ATriggered:   a2aTriggered,
			LLMCalls:       llmCalls,
			ElapsedMs:      time.Since(start).Milliseconds(),
		},
		SynthesizedAnswer: answer,
	}

	emit.Emit(models.ProgressEvent{Status: models.EventComplete, ResultCount: len(results), Results: dtos, Stats: &resp.Stats, SynthesizedAnswer: answer})
	return resp, nil
}

// searchDomain runs C4 (hybrid retrieval) then C5 (relationship-aware
// expansion) against a single domain and returns the merged, still-unsorted
// result set. depth is not read here; the caller is responsible for never
// invoking this at depth > 1 (spec 4.6.3's bounded-depth rule).
func (o *Orchestrator) searchDomain(ctx context.Context, domainID, query string, limit, depth int) ([]*models.SearchResult, error) {
	nodeVec, err := o.embedNode(ctx, query)
	if err != nil {
		return nil, err
	}
	relVec, err := o.embedRelation(ctx, query)
	if err != nil {
		return nil, err
	}

	members := o.registry.MemberIDs(domainID)
	results, err := o.retriever.Search(ctx, retrieval.Request{
		DomainID:     domainID,
		Query:        query,
		NodeQueryVec: nodeVec,
		RelQueryVec:  relVec,
		MemberIDs:    toSet(members),
		Limit:        limit,
	})
	if err != nil {
		return nil, err
	}

	seeds := topSeeds(results, o.tun.RAESeeds)
	if len(seeds) == 0 || o.expander == nil {
		return results, nil
	}
	hits, err := o.expander.Expand(ctx, seeds, nodeVec, relVec)
	if err != nil {
		o.log.WithError(err).WithField("domain", domainID).Warn("expansion unavailable, returning direct retrieval results only")
		return results, nil
	}
	if len(hits) == 0 {
		return results, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ProvisionID
	}
	fetched, err := o.store.BatchGetProvisions(ctx, ids)
	if err != nil {
		o.log.WithError(err).WithField("domain", domainID).Warn("could not fetch expansion hits, returning direct retrieval results only")
		return results, nil
	}
	byID := make(map[string]*models.Provision, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}
	return mergeExpansion(results, domainID, hits, byID), nil
}

func (o *Orchestrator) embedNode(ctx context.Context, text string) ([]float32, error) {
	if o.gateway == nil {
		return nil, models.NewError(models.KindEmbeddingUnavailable, "no embedding gateway configured", nil)
	}
	return o.gateway.EmbedNode(ctx, text, embedding.EmbedOptions{})
}

func (o *Orchestrator) embedRelation(ctx context.Context, text string) ([]float32, error) {
	if o.gateway == nil {
		return nil, models.NewError(models.KindEmbeddingUnavailable, "no embedding gateway configured", nil)
	}
	return o.gateway.EmbedRelation(ctx, text, embedding.EmbedOptions{})
}
