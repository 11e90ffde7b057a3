// Package retrieval implements the per-domain hybrid retriever (C4): three
// concurrent search channels fused by reciprocal rank fusion.
package retrieval

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/superagent/legalengine/internal/concurrency"
	"github.com/superagent/legalengine/internal/graphstore"
	"github.com/superagent/legalengine/internal/models"
)

const (
	stageExactMatch        = models.StageExactMatch
	stageNodeEmbedding     = models.StageNodeEmbedding
	stageRelationEmbedding = models.StageRelationEmbedding
)

// Request is one domain-scoped search (spec 4.4 Inputs).
type Request struct {
	DomainID     string
	Query        string
	NodeQueryVec []float32
	RelQueryVec  []float32
	MemberIDs    map[string]struct{}
	Limit        int
}

// Retriever runs the three channels and fuses their output.
type Retriever struct {
	store graphstore.GraphStore
	tun   Tunables
	log   *logrus.Entry
}

func New(store graphstore.GraphStore, tun Tunables, log *logrus.Logger) *Retriever {
	if log == nil {
		log = logrus.New()
	}
	return &Retriever{store: store, tun: tun.withDefaults(), log: log.WithField("component", "retrieval")}
}

type channelOutcome struct {
	stage     string
	hits      []channelHit
	succeeded bool
}

// Search runs the exact-identifier, node-embedding and relation-embedding
// channels concurrently, fuses them, filters excluded sections and resolves
// display fields (spec 4.4).
func (r *Retriever) Search(ctx context.Context, req Request) ([]*models.SearchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	channelNames := []string{stageExactMatch, stageNodeEmbedding, stageRelationEmbedding}

	outcomes, err := concurrency.Map(ctx, channelNames, r.tun.ChannelWorkers, func(ctx context.Context, stage string) (channelOutcome, error) {
		return r.runChannel(ctx, stage, req, limit), nil
	})
	if err != nil {
		// concurrency.Map only returns an error on a task panic/bug, not on a
		// channel's own transient failure (runChannel never returns a non-nil
		// error here), so this is not part of the channel degrade path.
		return nil, models.NewError(models.KindSearchUnavailable, "retrieval channels failed to run", err)
	}

	byStage := make(map[string][]channelHit, len(outcomes))
	anySucceeded := false
	for _, o := range outcomes {
		byStage[o.stage] = o.hits
		if o.succeeded {
			anySucceeded = true
		}
	}
	if !anySucceeded {
		return nil, models.NewError(models.KindSearchUnavailable, "all retrieval channels failed", nil)
	}

	fusedItems := fuseRRF(byStage, r.tun.RRFK, r.tun.ExactMatchBonus, limit)
	return r.resolve(ctx, req.DomainID, fusedItems)
}

func (r *Retriever) runChannel(ctx context.Context, stage string, req Request, limit int) channelOutcome {
	switch stage {
	case stageExactMatch:
		hits, err := r.exactMatchChannel(ctx, req)
		if err != nil {
			r.log.WithError(err).Warn("exact match channel degraded to empty")
			return channelOutcome{stage: stage, succeeded: false}
		}
		return channelOutcome{stage: stage, hits: hits, succeeded: true}
	case stageNodeEmbedding:
		hits, err := r.nodeEmbeddingChannel(ctx, req, limit)
		if err != nil {
			r.log.WithError(err).Warn("node embedding channel degraded to empty")
			return channelOutcome{stage: stage, succeeded: false}
		}
		return channelOutcome{stage: stage, hits: hits, succeeded: true}
	case stageRelationEmbedding:
		hits, err := r.relationEmbeddingChannel(ctx, req, limit)
		if err != nil {
			r.log.WithError(err).Warn("relation embedding channel degraded to empty")
			return channelOutcome{stage: stage, succeeded: false}
		}
		return channelOutcome{stage: stage, hits: hits, succeeded: true}
	default:
		return channelOutcome{stage: stage, succeeded: false}
	}
}

func (r *Retriever) exactMatchChannel(ctx context.Context, req Request) ([]channelHit, error) {
	tokens := parseIdentifierTokens(req.Query)
	if len(tokens) == 0 {
		return nil, nil
	}

	var hits []channelHit
	seen := make(map[string]struct{})
	for _, token := range tokens {
		matches, err := r.store.FindByIdentifierPattern(ctx, req.DomainID, token)
		if err != nil {
			return nil, err
		}
		for _, p := range matches {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			if req.MemberIDs != nil {
				if _, member := req.MemberIDs[p.ID]; !member {
					continue
				}
			}
			seen[p.ID] = struct{}{}
			hits = append(hits, channelHit{provisionID: p.ID, similarity: 1.0})
		}
	}
	return hits, nil
}

func (r *Retriever) nodeEmbeddingChannel(ctx context.Context, req Request, limit int) ([]channelHit, error) {
	if len(req.NodeQueryVec) == 0 {
		return nil, nil
	}
	k := limit * r.tun.ExpansionFactor
	results, err := r.store.VectorSearchProvisions(ctx, req.DomainID, req.NodeQueryVec, k)
	if err != nil {
		return nil, err
	}

	hits := make([]channelHit, 0, len(results))
	for _, sp := range results {
		if sp.Similarity < r.tun.NodeSimFloor {
			continue
		}
		if req.MemberIDs != nil {
			if _, member := req.MemberIDs[sp.Provision.ID]; !member {
				continue
			}
		}
		hits = append(hits, channelHit{provisionID: sp.Provision.ID, similarity: sp.Similarity})
	}
	return hits, nil
}

func (r *Retriever) relationEmbeddingChannel(ctx context.Context, req Request, limit int) ([]channelHit, error) {
	if len(req.RelQueryVec) == 0 {
		return nil, nil
	}
	k := limit * r.tun.ExpansionFactor
	results, err := r.store.VectorSearchRelations(ctx, req.DomainID, req.RelQueryVec, k)
	if err != nil {
		return nil, err
	}

	hits := make([]channelHit, 0, len(results))
	for _, sr := range results {
		if req.MemberIDs != nil {
			if _, member := req.MemberIDs[sr.ProvisionID]; !member {
				continue
			}
		}
		hits = append(hits, channelHit{provisionID: sr.ProvisionID, similarity: sr.Similarity})
	}
	return hits, nil
}

// resolve fetches display fields for every fused id, drops excluded
// sections, and builds the final SearchResult list in fused order.
func (r *Retriever) resolve(ctx context.Context, domainID string, items []fused) ([]*models.SearchResult, error) {
	if len(items) == 0 {
		return nil, nil
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.provisionID
	}
	provisions, err := r.store.BatchGetProvisions(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Provision, len(provisions))
	for _, p := range provisions {
		byID[p.ID] = p
	}

	out := make([]*models.SearchResult, 0, len(items))
	for _, it := range items {
		if isExcludedSection(it.provisionID, r.tun.ExcludedSectionTokens) {
			continue
		}
		p, ok := byID[it.provisionID]
		if !ok {
			continue
		}
		stages := models.NewStageSet()
		for s := range it.stages {
			stages.Add(s)
		}
		out = append(out, &models.SearchResult{
			ProvisionID:     p.ID,
			Content:         p.Content,
			DocumentTitle:   p.DocumentTitle,
			ProvisionPath:   p.ProvisionPath,
			ProvisionNumber: p.ProvisionNumber,
			Similarity:      it.similarity,
			Stages:          stages,
			SourceDomain:    domainID,
			SourceDomains:   map[string]struct{}{domainID: {}},
		})
	}
	return out, nil
}

func isExcludedSection(identifier string, tokens []string) bool {
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if containsFold(identifier, t) {
			return true
		}
	}
	return false
}
