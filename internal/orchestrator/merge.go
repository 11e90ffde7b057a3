package orchestrator

import (
	"fmt"

	"github.com/superagent/legalengine/internal/expansion"
	"github.com/superagent/legalengine/internal/models"
)

// mergeExpansion folds RAE hits into the fused C4 list via a separate stage
// tag "expansion.<kind>": for an id already present, the higher similarity
// wins and stage tags union; new ids are appended (spec 4.5 "Integration
// with C4"). Expansion hits are never filtered by domain membership.
func mergeExpansion(base []*models.SearchResult, domainID string, hits []expansion.Hit, byID map[string]*models.Provision) []*models.SearchResult {
	index := make(map[string]int, len(base))
	for i, r := range base {
		index[r.ProvisionID] = i
	}

	for _, h := range hits {
		stage := fmt.Sprintf("%s.%s", models.StageExpansion, h.DiscoveryKind)
		if i, ok := index[h.ProvisionID]; ok {
			existing := base[i]
			if h.Relevance > existing.Similarity {
				existing.Similarity = h.Relevance
			}
			existing.Stages.Add(stage)
			continue
		}
		p, ok := byID[h.ProvisionID]
		if !ok {
			continue
		}
		base = append(base, &models.SearchResult{
			ProvisionID:     p.ID,
			Content:         p.Content,
			DocumentTitle:   p.DocumentTitle,
			ProvisionPath:   p.ProvisionPath,
			ProvisionNumber: p.ProvisionNumber,
			Similarity:      h.Relevance,
			Stages:          models.NewStageSet(stage),
			SourceDomain:    domainID,
			SourceDomains:   map[string]struct{}{domainID: {}},
			DiscoveryKind:   h.DiscoveryKind,
		})
		index[h.ProvisionID] = len(base) - 1
	}
	return base
}

// mergeA2A folds one peer domain's result set into the accumulator: dedupe
// by provision id, keep the maximum similarity, union stage tags and the
// source-domain tag (spec 4.6.3 step 4). Stable-sort and truncation to the
// requested limit happen once, after every peer has been folded in.
func mergeA2A(primary []*models.SearchResult, peerDomain string, peer []*models.SearchResult) []*models.SearchResult {
	index := make(map[string]int, len(primary))
	for i, r := range primary {
		index[r.ProvisionID] = i
	}

	for _, r := range peer {
		r.ViaA2A = true
		if i, ok := index[r.ProvisionID]; ok {
			existing := primary[i]
			if r.Similarity > existing.Similarity {
				existing.Similarity = r.Similarity
			}
			existing.Stages.Union(r.Stages)
			existing.SourceDomains[peerDomain] = struct{}{}
			existing.ViaA2A = true
			continue
		}
		r.SourceDomain = peerDomain
		if r.SourceDomains == nil {
			r.SourceDomains = map[string]struct{}{}
		}
		r.SourceDomains[peerDomain] = struct{}{}
		primary = append(primary, r)
		index[r.ProvisionID] = len(primary) - 1
	}
	return primary
}
