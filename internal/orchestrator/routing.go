package orchestrator

import (
	"context"
	"math"
	"sort"

	"github.com/superagent/legalengine/internal/models"
)

type domainCandidate struct {
	ID         string
	Label      string
	CentroidSim float64
	Combined    float64
}

// route implements spec 4.6.1: embed the query, pre-filter by centroid
// similarity, ask the LLM for a self-assessment per candidate, and rank by
// the LLM/centroid blend. Returns the primary domain and up to
// PeerCandidates runner-ups, plus how many LLM calls were made.
func (o *Orchestrator) route(ctx context.Context, query string, nodeQueryVec []float32) (domainCandidate, []domainCandidate, int, error) {
	domains := o.registry.Snapshot()
	if len(domains) == 0 {
		return domainCandidate{}, nil, 0, models.NewError(models.KindNotInitialized, "no domains exist yet", nil)
	}

	type scored struct {
		domain *models.Domain
		sim    float64
	}
	ranked := make([]scored, 0, len(domains))
	for _, d := range domains {
		ranked = append(ranked, scored{domain: d, sim: cosineSimilarity(nodeQueryVec, d.Centroid)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].sim > ranked[j].sim })

	routeN := o.tun.RouteCandidates
	if routeN > len(ranked) {
		routeN = len(ranked)
	}
	ranked = ranked[:routeN]

	llmCalls := 0
	candidates := make([]domainCandidate, 0, len(ranked))
	for _, r := range ranked {
		combined := r.sim
		if o.gateway != nil {
			sample := o.sampleIdentifiers(r.domain.ID)
			assessment, err := o.gateway.AssessDomain(ctx, query, r.domain.Label, r.domain.Cardinality, sample)
			llmCalls++
			if err == nil {
				combined = o.tun.LLMWeight*assessment.Confidence + (1-o.tun.LLMWeight)*r.sim
			} else {
				o.log.WithError(err).WithField("domain", r.domain.ID).Warn("domain self-assessment unavailable, routing on centroid similarity alone")
			}
		}
		candidates = append(candidates, domainCandidate{ID: r.domain.ID, Label: r.domain.Label, CentroidSim: r.sim, Combined: combined})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Combined > candidates[j].Combined })

	primary := candidates[0]
	peerN := o.tun.PeerCandidates
	rest := candidates[1:]
	if peerN > len(rest) {
		peerN = len(rest)
	}
	return primary, rest[:peerN], llmCalls, nil
}

func (o *Orchestrator) sampleIdentifiers(domainID string) []string {
	members := o.registry.MemberIDs(domainID)
	n := o.tun.LabelSampleSize
	if n > len(members) {
		n = len(members)
	}
	return members[:n]
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
