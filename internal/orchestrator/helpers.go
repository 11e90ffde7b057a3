package orchestrator

import (
	"fmt"

	"github.com/superagent/legalengine/internal/expansion"
	"github.com/superagent/legalengine/internal/models"
)

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

// topSeeds converts the retriever's top RAESeeds hits into expansion seeds.
func topSeeds(results []*models.SearchResult, n int) []expansion.Seed {
	if n > len(results) {
		n = len(results)
	}
	seeds := make([]expansion.Seed, n)
	for i := 0; i < n; i++ {
		seeds[i] = expansion.Seed{ProvisionID: results[i].ProvisionID, Similarity: results[i].Similarity}
	}
	return seeds
}

// relabelDomains rewrites every result's SourceDomain/SourceDomains from
// internal domain ids to their human-readable labels, so results display a
// label a caller recognizes (spec 8.3 scenario text references domains by
// label) without losing which domain(s) actually produced each hit.
func relabelDomains(results []*models.SearchResult, labelByID map[string]string) {
	labelOf := func(id string) string {
		if l, ok := labelByID[id]; ok {
			return l
		}
		return id
	}
	for _, r := range results {
		r.SourceDomain = labelOf(r.SourceDomain)
		relabeled := make(map[string]struct{}, len(r.SourceDomains))
		for id := range r.SourceDomains {
			relabeled[labelOf(id)] = struct{}{}
		}
		r.SourceDomains = relabeled
	}
}

func labelToID(candidates []domainCandidate, label string) (string, bool) {
	for _, c := range candidates {
		if c.Label == label {
			return c.ID, true
		}
	}
	return "", false
}

func summarizeResults(results []*models.SearchResult) string {
	if len(results) == 0 {
		return "no results found"
	}
	n := len(results)
	if n > 5 {
		n = 5
	}
	summary := ""
	for i := 0; i < n; i++ {
		summary += fmt.Sprintf("- %s (similarity %.2f)\n", results[i].ProvisionID, results[i].Similarity)
	}
	return summary
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
