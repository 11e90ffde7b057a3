package orchestrator

import (
	"sort"

	"github.com/superagent/legalengine/internal/models"
)

// qualityScore implements spec 4.6.2's quality formula over a domain's
// (already similarity-descending) result set.
func qualityScore(results []*models.SearchResult, tun Tunables) float64 {
	if len(results) == 0 {
		return 0
	}

	k := tun.QualityTopK
	if k > len(results) {
		k = len(results)
	}
	var sum float64
	anyExact := false
	for i := 0; i < len(results); i++ {
		if i < k {
			sum += results[i].Similarity
		}
		if results[i].Stages.Has(models.StageExactMatch) {
			anyExact = true
		}
	}
	meanTopK := sum / float64(k)
	countTerm := float64(len(results)) / float64(tun.QualityTopK)
	if countTerm > 1 {
		countTerm = 1
	}
	exactTerm := 0.0
	if anyExact {
		exactTerm = 1.0
	}

	w := tun.QualityWeights
	return w[0]*meanTopK + w[1]*countTerm + w[2]*exactTerm
}

// sortBySimilarityDesc stable-sorts in place, per spec 4.6.3's merge rule.
func sortBySimilarityDesc(results []*models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
}
