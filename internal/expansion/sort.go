package expansion

import "sort"

// sortHits orders hits by (cost ascending, provision_id ascending), per
// spec 4.5's ordering and tie-break rule.
func sortHits(hits []Hit, dist map[string]float64) {
	sort.Slice(hits, func(i, j int) bool {
		ci, cj := dist[hits[i].ProvisionID], dist[hits[j].ProvisionID]
		if ci != cj {
			return ci < cj
		}
		return hits[i].ProvisionID < hits[j].ProvisionID
	})
}
