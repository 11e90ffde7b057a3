package retrieval

import "sort"

// channelHit is one item as produced by a single retrieval channel, already
// ranked within that channel (index 0 is rank 1).
type channelHit struct {
	provisionID string
	similarity  float64
}

// fused is one post-RRF candidate, still keyed by provision id.
type fused struct {
	provisionID string
	score       float64
	similarity  float64
	stages      map[string]struct{}
}

// fuseRRF combines per-channel ranked lists into a single list ordered by
// reciprocal-rank-fusion score, truncated to limit (spec 4.4 Fusion).
func fuseRRF(channels map[string][]channelHit, rrfK, exactBonus float64, limit int) []fused {
	byID := make(map[string]*fused)

	order := make([]string, 0, len(channels))
	for stage := range channels {
		order = append(order, stage)
	}
	sort.Strings(order)

	for _, stage := range order {
		hits := channels[stage]
		for rank, h := range hits {
			f, ok := byID[h.provisionID]
			if !ok {
				f = &fused{provisionID: h.provisionID, stages: make(map[string]struct{})}
				byID[h.provisionID] = f
			}
			f.score += 1.0 / (rrfK + float64(rank+1))
			if stage == stageExactMatch {
				f.score += exactBonus
			}
			if h.similarity > f.similarity {
				f.similarity = h.similarity
			}
			f.stages[stage] = struct{}{}
		}
	}

	out := make([]fused, 0, len(byID))
	for _, f := range byID {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].provisionID < out[j].provisionID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
