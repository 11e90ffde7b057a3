package domainregistry

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/superagent/legalengine/internal/models"
)

// Rebalance is the maintenance pass of spec 4.3: splits oversized domains,
// merges undersized ones, and loops until no operation applies or
// RebalanceMaxIterations is reached. Gated by rebalanceMu so two passes
// never overlap (spec 5).
func (r *Registry) Rebalance(ctx context.Context) error {
	if !r.rebalanceMu.TryLock() {
		return nil
	}
	defer r.rebalanceMu.Unlock()

	for iteration := 0; iteration < r.tun.RebalanceMaxIterations; iteration++ {
		oversized := r.oversizedDomainsDescending()
		didWork := false

		for _, domainID := range oversized {
			if err := r.Split(ctx, domainID); err != nil {
				return err
			}
			didWork = true
		}

		undersized := r.undersizedDomains()
		for _, domainID := range undersized {
			target, err := r.closestDomainBySimilarity(domainID)
			if err != nil {
				continue
			}
			if err := r.Merge(ctx, domainID, target); err != nil {
				return err
			}
			didWork = true
		}

		if !didWork {
			return nil
		}
	}
	return nil
}

func (r *Registry) oversizedDomainsDescending() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type entry struct {
		id   string
		size int
	}
	var entries []entry
	for id, d := range r.domains {
		if d.Cardinality > r.tun.MaxDomainSize {
			entries = append(entries, entry{id, d.Cardinality})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].size > entries[j].size })

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out
}

func (r *Registry) undersizedDomains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for id, d := range r.domains {
		if d.Cardinality < r.tun.MinDomainSize {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) closestDomainBySimilarity(domainID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	source, ok := r.domains[domainID]
	if !ok {
		return "", models.NewError(models.KindNotFound, "domain not found", nil)
	}

	best := ""
	bestSim := -2.0
	for id, d := range r.domains {
		if id == domainID {
			continue
		}
		sim := cosineSimilarity32(source.Centroid, d.Centroid)
		if sim > bestSim || (sim == bestSim && id < best) {
			bestSim = sim
			best = id
		}
	}
	if best == "" {
		return "", models.NewError(models.KindNotFound, "no merge target available", nil)
	}
	return best, nil
}

// Split runs 2-means on domainID's members, creates two new domains, labels
// them, deletes the original, and updates all assignment edges (spec 4.3
// split). Transactional at the assignment-edge level: the original domain is
// only deleted after both new domains' assignments are persisted.
func (r *Registry) Split(ctx context.Context, domainID string) error {
	memberIDs := r.MemberIDs(domainID)
	if len(memberIDs) < 2 {
		return nil
	}

	members, err := r.store.BatchGetProvisions(ctx, memberIDs)
	if err != nil {
		return err
	}

	points := make([][]float64, 0, len(members))
	withEmbedding := make([]*models.Provision, 0, len(members))
	for _, m := range members {
		if len(m.NodeEmbedding) == 0 {
			continue
		}
		points = append(points, toFloat64(m.NodeEmbedding))
		withEmbedding = append(withEmbedding, m)
	}
	if len(points) < 2 {
		return nil
	}

	seed := deterministicSeed("split-" + domainID)
	result := kmeans(points, 2, seed, r.tun.KMeansInitRuns, r.tun.KMeansMaxIterations)

	clusters := make(map[int][]*models.Provision, 2)
	for i, p := range withEmbedding {
		c := result.assignments[i]
		clusters[c] = append(clusters[c], p)
	}
	if len(clusters) < 2 {
		return nil
	}

	var newDomains []*models.Domain
	for c, cmembers := range clusters {
		newDomain := &models.Domain{
			ID:          uuid.NewString(),
			Label:       r.labelDomain(ctx, cmembers),
			Cardinality: len(cmembers),
			Centroid:    toFloat32(result.centroids[c]),
			CreatedAt:   time.Now().UTC(),
			UpdatedAt:   time.Now().UTC(),
		}
		if err := r.persistDomain(ctx, newDomain, cmembers); err != nil {
			return err
		}
		newDomains = append(newDomains, newDomain)
	}

	if err := r.store.DeleteDomain(ctx, domainID); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.domains, domainID)
	r.mu.Unlock()

	_ = newDomains
	return nil
}

// Merge moves all of b's provisions into a (the surviving id is whichever
// domain is larger), recomputes a's centroid, and deletes b (spec 4.3
// merge).
func (r *Registry) Merge(ctx context.Context, a, b string) error {
	r.mu.RLock()
	da, okA := r.domains[a]
	db, okB := r.domains[b]
	r.mu.RUnlock()
	if !okA || !okB {
		return models.NewError(models.KindNotFound, "merge target domain not found", nil)
	}

	surviving, dying := a, b
	if db.Cardinality > da.Cardinality {
		surviving, dying = b, a
	}

	survivingMembers := r.MemberIDs(surviving)
	dyingMembers := r.MemberIDs(dying)
	allIDs := append(append([]string(nil), survivingMembers...), dyingMembers...)

	allProvisions, err := r.store.BatchGetProvisions(ctx, allIDs)
	if err != nil {
		return err
	}
	centroid := meanEmbedding(allProvisions)

	r.mu.RLock()
	label := r.domains[surviving].Label
	r.mu.RUnlock()

	merged := &models.Domain{
		ID:          surviving,
		Label:       label,
		Cardinality: len(allIDs),
		Centroid:    centroid,
		UpdatedAt:   time.Now().UTC(),
	}

	// Assignment-edge similarity (spec 3.1) is recomputed against the
	// merged centroid for every member, surviving and absorbed alike,
	// since the merge moves both sets onto a single new centroid.
	similarities := make(map[string]float64, len(allProvisions))
	for _, m := range allProvisions {
		similarities[m.ID] = cosineSimilarity32(m.NodeEmbedding, centroid)
	}

	if err := r.store.UpsertDomain(ctx, merged); err != nil {
		return err
	}
	if err := r.store.ReplaceAssignments(ctx, surviving, allIDs, similarities); err != nil {
		return err
	}
	if err := r.store.DeleteDomain(ctx, dying); err != nil {
		return err
	}

	r.mu.Lock()
	r.domains[surviving] = merged
	delete(r.domains, dying)
	for _, id := range allIDs {
		r.provisionToDomain[id] = surviving
	}
	for id, s := range similarities {
		r.memberSimilarity[id] = s
	}
	r.mu.Unlock()
	return nil
}

func meanEmbedding(provisions []*models.Provision) []float32 {
	var dim int
	for _, p := range provisions {
		if len(p.NodeEmbedding) > 0 {
			dim = len(p.NodeEmbedding)
			break
		}
	}
	if dim == 0 {
		return nil
	}
	sum := make([]float64, dim)
	count := 0
	for _, p := range provisions {
		if len(p.NodeEmbedding) != dim {
			continue
		}
		for i, x := range p.NodeEmbedding {
			sum[i] += float64(x)
		}
		count++
	}
	if count == 0 {
		return nil
	}
	out := make([]float32, dim)
	for i, x := range sum {
		out[i] = float32(x / float64(count))
	}
	return out
}
