// Package domainregistry owns the in-memory set of corpus domains and their
// materialization in the graph store (spec 4.3).
package domainregistry

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/superagent/legalengine/internal/embedding"
	"github.com/superagent/legalengine/internal/graphstore"
	"github.com/superagent/legalengine/internal/models"
)

// Tunables carries the §6.4 knobs this component reads.
type Tunables struct {
	MinDomainSize            int
	MaxDomainSize            int
	SimilarityJoinThreshold  float64
	KMin, KMax               int
	KMeansInitRuns           int
	KMeansMaxIterations      int
	BootstrapMinProvisions   int
	LabelSampleSize          int
	RebalanceMaxIterations   int
}

func (t Tunables) withDefaults() Tunables {
	if t.MinDomainSize == 0 {
		t.MinDomainSize = 50
	}
	if t.MaxDomainSize == 0 {
		t.MaxDomainSize = 500
	}
	if t.SimilarityJoinThreshold == 0 {
		t.SimilarityJoinThreshold = 0.70
	}
	if t.KMin == 0 {
		t.KMin = 2
	}
	if t.KMax == 0 {
		t.KMax = 12
	}
	if t.KMeansInitRuns == 0 {
		t.KMeansInitRuns = 5
	}
	if t.KMeansMaxIterations == 0 {
		t.KMeansMaxIterations = 100
	}
	if t.BootstrapMinProvisions == 0 {
		t.BootstrapMinProvisions = 100
	}
	if t.LabelSampleSize == 0 {
		t.LabelSampleSize = 8
	}
	if t.RebalanceMaxIterations == 0 {
		t.RebalanceMaxIterations = 10
	}
	return t
}

// Registry owns domains in memory; DomainRegistry.domains is read-heavy and
// write-rare, protected by a read/write lock per spec 5.
type Registry struct {
	mu sync.RWMutex

	domains           map[string]*models.Domain
	provisionToDomain map[string]string
	embeddingCache    map[string][]float32
	memberSimilarity  map[string]float64

	store   graphstore.GraphStore
	gateway *embedding.Gateway
	tun     Tunables
	log     *logrus.Entry

	rebalanceMu sync.Mutex
}

// New constructs an empty registry; call Bootstrap before serving traffic.
func New(store graphstore.GraphStore, gateway *embedding.Gateway, tun Tunables, log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		domains:           make(map[string]*models.Domain),
		provisionToDomain: make(map[string]string),
		embeddingCache:    make(map[string][]float32),
		memberSimilarity:  make(map[string]float64),
		store:             store,
		gateway:           gateway,
		tun:               tun.withDefaults(),
		log:               log.WithField("component", "domainregistry"),
	}
}

// Snapshot returns a point-in-time, independently-mutable copy of every
// domain, for routing's centroid comparison (spec 4.6.1). Readers hold the
// read lock only for the duration of this copy.
func (r *Registry) Snapshot() []*models.Domain {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Domain, 0, len(r.domains))
	for _, d := range r.domains {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns one domain by id.
func (r *Registry) Get(domainID string) (*models.Domain, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.domains[domainID]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// MemberIDs returns the provision ids currently assigned to domainID.
func (r *Registry) MemberIDs(domainID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for pid, did := range r.provisionToDomain {
		if did == domainID {
			out = append(out, pid)
		}
	}
	sort.Strings(out)
	return out
}

// Bootstrap loads existing domains, or runs kmeans_initialize when there are
// none yet and enough embedded provisions exist (spec 4.3 bootstrap()).
func (r *Registry) Bootstrap(ctx context.Context, existingDomains []*models.Domain, existingAssignments map[string]string, candidateProvisions []*models.Provision) error {
	r.mu.Lock()
	for _, d := range existingDomains {
		r.domains[d.ID] = d.Clone()
	}
	for pid, did := range existingAssignments {
		r.provisionToDomain[pid] = did
	}
	bootstrapped := len(r.domains) > 0
	r.mu.Unlock()

	if bootstrapped {
		return nil
	}
	if len(candidateProvisions) < r.tun.BootstrapMinProvisions {
		return nil
	}
	return r.KMeansInitialize(ctx, candidateProvisions)
}

// KMeansInitialize partitions candidateProvisions into domains via k-means,
// picking k by silhouette score, then labels and persists each domain (spec
// 4.3 kmeans_initialize).
func (r *Registry) KMeansInitialize(ctx context.Context, provisions []*models.Provision) error {
	points := make([][]float64, 0, len(provisions))
	withEmbedding := make([]*models.Provision, 0, len(provisions))
	for _, p := range provisions {
		if len(p.NodeEmbedding) == 0 {
			continue
		}
		points = append(points, toFloat64(p.NodeEmbedding))
		withEmbedding = append(withEmbedding, p)
	}
	if len(points) < r.tun.KMin {
		return models.NewError(models.KindBadRequest, "not enough embedded provisions to bootstrap domains", nil)
	}

	seed := deterministicSeed("kmeans-bootstrap")
	result := bestK(points, r.tun.KMin, r.tun.KMax, seed, r.tun.KMeansInitRuns, r.tun.KMeansMaxIterations)

	clusters := make(map[int][]*models.Provision, result.k)
	for i, p := range withEmbedding {
		c := result.assignments[i]
		clusters[c] = append(clusters[c], p)
	}

	for c, members := range clusters {
		domainID := uuid.NewString()
		centroid := toFloat32(result.centroids[c])
		label := r.labelDomain(ctx, members)

		domain := &models.Domain{
			ID:          domainID,
			Label:       label,
			Cardinality: len(members),
			Centroid:    centroid,
			CreatedAt:   time.Now().UTC(),
			UpdatedAt:   time.Now().UTC(),
		}

		if err := r.persistDomain(ctx, domain, members); err != nil {
			return err
		}
	}
	return nil
}

// AssignIncremental assigns each provision to its best-matching domain, or
// creates a new singleton domain when no centroid clears the join threshold
// (spec 4.3 assign_incremental). Ties are broken by lower domain_id
// lexicographically.
func (r *Registry) AssignIncremental(ctx context.Context, provisions []*models.Provision) error {
	for _, p := range provisions {
		if len(p.NodeEmbedding) == 0 {
			continue
		}
		if err := r.assignOne(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) assignOne(ctx context.Context, p *models.Provision) error {
	r.mu.RLock()
	bestDomain := ""
	bestSim := -2.0
	for id, d := range r.domains {
		sim := cosineSimilarity32(p.NodeEmbedding, d.Centroid)
		if sim > bestSim || (sim == bestSim && id < bestDomain) {
			bestSim = sim
			bestDomain = id
		}
	}
	r.mu.RUnlock()

	if bestDomain != "" && bestSim >= r.tun.SimilarityJoinThreshold {
		return r.addToDomain(ctx, bestDomain, p, bestSim)
	}

	domainID := uuid.NewString()
	label := r.labelDomain(ctx, []*models.Provision{p})
	domain := &models.Domain{
		ID:          domainID,
		Label:       label,
		Cardinality: 1,
		Centroid:    append([]float32(nil), p.NodeEmbedding...),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	return r.persistDomain(ctx, domain, []*models.Provision{p})
}

// addToDomain joins p to domainID. sim is the cosine similarity against the
// domain's pre-update centroid that drove the join decision in assignOne;
// it is stored verbatim as p's Assignment-edge similarity (spec 3.1), while
// every other member's edge is rewritten with its last-recorded similarity
// since ReplaceAssignments replaces the whole membership set at once.
func (r *Registry) addToDomain(ctx context.Context, domainID string, p *models.Provision, sim float64) error {
	r.mu.Lock()
	domain, ok := r.domains[domainID]
	if !ok {
		r.mu.Unlock()
		return models.NewError(models.KindNotFound, "domain vanished during assignment", nil)
	}
	existingMembers := r.memberIDsLocked(domainID)
	members := append(append([]string(nil), existingMembers...), p.ID)
	newCentroid := recomputeCentroidPlaceholder(domain.Centroid, domain.Cardinality, p.NodeEmbedding)
	snapshot := domain.Clone()
	snapshot.Centroid = newCentroid
	snapshot.Cardinality = len(members)
	snapshot.UpdatedAt = time.Now().UTC()

	similarities := make(map[string]float64, len(members))
	similarities[p.ID] = sim
	var uncached []string
	for _, id := range existingMembers {
		if s, ok := r.memberSimilarity[id]; ok {
			similarities[id] = s
		} else {
			uncached = append(uncached, id)
		}
	}
	r.mu.Unlock()

	if len(uncached) > 0 {
		provisions, err := r.store.BatchGetProvisions(ctx, uncached)
		if err != nil {
			return err
		}
		for _, m := range provisions {
			similarities[m.ID] = cosineSimilarity32(m.NodeEmbedding, newCentroid)
		}
	}

	if err := r.store.ReplaceAssignments(ctx, domainID, members, similarities); err != nil {
		return err
	}
	if err := r.store.UpsertDomain(ctx, snapshot); err != nil {
		return err
	}

	r.mu.Lock()
	r.domains[domainID] = snapshot
	r.provisionToDomain[p.ID] = domainID
	for id, s := range similarities {
		r.memberSimilarity[id] = s
	}
	r.mu.Unlock()
	return nil
}

func (r *Registry) memberIDsLocked(domainID string) []string {
	var out []string
	for pid, did := range r.provisionToDomain {
		if did == domainID {
			out = append(out, pid)
		}
	}
	return out
}

// persistDomain writes a freshly computed domain (and its full membership)
// to the store. Each member's Assignment-edge similarity (spec 3.1) is its
// cosine similarity to domain.Centroid, computed here since members always
// carry their node embeddings at this call site.
func (r *Registry) persistDomain(ctx context.Context, domain *models.Domain, members []*models.Provision) error {
	ids := make([]string, len(members))
	similarities := make(map[string]float64, len(members))
	for i, m := range members {
		ids[i] = m.ID
		similarities[m.ID] = cosineSimilarity32(m.NodeEmbedding, domain.Centroid)
	}

	if err := r.store.UpsertDomain(ctx, domain); err != nil {
		return err
	}
	if err := r.store.ReplaceAssignments(ctx, domain.ID, ids, similarities); err != nil {
		return err
	}

	r.mu.Lock()
	r.domains[domain.ID] = domain.Clone()
	for _, id := range ids {
		r.provisionToDomain[id] = domain.ID
	}
	for id, s := range similarities {
		r.memberSimilarity[id] = s
	}
	r.mu.Unlock()
	return nil
}

func (r *Registry) labelDomain(ctx context.Context, sample []*models.Provision) string {
	if r.gateway == nil {
		return fallbackLabel(sample)
	}
	n := len(sample)
	if n > r.tun.LabelSampleSize {
		n = r.tun.LabelSampleSize
	}
	contents := make([]string, n)
	for i := 0; i < n; i++ {
		contents[i] = sample[i].Content
	}
	label, err := r.gateway.NameDomain(ctx, contents)
	if err != nil || label == "" {
		return fallbackLabel(sample)
	}
	return label
}

func fallbackLabel(sample []*models.Provision) string {
	if len(sample) == 0 {
		return "unlabeled-domain"
	}
	return fmt.Sprintf("domain-%s", sample[0].ID)
}

func recomputeCentroidPlaceholder(centroid []float32, cardinality int, newEmbedding []float32) []float32 {
	if cardinality == 0 || len(centroid) != len(newEmbedding) {
		return append([]float32(nil), newEmbedding...)
	}
	out := make([]float32, len(centroid))
	n := float32(cardinality)
	for i := range centroid {
		out[i] = (centroid[i]*n + newEmbedding[i]) / (n + 1)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func cosineSimilarity32(a, b []float32) float64 {
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

// deterministicSeed derives a stable int64 seed from a label, so
// kmeans_initialize's "fixed seed" requirement does not depend on wall-clock
// time.
func deterministicSeed(label string) int64 {
	sum := sha1.Sum([]byte(label))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
