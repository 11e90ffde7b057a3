package models

// Stage names used in SearchResult.Stages and in progress events (spec 6.3).
const (
	StageExactMatch        = "exact_match"
	StageNodeEmbedding     = "node_embedding"
	StageRelationEmbedding = "relation_embedding"
	StageExpansion         = "expansion"
	StageEnrichment        = "enrichment"
)

// StageSet is a small ordered-insensitive set of stage tags, used because a
// result can be rediscovered by several channels and its tags must union on
// merge (spec 4.4 fusion, 4.6.3 A2A merge).
type StageSet map[string]struct{}

func NewStageSet(stages ...string) StageSet {
	s := make(StageSet, len(stages))
	for _, st := range stages {
		s[st] = struct{}{}
	}
	return s
}

func (s StageSet) Add(stage string) { s[stage] = struct{}{} }

func (s StageSet) Union(other StageSet) {
	for st := range other {
		s[st] = struct{}{}
	}
}

func (s StageSet) Slice() []string {
	out := make([]string, 0, len(s))
	for st := range s {
		out = append(out, st)
	}
	return out
}

func (s StageSet) Has(stage string) bool {
	_, ok := s[stage]
	return ok
}

// SearchResult is one ranked candidate, carried through fusion, expansion,
// A2A merge and final enrichment.
type SearchResult struct {
	ProvisionID string
	Content     string

	DocumentTitle   string
	ProvisionPath   string
	ProvisionNumber string

	Similarity float64
	Stages     StageSet

	// SourceDomain is the domain that produced this hit; SourceDomains
	// accumulates every contributing domain once A2A results are merged.
	SourceDomain  string
	SourceDomains map[string]struct{}
	ViaA2A        bool

	// DiscoveryKind is populated for results introduced by RAE (spec 4.5):
	// one of sibling/parent/child/cross_document. Empty for direct channel
	// hits.
	DiscoveryKind EdgeKind
}

// Clone returns a result safe to mutate independently of the original,
// copying the stage and source-domain sets.
func (r *SearchResult) Clone() *SearchResult {
	clone := *r
	clone.Stages = make(StageSet, len(r.Stages))
	clone.Stages.Union(r.Stages)
	clone.SourceDomains = make(map[string]struct{}, len(r.SourceDomains))
	for d := range r.SourceDomains {
		clone.SourceDomains[d] = struct{}{}
	}
	return &clone
}

// SearchStats accompanies the final result set (spec 6.1).
type SearchStats struct {
	DomainsQueried int  `json:"domains_queried"`
	A2ATriggered   bool `json:"a2a_triggered"`
	LLMCalls       int  `json:"llm_calls"`
	ElapsedMs      int64 `json:"elapsed_ms"`
}

// SynthesizedAnswer is the optional natural-language synthesis (spec 4.6.5).
type SynthesizedAnswer struct {
	Summary           string   `json:"summary"`
	DetailedAnswer    string   `json:"detailed_answer"`
	CitedIdentifiers  []string `json:"cited_identifiers"`
	Confidence        float64  `json:"confidence"`
	Fallback          bool     `json:"fallback"`
}

// SearchRequest is the decoded body of POST /search and /search/stream.
type SearchRequest struct {
	Query       string `json:"query" binding:"required"`
	Limit       int    `json:"limit"`
	Synthesize  bool   `json:"synthesize"`
	TimeoutMs   int    `json:"timeout_ms"`
}

// SearchResponse is the terminal payload for both the synchronous and
// streaming endpoints (spec 6.1, 6.3 status=complete).
type SearchResponse struct {
	Results           []ResultDTO        `json:"results"`
	Stats             SearchStats        `json:"stats"`
	PrimaryDomain     string             `json:"primary_domain"`
	SynthesizedAnswer *SynthesizedAnswer `json:"synthesized_answer,omitempty"`
}

// ResultDTO is the wire shape of one result (spec 6.1).
type ResultDTO struct {
	ProvisionID     string   `json:"provision_id"`
	Content         string   `json:"content"`
	DocumentTitle   string   `json:"document_title"`
	ProvisionPath   string   `json:"provision_path"`
	ProvisionNumber string   `json:"provision_number"`
	Similarity      float64  `json:"similarity"`
	Stages          []string `json:"stages"`
	SourceDomain    string   `json:"source_domain"`
	ViaA2A          bool     `json:"via_a2a"`
}

// ToDTO projects an internal SearchResult to its wire representation.
func (r *SearchResult) ToDTO() ResultDTO {
	return ResultDTO{
		ProvisionID:     r.ProvisionID,
		Content:         r.Content,
		DocumentTitle:   r.DocumentTitle,
		ProvisionPath:   r.ProvisionPath,
		ProvisionNumber: r.ProvisionNumber,
		Similarity:      r.Similarity,
		Stages:          r.Stages.Slice(),
		SourceDomain:    r.SourceDomain,
		ViaA2A:          r.ViaA2A,
	}
}
