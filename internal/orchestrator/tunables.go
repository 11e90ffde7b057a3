// Package orchestrator implements the top-level request handler (C6): domain
// routing, primary search, A2A peer collaboration, result merging, optional
// synthesis and incremental progress emission.
package orchestrator

// Tunables carries the §6.4 knobs this component reads, plus the
// spec-referenced-but-undefaulted constants this implementation fixes:
// MIN_RESULTS, RAE_SEEDS and the quality weights w1/w2/w3 (spec 4.6.2 names
// them without giving defaults; chosen here and recorded as an open-question
// decision).
type Tunables struct {
	RouteCandidates int
	PeerCandidates  int
	MaxPeers        int
	LLMWeight       float64
	QualityFloor    float64
	MinResults      int
	RAESeeds        int
	SynthTopN       int

	// QualityTopK is "K" in the quality formula: both the window for the
	// mean-similarity term and the normalizer for the result-count term.
	QualityTopK int
	// QualityWeights are w1 (mean similarity), w2 (result count) and w3
	// (exact-hit bonus); they must sum to 1.
	QualityWeights [3]float64

	LabelSampleSize int
}

func (t Tunables) withDefaults() Tunables {
	if t.RouteCandidates == 0 {
		t.RouteCandidates = 5
	}
	if t.PeerCandidates == 0 {
		t.PeerCandidates = 4
	}
	if t.MaxPeers == 0 {
		t.MaxPeers = 2
	}
	if t.LLMWeight == 0 {
		t.LLMWeight = 0.7
	}
	if t.QualityFloor == 0 {
		t.QualityFloor = 0.60
	}
	if t.MinResults == 0 {
		t.MinResults = 3
	}
	if t.RAESeeds == 0 {
		t.RAESeeds = 5
	}
	if t.SynthTopN == 0 {
		t.SynthTopN = 10
	}
	if t.QualityTopK == 0 {
		t.QualityTopK = 5
	}
	if t.QualityWeights == ([3]float64{}) {
		t.QualityWeights = [3]float64{0.5, 0.3, 0.2}
	}
	if t.LabelSampleSize == 0 {
		t.LabelSampleSize = 8
	}
	return t
}
