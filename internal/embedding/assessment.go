package embedding

import (
	"context"
	"encoding/json"
	"fmt"
)

// DomainAssessment is C6's per-candidate self-assessment result (spec 4.6.1).
type DomainAssessment struct {
	CanAnswer  bool    `json:"can_answer"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

var domainAssessmentKeys = []string{"can_answer", "confidence", "reasoning"}

// AssessDomain asks the LLM whether domainLabel looks able to answer query,
// given a small sample of member identifiers.
func (g *Gateway) AssessDomain(ctx context.Context, query, domainLabel string, cardinality int, sampleIdentifiers []string) (*DomainAssessment, error) {
	prompt := fmt.Sprintf(
		"You are assessing whether a legal-corpus domain can answer a query.\n"+
			"Domain label: %s\nDomain size: %d\nSample identifiers: %v\nQuery: %q\n"+
			"Respond with JSON: {\"can_answer\": bool, \"confidence\": float between 0 and 1, \"reasoning\": string}.",
		domainLabel, cardinality, sampleIdentifiers, query)

	obj, _, err := g.LLMStructured(ctx, prompt, domainAssessmentKeys, StructuredOptions{})
	if err != nil {
		return nil, err
	}
	return decodeDomainAssessment(obj)
}

func decodeDomainAssessment(obj map[string]any) (*DomainAssessment, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var out DomainAssessment
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CollaborationTarget is one peer domain the LLM proposes delegating to
// (spec 4.6.3).
type CollaborationTarget struct {
	DomainLabel  string `json:"domain_label"`
	RefinedQuery string `json:"refined_query"`
	Reason       string `json:"reason"`
}

// CollaborationDecision is the orchestrator's should-we-collaborate call.
type CollaborationDecision struct {
	ShouldCollaborate bool                  `json:"should_collaborate"`
	Targets           []CollaborationTarget `json:"targets"`
}

var collaborationDecisionKeys = []string{"should_collaborate", "targets"}

// DecideCollaboration asks the LLM whether peer domains should be consulted
// given the primary domain's result summary and the list of peer candidates.
func (g *Gateway) DecideCollaboration(ctx context.Context, query, resultSummary string, peerCandidates []string) (*CollaborationDecision, error) {
	prompt := fmt.Sprintf(
		"A primary legal-corpus domain answered a query with the following summary:\n%s\n"+
			"Query: %q\nCandidate peer domains: %v\n"+
			"Decide whether any peer domains should be consulted with a refined sub-query.\n"+
			"Respond with JSON: {\"should_collaborate\": bool, \"targets\": "+
			"[{\"domain_label\": string, \"refined_query\": string, \"reason\": string}]}.",
		resultSummary, query, peerCandidates)

	obj, _, err := g.LLMStructured(ctx, prompt, collaborationDecisionKeys, StructuredOptions{})
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var out CollaborationDecision
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DomainLabelResult is the outcome of naming a new/split domain (spec 4.3).
type DomainLabelResult struct {
	Label string `json:"label"`
}

var domainLabelKeys = []string{"label"}

// NameDomain asks the LLM for a short human-readable label given a sample of
// provisions near the domain's centroid. Callers fall back to a synthesized
// generic label on error.
func (g *Gateway) NameDomain(ctx context.Context, sampleContents []string) (string, error) {
	prompt := fmt.Sprintf(
		"Given these sample legal provisions from one corpus partition, propose a short "+
			"human-readable label (at most 4 words):\n%v\n"+
			"Respond with JSON: {\"label\": string}.", sampleContents)

	obj, _, err := g.LLMStructured(ctx, prompt, domainLabelKeys, StructuredOptions{})
	if err != nil {
		return "", err
	}
	label, _ := obj["label"].(string)
	return label, nil
}
