package embedding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/superagent/legalengine/internal/models"
)

// SynthesisItem is one result handed to the LLM for synthesis (spec 4.6.5):
// just enough to ground an answer without shipping full result payloads.
type SynthesisItem struct {
	Identifier     string  `json:"identifier"`
	ContentSnippet string  `json:"content_snippet"`
	DomainLabel    string  `json:"domain_label"`
	Similarity     float64 `json:"similarity"`
}

var synthesisKeys = []string{"summary", "detailed_answer", "cited_identifiers", "confidence"}

// Synthesize asks the LLM to write a natural-language answer grounded in
// items. Callers fall back to a conventional, non-LLM answer on error.
func (g *Gateway) Synthesize(ctx context.Context, query string, items []SynthesisItem) (*models.SynthesizedAnswer, error) {
	encodedItems, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(
		"Answer the following legal query using only the supplied results; cite identifiers you rely on.\n"+
			"Query: %q\nResults: %s\n"+
			"Respond with JSON: {\"summary\": string, \"detailed_answer\": string, "+
			"\"cited_identifiers\": [string], \"confidence\": float between 0 and 1}.",
		query, string(encodedItems))

	obj, _, err := g.LLMStructured(ctx, prompt, synthesisKeys, StructuredOptions{})
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var out models.SynthesizedAnswer
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
