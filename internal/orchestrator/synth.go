package orchestrator

import (
	"context"

	"github.com/superagent/legalengine/internal/embedding"
	"github.com/superagent/legalengine/internal/models"
)

// synthesize implements spec 4.6.5: ask the LLM to ground an answer in the
// top SynthTopN results, falling back to a conventional non-LLM answer
// (with Fallback=true) if the LLM is unavailable or its response doesn't fit
// the schema.
func (o *Orchestrator) synthesize(ctx context.Context, query string, results []*models.SearchResult) *models.SynthesizedAnswer {
	if o.gateway == nil {
		return fallbackAnswer(results)
	}

	n := min(o.tun.SynthTopN, len(results))
	items := make([]embedding.SynthesisItem, n)
	for i := 0; i < n; i++ {
		items[i] = embedding.SynthesisItem{
			Identifier:     results[i].ProvisionID,
			ContentSnippet: snippet(results[i].Content, 280),
			DomainLabel:    results[i].SourceDomain,
			Similarity:     results[i].Similarity,
		}
	}

	answer, err := o.gateway.Synthesize(ctx, query, items)
	if err != nil {
		o.log.WithError(err).Warn("synthesis unavailable, returning fallback answer")
		return fallbackAnswer(results)
	}
	return answer
}

func fallbackAnswer(results []*models.SearchResult) *models.SynthesizedAnswer {
	n := min(5, len(results))
	cited := make([]string, n)
	for i := 0; i < n; i++ {
		cited[i] = results[i].ProvisionID
	}
	return &models.SynthesizedAnswer{
		Summary:          "here are the top results for your query",
		DetailedAnswer:   "synthesis was unavailable; review the ranked results below",
		CitedIdentifiers: cited,
		Confidence:       0,
		Fallback:         true,
	}
}

func snippet(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
