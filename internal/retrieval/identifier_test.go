package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIdentifierTokensSingleArticle(t *testing.T) {
	tokens := parseIdentifierTokens("what does article 5 say about termination?")
	assert.Equal(t, []string{"Article 5"}, tokens)
}

func TestParseIdentifierTokensRange(t *testing.T) {
	tokens := parseIdentifierTokens("summarize Article 10-12")
	assert.Equal(t, []string{"Article 10", "Article 11", "Article 12"}, tokens)
}

func TestParseIdentifierTokensSubProvision(t *testing.T) {
	tokens := parseIdentifierTokens("Article 7(a) exception")
	assert.Equal(t, []string{"Article 7(a)"}, tokens)
}

func TestParseIdentifierTokensNoMatch(t *testing.T) {
	tokens := parseIdentifierTokens("what are the termination requirements?")
	assert.Nil(t, tokens)
}

func TestParseIdentifierTokensInvertedRangeFallsBackToSingle(t *testing.T) {
	tokens := parseIdentifierTokens("Article 12-5")
	assert.Equal(t, []string{"Article 12"}, tokens)
}
