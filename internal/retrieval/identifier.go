package retrieval

import (
	"regexp"
	"strconv"
)

// articlePattern recognizes the corpus's identifier convention: "Article N",
// "Article N-M" (a range) and "Article N(k)" (a sub-provision), matched
// case-insensitively (spec 4.4 channel 1).
var articlePattern = regexp.MustCompile(`(?i)article\s+(\d+)(?:\s*-\s*(\d+))?(?:\s*\(\s*(\w+)\s*\))?`)

// parseIdentifierTokens extracts candidate identifier substrings from query.
// A bare "Article N" yields one token; a range "Article N-M" expands to one
// token per article in the range; a sub-provision "Article N(k)" yields the
// single, more specific token. Returns nil when the query carries no
// recognizable identifier.
func parseIdentifierTokens(query string) []string {
	m := articlePattern.FindStringSubmatch(query)
	if m == nil {
		return nil
	}

	from, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}

	if m[3] != "" {
		return []string{"Article " + m[1] + "(" + m[3] + ")"}
	}

	if m[2] == "" {
		return []string{"Article " + m[1]}
	}

	to, err := strconv.Atoi(m[2])
	if err != nil || to < from {
		return []string{"Article " + m[1]}
	}

	const maxRange = 50
	if to-from > maxRange {
		to = from + maxRange
	}
	tokens := make([]string, 0, to-from+1)
	for n := from; n <= to; n++ {
		tokens = append(tokens, "Article "+strconv.Itoa(n))
	}
	return tokens
}
