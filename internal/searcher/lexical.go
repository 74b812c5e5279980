package searcher

import (
	"strings"

	"github.com/xrash/smetrics"

	"github.com/noteseek/noteseek/pkg/types"
)

// Field weights for lexical scoring. They sum to 1.0 so the weighted
// similarity stays in [0, 1].
const (
	weightTitle    = 0.4
	weightContent  = 0.3
	weightTags     = 0.2
	weightNotebook = 0.1
)

// Jaro-Winkler parameters: standard prefix boost with a 4-character prefix
const (
	jwBoostThreshold = 0.7
	jwPrefixSize     = 4
)

// lexicalSearch scores every document by weighted fuzzy field matching and
// keeps those at or above the similarity threshold. Queries shorter than
// MinLexicalQueryLength match nothing.
func (s *Searcher) lexicalSearch(query string, docs []*types.Document) []*types.SearchResult {
	normalized := strings.TrimSpace(strings.ToLower(query))
	if len([]rune(normalized)) < MinLexicalQueryLength {
		return nil
	}

	results := make([]*types.SearchResult, 0)
	for _, doc := range docs {
		similarity := lexicalSimilarity(normalized, doc)
		if similarity < s.config.LexicalThreshold {
			continue
		}
		results = append(results, &types.SearchResult{
			Document: doc,
			Score:    1 - similarity,
			Kind:     types.MatchLexical,
		})
	}
	return results
}

// lexicalSimilarity computes the weighted similarity of a normalized query
// against a document's fields
func lexicalSimilarity(query string, doc *types.Document) float64 {
	sim := weightTitle * fieldSimilarity(query, doc.Title)
	sim += weightContent * fieldSimilarity(query, doc.Content)
	sim += weightTags * fieldSimilarity(query, strings.Join(doc.Tags, " "))
	sim += weightNotebook * fieldSimilarity(query, doc.Notebook)
	return sim
}

// fieldSimilarity matches a query against one field. Substring containment
// is a full match; otherwise each query token takes its best Jaro-Winkler
// score against the field's tokens and the token scores are averaged, so
// misspellings still rank.
func fieldSimilarity(query, field string) float64 {
	if field == "" {
		return 0
	}
	field = strings.ToLower(field)

	if strings.Contains(field, query) {
		return 1.0
	}

	queryTokens := strings.Fields(query)
	fieldTokens := strings.Fields(field)
	if len(queryTokens) == 0 || len(fieldTokens) == 0 {
		return 0
	}

	var total float64
	for _, qt := range queryTokens {
		var best float64
		for _, ft := range fieldTokens {
			score := smetrics.JaroWinkler(qt, ft, jwBoostThreshold, jwPrefixSize)
			if score > best {
				best = score
			}
		}
		total += best
	}
	return total / float64(len(queryTokens))
}
