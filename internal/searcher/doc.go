// Package searcher ranks documents by lexical and semantic relevance and
// fuses the two into one deduplicated list. Lexical scoring is weighted
// fuzzy matching over document fields; semantic scoring compares the query
// vector against chunk vectors from the durable cache. Scores are
// distance-like: lower is better. Interactive callers go through
// SearchDebounced so only the newest query's results are delivered.
package searcher
