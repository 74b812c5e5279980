package searcher

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/noteseek/noteseek/pkg/types"
)

// semanticSearch ranks documents by cosine similarity between the query
// vector and their cached chunk vectors. Each document scores by its best
// chunk; documents below the similarity floor are excluded and at most
// SemanticCap documents are returned. Queries shorter than
// MinSemanticQueryLength match nothing.
func (s *Searcher) semanticSearch(ctx context.Context, query string, docs []*types.Document) ([]*types.SearchResult, error) {
	normalized := strings.TrimSpace(query)
	if len([]rune(normalized)) < MinSemanticQueryLength {
		return nil, nil
	}

	queryVector, err := s.engine.EmbedQuery(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	docIDs := make([]string, len(docs))
	byID := make(map[string]*types.Document, len(docs))
	for i, doc := range docs {
		docIDs[i] = doc.ID
		byID[doc.ID] = doc
	}

	// Cache errors degrade to a miss: an unreadable store means no cached
	// vectors, not a failed search.
	embeddings, err := s.cache.GetEmbeddingsByDocumentIDs(ctx, docIDs)
	if err != nil {
		s.logger.Warn("embedding cache read failed", "error", err)
		embeddings = nil
	}

	type docMatch struct {
		doc        *types.Document
		similarity float64
		chunkID    string
	}

	matches := make([]docMatch, 0)
	for docID, docEmbeddings := range embeddings {
		doc, ok := byID[docID]
		if !ok {
			continue
		}

		var best float64
		var bestChunk string
		for _, emb := range docEmbeddings {
			sim := CosineSimilarity(queryVector, emb.Vector)
			if sim > best {
				best = sim
				bestChunk = emb.ChunkID
			}
		}
		if best < s.config.SemanticFloor {
			continue
		}
		matches = append(matches, docMatch{doc: doc, similarity: best, chunkID: bestChunk})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].similarity != matches[j].similarity {
			return matches[i].similarity > matches[j].similarity
		}
		return matches[i].doc.ID < matches[j].doc.ID
	})
	if len(matches) > s.config.SemanticCap {
		matches = matches[:s.config.SemanticCap]
	}

	results := make([]*types.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, &types.SearchResult{
			Document:     m.doc,
			Score:        1 - m.similarity,
			Kind:         types.MatchSemantic,
			MatchedChunk: s.lookupChunk(m.doc, m.chunkID),
		})
	}
	return results, nil
}

// lookupChunk re-derives a document's chunks to recover the text of the
// best-matching chunk. Chunking is deterministic, so the stored chunk id
// resolves to the same span it was embedded from.
func (s *Searcher) lookupChunk(doc *types.Document, chunkID string) *types.TextChunk {
	if chunkID == "" {
		return nil
	}
	for _, chunk := range s.chunker.Chunk(doc) {
		if chunk.ID == chunkID {
			return chunk
		}
	}
	return nil
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched lengths and zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
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
