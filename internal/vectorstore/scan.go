package vectorstore

import (
	"clarity/internal/core"
	"clarity/internal/llm"
	"context"
	"fmt"
	"sort"
)

// SourceLister supplies the candidate set for a brute-force scan.
// Implemented by the persistence layer's source repository.
type SourceLister interface {
	ListWithEmbeddings(ctx context.Context) ([]core.ContentSource, error)
}

// ScanAdapter implements VectorStore with a linear cosine-similarity scan
// over all stored source embeddings. The source corpus is small (hundreds,
// not millions), so a full scan stays sub-second; swap in pgvector before
// the corpus outgrows that.
type ScanAdapter struct {
	sources SourceLister
}

// NewScanAdapter creates a brute-force scan vector store
func NewScanAdapter(sources SourceLister) *ScanAdapter {
	return &ScanAdapter{sources: sources}
}

// FindSimilar computes cosine similarity against every embedded source,
// filters by the threshold, and returns the top results ordered by
// similarity descending. Ties keep insertion order (stable sort).
func (s *ScanAdapter) FindSimilar(ctx context.Context, query SearchQuery) ([]SearchResult, error) {
	query.applyDefaults()

	candidates, err := s.sources.ListWithEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate sources: %w", err)
	}

	var results []SearchResult
	for _, candidate := range candidates {
		similarity := llm.CosineSimilarity(query.Embedding, candidate.Embedding)
		if similarity >= query.SimilarityThreshold {
			results = append(results, SearchResult{Source: candidate, Similarity: similarity})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > query.Limit {
		results = results[:query.Limit]
	}

	return results, nil
}
