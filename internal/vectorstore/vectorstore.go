package vectorstore

import (
	"clarity/internal/core"
	"context"
)

// VectorStore provides semantic search over content source embeddings.
// Similarity is cosine similarity (1 - cosine distance), higher is closer.
type VectorStore interface {
	// FindSimilar returns sources whose embedding similarity to the query
	// vector is at least the threshold, ordered by similarity descending,
	// capped at the limit.
	FindSimilar(ctx context.Context, query SearchQuery) ([]SearchResult, error)
}

// SearchQuery configures a similarity search
type SearchQuery struct {
	// Embedding is the query vector (768-dim for Gemini)
	Embedding []float64

	// SimilarityThreshold is the minimum cosine similarity (0.0-1.0, default: 0.7)
	// Higher values = more strict matching
	SimilarityThreshold float64

	// Limit is the maximum number of results to return (default: 5)
	Limit int
}

// SearchResult contains a matching source and its similarity score
type SearchResult struct {
	// Source is the matched content source
	Source core.ContentSource

	// Similarity is the cosine similarity (higher = more similar)
	Similarity float64
}

const (
	// DefaultLimit caps results when the query leaves Limit unset
	DefaultLimit = 5

	// DefaultSimilarityThreshold applies when the query leaves the threshold unset
	DefaultSimilarityThreshold = 0.7
)

func (q *SearchQuery) applyDefaults() {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SimilarityThreshold == 0 {
		q.SimilarityThreshold = DefaultSimilarityThreshold
	}
}
