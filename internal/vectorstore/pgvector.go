package vectorstore

import (
	"clarity/internal/core"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgVectorAdapter implements VectorStore using PostgreSQL with the pgvector
// extension. Cosine distance is computed by the <=> operator.
type PgVectorAdapter struct {
	db *sql.DB
}

// NewPgVectorAdapter creates a new pgvector-based vector store
func NewPgVectorAdapter(db *sql.DB) *PgVectorAdapter {
	return &PgVectorAdapter{db: db}
}

// FindSimilar finds content sources similar to the query embedding.
// Uses cosine distance (<=> operator) and returns results ordered by similarity.
func (p *PgVectorAdapter) FindSimilar(ctx context.Context, query SearchQuery) ([]SearchResult, error) {
	query.applyDefaults()

	vectorStr := formatVector(query.Embedding)

	sqlQuery := `
		SELECT
			s.id, s.name, s.description, s.url, s.type, s.embedding, s.created_at,
			1 - (s.embedding_vector <=> $1::vector) AS similarity
		FROM content_sources s
		WHERE s.embedding_vector IS NOT NULL
		  AND 1 - (s.embedding_vector <=> $1::vector) >= $2
		ORDER BY s.embedding_vector <=> $1::vector
		LIMIT $3
	`

	rows, err := p.db.QueryContext(ctx, sqlQuery, vectorStr, query.SimilarityThreshold, query.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var result SearchResult
		var embeddingJSON []byte
		var sourceType string
		if err := rows.Scan(
			&result.Source.ID, &result.Source.Name, &result.Source.Description,
			&result.Source.URL, &sourceType, &embeddingJSON, &result.Source.CreatedAt,
			&result.Similarity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		result.Source.Type = core.SourceType(sourceType)
		if len(embeddingJSON) > 0 {
			if err := json.Unmarshal(embeddingJSON, &result.Source.Embedding); err != nil {
				return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
			}
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return results, nil
}

// formatVector converts an embedding to pgvector input format: "[0.1,0.2,...]"
func formatVector(embedding []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, val := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%f", val)
	}
	sb.WriteByte(']')
	return sb.String()
}
