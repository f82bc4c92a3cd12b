// Package matcher implements progressive-threshold matching of topics to
// content sources. Rather than forcing callers to pick one correct similarity
// cutoff, it walks a fixed descending ladder of thresholds and stops at the
// first rung that yields any match.
package matcher

import (
	"clarity/internal/core"
	"clarity/internal/logger"
	"clarity/internal/persistence"
	"clarity/internal/vectorstore"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// fallbackThresholds are the fixed rungs tried after the initial threshold.
// These are design constants, not tunables.
var fallbackThresholds = []float64{0.6, 0.5, 0.3, 0.2}

const (
	// DefaultInitialThreshold is the first rung when the caller supplies none
	DefaultInitialThreshold = 0.7

	// DefaultMaxResults caps matches per rung when the caller supplies none
	DefaultMaxResults = 5
)

// Options configures a matching run
type Options struct {
	// InitialThreshold replaces the default first rung; the fallback rungs
	// below it are fixed
	InitialThreshold float64

	// MaxResults caps how many sources a single rung may return
	MaxResults int
}

// DefaultOptions returns the standard matcher configuration
func DefaultOptions() Options {
	return Options{
		InitialThreshold: DefaultInitialThreshold,
		MaxResults:       DefaultMaxResults,
	}
}

// Matcher runs progressive-threshold similarity search and persists the
// resulting topic-source associations.
type Matcher struct {
	index        vectorstore.VectorStore
	associations persistence.AssociationRepository
	log          *slog.Logger
}

// New creates a matcher over the given vector index and association store
func New(index vectorstore.VectorStore, associations persistence.AssociationRepository) *Matcher {
	return &Matcher{
		index:        index,
		associations: associations,
		log:          logger.Get(),
	}
}

// Ladder returns the descending threshold sequence for an initial threshold
func Ladder(initial float64) []float64 {
	if initial <= 0 {
		initial = DefaultInitialThreshold
	}
	ladder := make([]float64, 0, len(fallbackThresholds)+1)
	ladder = append(ladder, initial)
	ladder = append(ladder, fallbackThresholds...)
	return ladder
}

// Match finds sources for an embedded topic and persists the associations.
// The first rung returning one or more sources wins; exhausting every rung
// is reported via MatchSummary.NoMatches, not as an error. Store failures
// at any point are returned to the caller.
func (m *Matcher) Match(ctx context.Context, topic *core.Topic, opts Options) (*core.MatchSummary, error) {
	if !topic.HasEmbedding() {
		return nil, fmt.Errorf("topic %s has no embedding to match against", topic.ID)
	}

	summary, err := m.Probe(ctx, topic.Embedding, opts)
	if err != nil {
		return nil, err
	}

	if summary.NoMatches {
		m.log.Info("No sources matched at any threshold", "topic_id", topic.ID)
		return summary, nil
	}

	if err := m.persistMatches(ctx, topic.ID, summary.Matches); err != nil {
		return nil, err
	}

	m.log.Info("Matched topic to sources",
		"topic_id", topic.ID, "count", summary.Count, "threshold", summary.ThresholdUsed)
	return summary, nil
}

// Probe runs the threshold ladder against an embedding without persisting
// anything. Used for ad-hoc similarity checks.
func (m *Matcher) Probe(ctx context.Context, embedding []float64, opts Options) (*core.MatchSummary, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}

	for _, threshold := range Ladder(opts.InitialThreshold) {
		results, err := m.index.FindSimilar(ctx, vectorstore.SearchQuery{
			Embedding:           embedding,
			SimilarityThreshold: threshold,
			Limit:               opts.MaxResults,
		})
		if err != nil {
			return nil, fmt.Errorf("similarity search at threshold %.2f failed: %w", threshold, err)
		}

		if len(results) == 0 {
			m.log.Debug("No matches at threshold, relaxing", "threshold", threshold)
			continue
		}

		summary := &core.MatchSummary{
			Count:         len(results),
			ThresholdUsed: threshold,
			Matches:       make([]core.SourceMatch, 0, len(results)),
		}
		for _, result := range results {
			summary.Matches = append(summary.Matches, core.SourceMatch{
				Source:     result.Source,
				Similarity: result.Similarity,
			})
		}
		return summary, nil
	}

	return &core.MatchSummary{NoMatches: true}, nil
}

// persistMatches stores the matched pairs as one batch
func (m *Matcher) persistMatches(ctx context.Context, topicID string, matches []core.SourceMatch) error {
	now := time.Now().UTC()
	associations := make([]core.TopicSourceAssociation, 0, len(matches))
	for _, match := range matches {
		associations = append(associations, core.TopicSourceAssociation{
			TopicID:    topicID,
			SourceID:   match.Source.ID,
			Similarity: match.Similarity,
			CreatedAt:  now,
		})
	}

	if err := m.associations.CreateBatch(ctx, associations); err != nil {
		return fmt.Errorf("failed to persist topic-source associations: %w", err)
	}
	return nil
}
