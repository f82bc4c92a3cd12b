package matcher

import (
	"clarity/internal/core"
	"clarity/internal/vectorstore"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"testing"
	"time"
)

// fakeIndex serves canned similarity scores, honoring threshold and limit the
// way a real vector store would.
type fakeIndex struct {
	scores map[string]float64 // source ID -> similarity
	err    error
	calls  []float64 // thresholds queried, in order
}

func (f *fakeIndex) FindSimilar(_ context.Context, query vectorstore.SearchQuery) ([]vectorstore.SearchResult, error) {
	f.calls = append(f.calls, query.SimilarityThreshold)
	if f.err != nil {
		return nil, f.err
	}

	var results []vectorstore.SearchResult
	for id, score := range f.scores {
		if score >= query.SimilarityThreshold {
			results = append(results, vectorstore.SearchResult{
				Source:     core.ContentSource{ID: id, Type: core.SourceTypeRSS},
				Similarity: score,
			})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

type fakeAssociations struct {
	created []core.TopicSourceAssociation
	err     error
}

func (f *fakeAssociations) CreateBatch(_ context.Context, associations []core.TopicSourceAssociation) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, associations...)
	return nil
}

func (f *fakeAssociations) ListByTopic(_ context.Context, _ string) ([]core.SourceMatch, error) {
	return nil, nil
}

func (f *fakeAssociations) CountByTopic(_ context.Context, _ string) (int, error) {
	return len(f.created), nil
}

func embeddedTopic() *core.Topic {
	return &core.Topic{
		ID:        "topic-1",
		UserID:    "user-1",
		Text:      "rust compilers",
		Embedding: []float64{0.1, 0.2, 0.3},
		CreatedAt: time.Now(),
	}
}

func TestMatchStopsAtFirstRung(t *testing.T) {
	index := &fakeIndex{scores: map[string]float64{"src-a": 0.75}}
	assocs := &fakeAssociations{}
	m := New(index, assocs)

	summary, err := m.Match(context.Background(), embeddedTopic(), DefaultOptions())
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	if summary.NoMatches {
		t.Error("Expected a match, got NoMatches")
	}
	if summary.Count != 1 {
		t.Errorf("Expected 1 match, got %d", summary.Count)
	}
	if summary.ThresholdUsed != 0.7 {
		t.Errorf("Expected threshold 0.7, got %v", summary.ThresholdUsed)
	}
	if len(index.calls) != 1 {
		t.Errorf("Expected a single index query, got %d", len(index.calls))
	}
	if len(assocs.created) != 1 || assocs.created[0].SourceID != "src-a" {
		t.Errorf("Expected one persisted association for src-a, got %+v", assocs.created)
	}
}

func TestMatchRelaxesToLowerRung(t *testing.T) {
	tests := []struct {
		name          string
		similarity    float64
		wantThreshold float64
		wantQueries   int
	}{
		{"just below initial", 0.65, 0.6, 2},
		{"mid ladder", 0.55, 0.5, 3},
		{"bottom rung", 0.25, 0.2, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := &fakeIndex{scores: map[string]float64{"src-a": tt.similarity}}
			m := New(index, &fakeAssociations{})

			summary, err := m.Match(context.Background(), embeddedTopic(), DefaultOptions())
			if err != nil {
				t.Fatalf("Match failed: %v", err)
			}

			if summary.Count != 1 {
				t.Errorf("Expected 1 match, got %d", summary.Count)
			}
			if summary.ThresholdUsed != tt.wantThreshold {
				t.Errorf("Expected threshold %v, got %v", tt.wantThreshold, summary.ThresholdUsed)
			}
			if len(index.calls) != tt.wantQueries {
				t.Errorf("Expected %d index queries, got %d", tt.wantQueries, len(index.calls))
			}
		})
	}
}

func TestMatchExhaustsLadder(t *testing.T) {
	index := &fakeIndex{scores: map[string]float64{"src-a": 0.1}}
	assocs := &fakeAssociations{}
	m := New(index, assocs)

	summary, err := m.Match(context.Background(), embeddedTopic(), DefaultOptions())
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	if !summary.NoMatches {
		t.Error("Expected NoMatches after exhausting every rung")
	}
	if summary.Count != 0 || summary.ThresholdUsed != 0 {
		t.Errorf("Expected empty summary, got %+v", summary)
	}
	if len(index.calls) != 5 {
		t.Errorf("Expected all 5 rungs queried, got %d", len(index.calls))
	}
	if len(assocs.created) != 0 {
		t.Errorf("Expected no persisted associations, got %d", len(assocs.created))
	}
}

func TestMatchCapsResults(t *testing.T) {
	scores := make(map[string]float64)
	for i := 0; i < 8; i++ {
		scores[fmt.Sprintf("src-%d", i)] = 0.7 + float64(i)*0.01
	}
	index := &fakeIndex{scores: scores}
	m := New(index, &fakeAssociations{})

	summary, err := m.Match(context.Background(), embeddedTopic(), DefaultOptions())
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	if summary.Count != DefaultMaxResults {
		t.Errorf("Expected %d matches, got %d", DefaultMaxResults, summary.Count)
	}
	for i := 1; i < len(summary.Matches); i++ {
		if summary.Matches[i].Similarity > summary.Matches[i-1].Similarity {
			t.Error("Expected matches ordered by similarity descending")
		}
	}
}

func TestMatchCustomInitialThreshold(t *testing.T) {
	index := &fakeIndex{scores: map[string]float64{"src-a": 0.82}}
	m := New(index, &fakeAssociations{})

	summary, err := m.Match(context.Background(), embeddedTopic(), Options{InitialThreshold: 0.8, MaxResults: 5})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	if summary.ThresholdUsed != 0.8 {
		t.Errorf("Expected threshold 0.8, got %v", summary.ThresholdUsed)
	}
}

func TestMatchRequiresEmbedding(t *testing.T) {
	m := New(&fakeIndex{}, &fakeAssociations{})

	topic := embeddedTopic()
	topic.Embedding = nil
	if _, err := m.Match(context.Background(), topic, DefaultOptions()); err == nil {
		t.Error("Expected error for topic without embedding")
	}
}

func TestMatchSurfacesIndexError(t *testing.T) {
	index := &fakeIndex{err: errors.New("connection refused")}
	m := New(index, &fakeAssociations{})

	if _, err := m.Match(context.Background(), embeddedTopic(), DefaultOptions()); err == nil {
		t.Error("Expected error when the index fails")
	}
}

func TestMatchSurfacesPersistError(t *testing.T) {
	index := &fakeIndex{scores: map[string]float64{"src-a": 0.9}}
	assocs := &fakeAssociations{err: errors.New("write failed")}
	m := New(index, assocs)

	if _, err := m.Match(context.Background(), embeddedTopic(), DefaultOptions()); err == nil {
		t.Error("Expected error when persisting associations fails")
	}
}

func TestProbeDoesNotPersist(t *testing.T) {
	index := &fakeIndex{scores: map[string]float64{"src-a": 0.9}}
	assocs := &fakeAssociations{}
	m := New(index, assocs)

	summary, err := m.Probe(context.Background(), []float64{0.1, 0.2}, DefaultOptions())
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if summary.Count != 1 {
		t.Errorf("Expected 1 match, got %d", summary.Count)
	}
	if len(assocs.created) != 0 {
		t.Errorf("Expected probe to persist nothing, got %d associations", len(assocs.created))
	}
}

func TestLadder(t *testing.T) {
	ladder := Ladder(0.7)
	want := []float64{0.7, 0.6, 0.5, 0.3, 0.2}
	if len(ladder) != len(want) {
		t.Fatalf("Expected %d rungs, got %d", len(want), len(ladder))
	}
	for i := range want {
		if math.Abs(ladder[i]-want[i]) > 1e-9 {
			t.Errorf("Rung %d: expected %v, got %v", i, want[i], ladder[i])
		}
	}

	// Zero or negative initial falls back to the default first rung
	if got := Ladder(0)[0]; got != DefaultInitialThreshold {
		t.Errorf("Expected default initial threshold, got %v", got)
	}
}
