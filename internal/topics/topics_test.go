package topics

import (
	"clarity/internal/core"
	"clarity/internal/matcher"
	"clarity/internal/persistence"
	"clarity/internal/vectorstore"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeEmbedder returns canned vectors per text and can fail selectively
type fakeEmbedder struct {
	vectors map[string][]float64
	failOn  map[string]bool
	failAll bool
}

func (f *fakeEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float64, error) {
	if f.failAll || f.failOn[text] {
		return nil, errors.New("embedding provider unavailable")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float64{0, 0, 1}, nil
}

func (f *fakeEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		v, err := f.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func newTestManager(t *testing.T, embedder *fakeEmbedder) (*Manager, persistence.Database) {
	t.Helper()

	db, err := persistence.NewSQLiteDB(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	index := vectorstore.NewScanAdapter(db.Sources())
	m := matcher.New(index, db.Associations())
	return NewManager(db, embedder, m, Options{Match: matcher.DefaultOptions()}), db
}

func seedSource(t *testing.T, db persistence.Database, name string, embedding []float64) *core.ContentSource {
	t.Helper()

	source := &core.ContentSource{
		ID:        uuid.New().String(),
		Name:      name,
		URL:       fmt.Sprintf("https://example.com/%s", name),
		Type:      core.SourceTypeRSS,
		Embedding: embedding,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Sources().Create(context.Background(), source); err != nil {
		t.Fatalf("Failed to seed source: %v", err)
	}
	return source
}

func testIdentity() Identity {
	return Identity{TelegramID: 42, Username: "reader", FirstName: "Reader"}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Rust", "rust"},
		{"  rust  ", "rust"},
		{"Machine Learning", "machine learning"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAddTopicCreatesAndMatches(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"golang": {1, 0, 0},
	}}
	mgr, db := newTestManager(t, embedder)
	seedSource(t, db, "go-blog", []float64{1, 0, 0})

	result, err := mgr.AddTopic(context.Background(), testIdentity(), "Golang")
	if err != nil {
		t.Fatalf("AddTopic failed: %v", err)
	}

	if !result.IsNew {
		t.Error("Expected IsNew for a first add")
	}
	if result.Topic.Text != "golang" {
		t.Errorf("Expected normalized text, got %q", result.Topic.Text)
	}
	if !result.Topic.HasEmbedding() {
		t.Error("Expected topic to carry an embedding")
	}
	if result.Match == nil {
		t.Fatal("Expected a match summary")
	}
	if result.Match.Count != 1 || result.Match.ThresholdUsed != 0.7 {
		t.Errorf("Expected 1 match at 0.7, got %+v", result.Match)
	}

	// Associations were persisted
	count, err := db.Associations().CountByTopic(context.Background(), result.Topic.ID)
	if err != nil {
		t.Fatalf("CountByTopic failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 persisted association, got %d", count)
	}
}

func TestAddTopicIdempotent(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeEmbedder{})

	first, err := mgr.AddTopic(context.Background(), testIdentity(), "rust")
	if err != nil {
		t.Fatalf("AddTopic failed: %v", err)
	}

	// Differently-cased and padded text resolves to the same topic
	second, err := mgr.AddTopic(context.Background(), testIdentity(), "  Rust ")
	if err != nil {
		t.Fatalf("Second AddTopic failed: %v", err)
	}

	if second.IsNew {
		t.Error("Expected IsNew=false on re-add")
	}
	if second.Topic.ID != first.Topic.ID {
		t.Errorf("Expected same topic ID, got %s and %s", first.Topic.ID, second.Topic.ID)
	}
	if second.Match != nil {
		t.Error("Expected no matching run on re-add")
	}
}

func TestAddTopicSameTextDifferentUsers(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeEmbedder{})

	first, err := mgr.AddTopic(context.Background(), Identity{TelegramID: 1}, "rust")
	if err != nil {
		t.Fatalf("AddTopic failed: %v", err)
	}
	second, err := mgr.AddTopic(context.Background(), Identity{TelegramID: 2}, "rust")
	if err != nil {
		t.Fatalf("AddTopic for second user failed: %v", err)
	}

	if !first.IsNew || !second.IsNew {
		t.Error("Expected both users to create independent topics")
	}
	if first.Topic.ID == second.Topic.ID {
		t.Error("Expected distinct topics per user")
	}
}

func TestAddTopicEmbedderFailureDegrades(t *testing.T) {
	mgr, db := newTestManager(t, &fakeEmbedder{failAll: true})
	seedSource(t, db, "go-blog", []float64{1, 0, 0})

	result, err := mgr.AddTopic(context.Background(), testIdentity(), "golang")
	if err != nil {
		t.Fatalf("AddTopic should not fail when embedding fails: %v", err)
	}

	if !result.IsNew {
		t.Error("Expected topic to be created")
	}
	if result.Topic.HasEmbedding() {
		t.Error("Expected no embedding on provider failure")
	}
	if result.Match != nil {
		t.Error("Expected no matching without an embedding")
	}

	// The row is durable and visible for later backfill
	pending, err := db.Topics().ListMissingEmbeddings(context.Background(), "")
	if err != nil {
		t.Fatalf("ListMissingEmbeddings failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Expected 1 topic awaiting backfill, got %d", len(pending))
	}
}

// failingAssociationDB wraps a real store but fails every association write
type failingAssociationDB struct {
	persistence.Database
}

func (f *failingAssociationDB) Associations() persistence.AssociationRepository {
	return failingAssociationRepo{}
}

type failingAssociationRepo struct{}

func (failingAssociationRepo) CreateBatch(_ context.Context, _ []core.TopicSourceAssociation) error {
	return errors.New("association write failed")
}

func (failingAssociationRepo) ListByTopic(_ context.Context, _ string) ([]core.SourceMatch, error) {
	return nil, nil
}

func (failingAssociationRepo) CountByTopic(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func TestAddTopicSurfacesAssociationStoreFailure(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{"golang": {1, 0, 0}}}

	inner, err := persistence.NewSQLiteDB(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = inner.Close() })

	db := &failingAssociationDB{Database: inner}
	index := vectorstore.NewScanAdapter(db.Sources())
	m := matcher.New(index, db.Associations())
	mgr := NewManager(db, embedder, m, Options{Match: matcher.DefaultOptions()})

	seedSource(t, inner, "go-blog", []float64{1, 0, 0})

	result, err := mgr.AddTopic(context.Background(), testIdentity(), "golang")
	if err == nil {
		t.Fatal("Expected the association store failure to be surfaced")
	}

	// The topic is committed despite the failure
	if result == nil || !result.IsNew {
		t.Fatalf("Expected the committed topic alongside the error, got %+v", result)
	}
	stored, lookupErr := inner.Topics().GetByUserAndText(context.Background(), result.Topic.UserID, "golang")
	if lookupErr != nil {
		t.Fatalf("Expected topic to be stored: %v", lookupErr)
	}
	if !stored.HasEmbedding() {
		t.Error("Expected the stored topic to keep its embedding")
	}

	// Embedded topics are not backfill candidates, so the error is the
	// caller's only signal
	pending, listErr := inner.Topics().ListMissingEmbeddings(context.Background(), "")
	if listErr != nil {
		t.Fatalf("ListMissingEmbeddings failed: %v", listErr)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no backfill candidates, got %d", len(pending))
	}
}

func TestAddTopicEmptyText(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeEmbedder{})

	if _, err := mgr.AddTopic(context.Background(), testIdentity(), "   "); err == nil {
		t.Error("Expected error for blank topic text")
	}
}

func TestRemoveTopic(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{"golang": {1, 0, 0}}}
	mgr, db := newTestManager(t, embedder)
	seedSource(t, db, "go-blog", []float64{1, 0, 0})

	result, err := mgr.AddTopic(context.Background(), testIdentity(), "golang")
	if err != nil {
		t.Fatalf("AddTopic failed: %v", err)
	}

	if err := mgr.RemoveTopic(context.Background(), testIdentity(), " GOLANG "); err != nil {
		t.Fatalf("RemoveTopic failed: %v", err)
	}

	// Associations cascade with the topic
	count, err := db.Associations().CountByTopic(context.Background(), result.Topic.ID)
	if err != nil {
		t.Fatalf("CountByTopic failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected associations to cascade, got %d remaining", count)
	}

	// Removing again reports not found
	err = mgr.RemoveTopic(context.Background(), testIdentity(), "golang")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestListTopics(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{"golang": {1, 0, 0}}}
	mgr, db := newTestManager(t, embedder)
	seedSource(t, db, "go-blog", []float64{1, 0, 0})

	for _, text := range []string{"golang", "rust", "zig"} {
		if _, err := mgr.AddTopic(context.Background(), testIdentity(), text); err != nil {
			t.Fatalf("AddTopic(%s) failed: %v", text, err)
		}
	}

	topics, err := mgr.ListTopics(context.Background(), testIdentity())
	if err != nil {
		t.Fatalf("ListTopics failed: %v", err)
	}

	if len(topics) != 3 {
		t.Fatalf("Expected 3 topics, got %d", len(topics))
	}
	for _, tw := range topics {
		want := 0
		if tw.Topic.Text == "golang" {
			want = 1
		}
		if tw.SourceCount != want {
			t.Errorf("Topic %q: expected %d sources, got %d", tw.Topic.Text, want, tw.SourceCount)
		}
	}
}

func TestBackfillEmbeddings(t *testing.T) {
	// Everything fails at add time, so three topics land without vectors
	embedder := &fakeEmbedder{failAll: true}
	mgr, db := newTestManager(t, embedder)

	for _, text := range []string{"golang", "rust", "zig"} {
		if _, err := mgr.AddTopic(context.Background(), testIdentity(), text); err != nil {
			t.Fatalf("AddTopic(%s) failed: %v", text, err)
		}
	}

	// Provider recovers, except for one stubborn topic
	embedder.failAll = false
	embedder.failOn = map[string]bool{"zig": true}

	report, err := mgr.BackfillEmbeddings(context.Background(), "")
	if err != nil {
		t.Fatalf("BackfillEmbeddings failed: %v", err)
	}

	if report.Total != 3 || report.Succeeded != 2 || report.Failed != 1 {
		t.Errorf("Expected report 3/2/1, got %d/%d/%d",
			report.Total, report.Succeeded, report.Failed)
	}
	if len(report.FailedTopicIDs) != 1 {
		t.Fatalf("Expected 1 failed topic ID, got %d", len(report.FailedTopicIDs))
	}

	failed, err := db.Topics().Get(context.Background(), report.FailedTopicIDs[0])
	if err != nil {
		t.Fatalf("Get failed topic: %v", err)
	}
	if failed.Text != "zig" {
		t.Errorf("Expected zig to be the failed topic, got %q", failed.Text)
	}

	// The survivors now carry vectors
	pending, err := db.Topics().ListMissingEmbeddings(context.Background(), "")
	if err != nil {
		t.Fatalf("ListMissingEmbeddings failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Expected 1 topic still pending, got %d", len(pending))
	}
}

func TestBackfillNothingPending(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeEmbedder{})

	report, err := mgr.BackfillEmbeddings(context.Background(), "")
	if err != nil {
		t.Fatalf("BackfillEmbeddings failed: %v", err)
	}
	if report.Total != 0 || report.Succeeded != 0 || report.Failed != 0 {
		t.Errorf("Expected empty report, got %+v", report)
	}
}

func TestGetTopicSources(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{"golang": {1, 0, 0}}}
	mgr, db := newTestManager(t, embedder)
	best := seedSource(t, db, "go-blog", []float64{1, 0, 0})
	seedSource(t, db, "go-weekly", []float64{0.9, 0.1, 0})

	result, err := mgr.AddTopic(context.Background(), testIdentity(), "golang")
	if err != nil {
		t.Fatalf("AddTopic failed: %v", err)
	}

	matches, err := mgr.GetTopicSources(context.Background(), result.Topic.ID)
	if err != nil {
		t.Fatalf("GetTopicSources failed: %v", err)
	}

	if len(matches) != 2 {
		t.Fatalf("Expected 2 associated sources, got %d", len(matches))
	}
	if matches[0].Source.ID != best.ID {
		t.Error("Expected the closest source first")
	}

	// The by-text lookup resolves the same associations
	byText, err := mgr.GetTopicSourcesByText(context.Background(), testIdentity(), " GOLANG ")
	if err != nil {
		t.Fatalf("GetTopicSourcesByText failed: %v", err)
	}
	if len(byText) != 2 || byText[0].Source.ID != best.ID {
		t.Errorf("Expected identical matches by text, got %+v", byText)
	}

	// Untracked topics report not found
	_, err = mgr.GetTopicSourcesByText(context.Background(), testIdentity(), "zig")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
