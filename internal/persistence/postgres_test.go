package persistence

import (
	"clarity/internal/core"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Integration tests run only against a real database, e.g.
//
//	CLARITY_TEST_DATABASE_URL=postgres://localhost/clarity_test?sslmode=disable go test ./internal/persistence/
//
// The database needs the pgvector extension available.
func newPostgresTestDB(t *testing.T) *PostgresDB {
	t.Helper()

	dsn := os.Getenv("CLARITY_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CLARITY_TEST_DATABASE_URL not set, skipping postgres integration test")
	}

	db, err := NewPostgresDB(dsn)
	if err != nil {
		t.Fatalf("Failed to connect to postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := NewMigrationManager(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	// Isolation between tests sharing the database
	if _, err := db.DB().Exec(`TRUNCATE users, topics, content_sources, topic_sources CASCADE`); err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}
	return db
}

// testVector returns a 768-dim embedding matching the schema's vector columns
func testVector(lead float64) []float64 {
	v := make([]float64, 768)
	v[0] = lead
	return v
}

func TestPostgresUserUpsertIdempotent(t *testing.T) {
	db := newPostgresTestDB(t)

	first := &core.User{
		ID:         uuid.New().String(),
		TelegramID: 42,
		Username:   "reader",
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.Users().Upsert(context.Background(), first); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	second := &core.User{
		ID:         uuid.New().String(),
		TelegramID: 42,
		Username:   "renamed",
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.Users().Upsert(context.Background(), second); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("Expected upsert to keep original ID %s, got %s", first.ID, second.ID)
	}
}

func TestPostgresTopicUniqueAndCascade(t *testing.T) {
	db := newPostgresTestDB(t)
	ctx := context.Background()

	user := &core.User{ID: uuid.New().String(), TelegramID: 42, CreatedAt: time.Now().UTC()}
	if err := db.Users().Upsert(ctx, user); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	topic := &core.Topic{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Text:      "rust",
		Embedding: testVector(1),
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Topics().Create(ctx, topic); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dup := &core.Topic{ID: uuid.New().String(), UserID: user.ID, Text: "rust", CreatedAt: time.Now().UTC()}
	if err := db.Topics().Create(ctx, dup); !errors.Is(err, core.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}

	source := &core.ContentSource{
		ID:        uuid.New().String(),
		Name:      "Rust Blog",
		URL:       "https://blog.rust-lang.org",
		Type:      core.SourceTypeRSS,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Sources().Create(ctx, source); err != nil {
		t.Fatalf("Create source failed: %v", err)
	}

	batch := []core.TopicSourceAssociation{{
		TopicID: topic.ID, SourceID: source.ID, Similarity: 0.9, CreatedAt: time.Now().UTC(),
	}}
	if err := db.Associations().CreateBatch(ctx, batch); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	if err := db.Topics().Delete(ctx, topic.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	count, err := db.Associations().CountByTopic(ctx, topic.ID)
	if err != nil {
		t.Fatalf("CountByTopic failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected associations to cascade, got %d", count)
	}
}
