// Package persistence provides database abstraction interfaces for storing
// users, topics, content sources, and topic-source associations
package persistence

import (
	"clarity/internal/core"
	"context"
)

// UserRepository handles user persistence operations
type UserRepository interface {
	// Upsert creates a user keyed by Telegram ID, or refreshes the display
	// fields of an existing one. The stored row (ID, CreatedAt) is written
	// back into user. Calling twice with the same Telegram ID never
	// duplicates the record.
	Upsert(ctx context.Context, user *core.User) error

	// GetByTelegramID retrieves a user by their Telegram identity.
	// Returns core.ErrNotFound if absent.
	GetByTelegramID(ctx context.Context, telegramID int64) (*core.User, error)
}

// TopicRepository handles topic persistence operations
type TopicRepository interface {
	// Create inserts a new topic. Returns core.ErrAlreadyExists when the
	// (user, text) unique constraint is violated, so concurrent creators
	// resolve to the "already tracked" case.
	Create(ctx context.Context, topic *core.Topic) error

	// Get retrieves a topic by ID. Returns core.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*core.Topic, error)

	// GetByUserAndText retrieves a topic by owner and normalized text.
	// Returns core.ErrNotFound if absent.
	GetByUserAndText(ctx context.Context, userID, text string) (*core.Topic, error)

	// ListByUser retrieves a user's topics newest first, each annotated
	// with its association count.
	ListByUser(ctx context.Context, userID string) ([]core.TopicWithStats, error)

	// ListMissingEmbeddings retrieves topics without an embedding,
	// optionally scoped to one user (empty userID selects all users).
	ListMissingEmbeddings(ctx context.Context, userID string) ([]core.Topic, error)

	// UpdateEmbedding attaches an embedding to an existing topic.
	UpdateEmbedding(ctx context.Context, id string, embedding []float64) error

	// Delete removes a topic; its associations cascade at the store level.
	Delete(ctx context.Context, id string) error
}

// SourceRepository handles content source persistence operations
type SourceRepository interface {
	// Create inserts a new content source. Returns core.ErrAlreadyExists
	// when a source with the same URL is already registered.
	Create(ctx context.Context, source *core.ContentSource) error

	// Get retrieves a source by ID. Returns core.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*core.ContentSource, error)

	// GetByURL retrieves a source by URL. Returns core.ErrNotFound if absent.
	GetByURL(ctx context.Context, url string) (*core.ContentSource, error)

	// List retrieves all sources.
	List(ctx context.Context) ([]core.ContentSource, error)

	// ListWithEmbeddings retrieves only sources carrying an embedding,
	// for brute-force similarity scans.
	ListWithEmbeddings(ctx context.Context) ([]core.ContentSource, error)

	// UpdateEmbedding attaches an embedding to an existing source.
	UpdateEmbedding(ctx context.Context, id string, embedding []float64) error
}

// AssociationRepository handles topic-source association persistence
type AssociationRepository interface {
	// CreateBatch inserts associations as one batch. Either the whole batch
	// is applied or an error is returned. Duplicate (topic, source) pairs
	// within the store are ignored rather than duplicated.
	CreateBatch(ctx context.Context, associations []core.TopicSourceAssociation) error

	// ListByTopic retrieves the sources associated with a topic,
	// highest similarity first.
	ListByTopic(ctx context.Context, topicID string) ([]core.SourceMatch, error)

	// CountByTopic returns the number of associations a topic has.
	CountByTopic(ctx context.Context, topicID string) (int, error)
}

// Database aggregates all repositories behind a single connection
type Database interface {
	// Users returns the user repository
	Users() UserRepository

	// Topics returns the topic repository
	Topics() TopicRepository

	// Sources returns the content source repository
	Sources() SourceRepository

	// Associations returns the association repository
	Associations() AssociationRepository

	// Close closes the database connection
	Close() error

	// Ping verifies the database connection
	Ping(ctx context.Context) error
}
