// Package topics implements the topic lifecycle: adding, removing, and
// listing tracked topics, plus backfilling embeddings for topics that were
// stored while the embedding provider was unavailable.
package topics

import (
	"clarity/internal/core"
	"clarity/internal/llm"
	"clarity/internal/logger"
	"clarity/internal/matcher"
	"clarity/internal/persistence"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultBackfillWorkers = 3

// Identity carries the Telegram identity of the caller. Users are created
// lazily on first interaction, so every lifecycle operation takes one.
type Identity struct {
	TelegramID int64
	Username   string
	FirstName  string
}

// Normalize canonicalizes topic text for storage and comparison.
// "Rust" and " rust " are the same topic.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Manager orchestrates topic operations across the store, the embedding
// provider, and the matcher.
type Manager struct {
	db       persistence.Database
	embedder llm.Embedder
	matcher  *matcher.Matcher
	opts     Options
	log      *slog.Logger
}

// Options configures the manager
type Options struct {
	// Match configures the progressive-threshold matcher runs
	Match matcher.Options

	// BackfillWorkers bounds concurrent embedding calls during backfill
	BackfillWorkers int
}

// NewManager creates a topic manager
func NewManager(db persistence.Database, embedder llm.Embedder, m *matcher.Matcher, opts Options) *Manager {
	if opts.BackfillWorkers <= 0 {
		opts.BackfillWorkers = defaultBackfillWorkers
	}
	return &Manager{
		db:       db,
		embedder: embedder,
		matcher:  m,
		opts:     opts,
		log:      logger.Get(),
	}
}

// AddTopic registers a topic for the identified user and matches it against
// the source corpus. The operation is idempotent: adding an already-tracked
// topic returns the existing record with IsNew false and runs no matching.
// Embedding failures degrade rather than abort: the topic is persisted
// without a vector and picked up by a later backfill. Matching store
// failures are different: the returned error carries them, alongside a
// non-nil result for the already-committed topic.
func (m *Manager) AddTopic(ctx context.Context, identity Identity, rawText string) (*core.AddTopicResult, error) {
	text := Normalize(rawText)
	if text == "" {
		return nil, fmt.Errorf("topic text cannot be empty")
	}

	user, err := m.ensureUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	existing, err := m.db.Topics().GetByUserAndText(ctx, user.ID, text)
	if err == nil {
		return &core.AddTopicResult{Topic: *existing, IsNew: false}, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up topic: %w", err)
	}

	topic := &core.Topic{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}

	embedding, err := m.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		m.log.Warn("Embedding generation failed, storing topic without vector",
			"topic", text, "error", err)
	} else {
		topic.Embedding = embedding
	}

	if err := m.db.Topics().Create(ctx, topic); err != nil {
		if errors.Is(err, core.ErrAlreadyExists) {
			// Lost a race with a concurrent add; the stored row wins
			existing, lookupErr := m.db.Topics().GetByUserAndText(ctx, user.ID, text)
			if lookupErr != nil {
				return nil, fmt.Errorf("failed to load existing topic: %w", lookupErr)
			}
			return &core.AddTopicResult{Topic: *existing, IsNew: false}, nil
		}
		return nil, fmt.Errorf("failed to create topic: %w", err)
	}

	result := &core.AddTopicResult{Topic: *topic, IsNew: true}

	if topic.HasEmbedding() {
		summary, err := m.matcher.Match(ctx, topic, m.opts.Match)
		if err != nil {
			// The topic is durable; the matching failure still goes to the
			// caller so it is never mistaken for a pending embedding
			return result, fmt.Errorf("topic %q stored but source matching failed: %w", topic.Text, err)
		}
		result.Match = summary
	}

	return result, nil
}

// RemoveTopic deletes a tracked topic by its text. Associations cascade at
// the store level. Returns core.ErrNotFound when the user does not track it.
func (m *Manager) RemoveTopic(ctx context.Context, identity Identity, rawText string) error {
	text := Normalize(rawText)
	if text == "" {
		return fmt.Errorf("topic text cannot be empty")
	}

	user, err := m.ensureUser(ctx, identity)
	if err != nil {
		return err
	}

	topic, err := m.db.Topics().GetByUserAndText(ctx, user.ID, text)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("topic %q: %w", text, core.ErrNotFound)
		}
		return fmt.Errorf("failed to look up topic: %w", err)
	}

	if err := m.db.Topics().Delete(ctx, topic.ID); err != nil {
		return fmt.Errorf("failed to delete topic: %w", err)
	}

	m.log.Info("Removed topic", "topic_id", topic.ID, "user_id", user.ID)
	return nil
}

// ListTopics returns the user's topics newest first, with association counts
func (m *Manager) ListTopics(ctx context.Context, identity Identity) ([]core.TopicWithStats, error) {
	user, err := m.ensureUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	topics, err := m.db.Topics().ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return topics, nil
}

// GetTopicSources returns the sources associated with a topic, best first
func (m *Manager) GetTopicSources(ctx context.Context, topicID string) ([]core.SourceMatch, error) {
	matches, err := m.db.Associations().ListByTopic(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to list topic sources: %w", err)
	}
	return matches, nil
}

// GetTopicSourcesByText resolves a user's topic by text and returns its
// associated sources. Returns core.ErrNotFound when the topic is untracked.
func (m *Manager) GetTopicSourcesByText(ctx context.Context, identity Identity, rawText string) ([]core.SourceMatch, error) {
	text := Normalize(rawText)
	if text == "" {
		return nil, fmt.Errorf("topic text cannot be empty")
	}

	user, err := m.ensureUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	topic, err := m.db.Topics().GetByUserAndText(ctx, user.ID, text)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("topic %q: %w", text, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to look up topic: %w", err)
	}

	return m.GetTopicSources(ctx, topic.ID)
}

// BackfillEmbeddings embeds every topic missing a vector, optionally scoped
// to one user (empty userID selects all). Items are independent: one failure
// never blocks the rest, and the report accounts for every selected topic.
// Backfill attaches vectors only; it does not re-run matching.
func (m *Manager) BackfillEmbeddings(ctx context.Context, userID string) (*core.BackfillReport, error) {
	pending, err := m.db.Topics().ListMissingEmbeddings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics missing embeddings: %w", err)
	}

	report := &core.BackfillReport{Total: len(pending)}
	if len(pending) == 0 {
		return report, nil
	}

	m.log.Info("Starting embedding backfill",
		"pending", len(pending), "workers", m.opts.BackfillWorkers)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.BackfillWorkers)

	for _, topic := range pending {
		topic := topic
		g.Go(func() error {
			err := m.backfillOne(gctx, &topic)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				m.log.Warn("Backfill failed for topic", "topic_id", topic.ID, "error", err)
				report.Failed++
				report.FailedTopicIDs = append(report.FailedTopicIDs, topic.ID)
			} else {
				report.Succeeded++
			}
			return nil
		})
	}

	// Workers never return errors; Wait only observes context cancellation
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m.log.Info("Embedding backfill complete",
		"total", report.Total, "succeeded", report.Succeeded, "failed", report.Failed)
	return report, nil
}

func (m *Manager) backfillOne(ctx context.Context, topic *core.Topic) error {
	embedding, err := m.embedder.GenerateEmbedding(ctx, topic.Text)
	if err != nil {
		return fmt.Errorf("failed to generate embedding: %w", err)
	}
	if err := m.db.Topics().UpdateEmbedding(ctx, topic.ID, embedding); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// ensureUser upserts the caller so lifecycle operations never depend on a
// prior /start.
func (m *Manager) ensureUser(ctx context.Context, identity Identity) (*core.User, error) {
	user := &core.User{
		ID:         uuid.New().String(),
		TelegramID: identity.TelegramID,
		Username:   identity.Username,
		FirstName:  identity.FirstName,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.db.Users().Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}
