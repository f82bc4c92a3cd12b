package core

import "time"

// SourceType categorizes a content source.
type SourceType string

const (
	SourceTypeRSS     SourceType = "rss"     // RSS/Atom feed
	SourceTypeYouTube SourceType = "youtube" // YouTube channel
	SourceTypePodcast SourceType = "podcast" // Podcast feed
	SourceTypeWeb     SourceType = "web"     // Plain website
)

// ValidSourceType reports whether t is one of the known source types.
func ValidSourceType(t SourceType) bool {
	switch t {
	case SourceTypeRSS, SourceTypeYouTube, SourceTypePodcast, SourceTypeWeb:
		return true
	}
	return false
}

// User represents a person interacting with the bot, keyed by their Telegram identity.
type User struct {
	ID         string    `json:"id"`          // Unique identifier (UUID)
	TelegramID int64     `json:"telegram_id"` // Stable external identity, unique
	Username   string    `json:"username"`    // Telegram username (may be empty)
	FirstName  string    `json:"first_name"`  // Display name (may be empty)
	CreatedAt  time.Time `json:"created_at"`  // Timestamp of first interaction
}

// Topic represents a subject a user wants to track.
// Text is stored normalized (lower-cased, trimmed) and is unique per user.
type Topic struct {
	ID        string    `json:"id"`         // Unique identifier (UUID)
	UserID    string    `json:"user_id"`    // Owning user
	Text      string    `json:"text"`       // Normalized topic text
	Embedding []float64 `json:"embedding"`  // Vector embedding (nil until computed)
	CreatedAt time.Time `json:"created_at"` // When the topic was added
}

// HasEmbedding reports whether the topic carries a vector.
func (t *Topic) HasEmbedding() bool {
	return len(t.Embedding) > 0
}

// ContentSource represents an indexed source of content (feed, channel, site).
// Sources are global, not owned by any user.
type ContentSource struct {
	ID          string     `json:"id"`          // Unique identifier (UUID)
	Name        string     `json:"name"`        // Display name
	URL         string     `json:"url"`         // Source URL, unique
	Description string     `json:"description"` // Free-text description (may be empty)
	Type        SourceType `json:"type"`        // Source category
	Embedding   []float64  `json:"embedding"`   // Vector embedding (nil until computed)
	CreatedAt   time.Time  `json:"created_at"`  // When the source was registered
}

// TopicSourceAssociation links a topic to a semantically matching content source.
// The (TopicID, SourceID) pair is unique and rows cascade with either parent.
type TopicSourceAssociation struct {
	TopicID    string    `json:"topic_id"`   // Associated topic
	SourceID   string    `json:"source_id"`  // Associated source
	Similarity float64   `json:"similarity"` // Cosine similarity at match time
	CreatedAt  time.Time `json:"created_at"` // When the association was created
}

// SourceMatch pairs a matched source with its similarity score.
type SourceMatch struct {
	Source     ContentSource `json:"source"`
	Similarity float64       `json:"similarity"`
}

// MatchSummary reports the outcome of a progressive-threshold matching run.
// NoMatches set with Count == 0 means every rung of the ladder was exhausted;
// that is a valid terminal state, not an error.
type MatchSummary struct {
	Count         int           `json:"count"`          // Number of sources matched
	ThresholdUsed float64       `json:"threshold_used"` // Rung that produced the matches (0 if none)
	NoMatches     bool          `json:"no_matches"`     // True when all rungs yielded nothing
	Matches       []SourceMatch `json:"matches"`        // Matched sources, best first
}

// TopicWithStats annotates a topic with its association count for listings.
type TopicWithStats struct {
	Topic       Topic `json:"topic"`
	SourceCount int   `json:"source_count"`
}

// AddTopicResult is returned by the topic lifecycle when a topic is added.
// Match is nil when no matching ran (existing topic, or embedding unavailable).
type AddTopicResult struct {
	Topic Topic         `json:"topic"`
	IsNew bool          `json:"is_new"`
	Match *MatchSummary `json:"match,omitempty"`
}

// BackfillReport aggregates the outcome of an embedding backfill run.
// Every selected topic is accounted for: Total == Succeeded + Failed.
type BackfillReport struct {
	Total          int      `json:"total"`
	Succeeded      int      `json:"succeeded"`
	Failed         int      `json:"failed"`
	FailedTopicIDs []string `json:"failed_topic_ids"` // For later retry
}
