// Package sources manages the global content source corpus: registering
// sources, verifying them, embedding them for matching, and bulk seeding.
package sources

import (
	"clarity/internal/core"
	"clarity/internal/feeds"
	"clarity/internal/fetch"
	"clarity/internal/llm"
	"clarity/internal/logger"
	"clarity/internal/persistence"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Manager orchestrates content source operations
type Manager struct {
	db       persistence.Database
	embedder llm.Embedder
	feeds    *feeds.FeedManager
	pages    *fetch.PageFetcher
	log      *slog.Logger
}

// NewManager creates a source manager
func NewManager(db persistence.Database, embedder llm.Embedder) *Manager {
	return &Manager{
		db:       db,
		embedder: embedder,
		feeds:    feeds.NewFeedManager(),
		pages:    fetch.NewPageFetcher(),
		log:      logger.Get(),
	}
}

// AddSourceInput describes a source to register
type AddSourceInput struct {
	Name        string
	URL         string
	Description string
	Type        core.SourceType

	// Verify fetches the URL before registering: feed types must parse as
	// RSS/Atom, web pages must respond. Missing name/description are filled
	// from what the fetch returns.
	Verify bool
}

// EmbeddingText builds the text a source is embedded under.
// Name, description and URL are folded into one whitespace-normalized line
// so sources with the same semantics embed consistently.
func EmbeddingText(name, description, sourceURL string) string {
	text := fmt.Sprintf("%s. %s (%s)", name, description, sourceURL)
	return strings.Join(strings.Fields(text), " ")
}

// AddSource validates and registers a content source. The embedding is
// best-effort: on provider failure the source is stored without a vector.
// Returns core.ErrAlreadyExists when the URL is already registered.
func (m *Manager) AddSource(ctx context.Context, input AddSourceInput) (*core.ContentSource, error) {
	if !core.ValidSourceType(input.Type) {
		return nil, fmt.Errorf("invalid source type %q", input.Type)
	}
	if err := validateURL(input.URL); err != nil {
		return nil, err
	}

	if _, err := m.db.Sources().GetByURL(ctx, input.URL); err == nil {
		return nil, fmt.Errorf("source %s: %w", input.URL, core.ErrAlreadyExists)
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for existing source: %w", err)
	}

	if input.Verify {
		if err := m.verifyAndFill(ctx, &input); err != nil {
			return nil, err
		}
	}
	if input.Name == "" {
		return nil, fmt.Errorf("source name cannot be empty")
	}

	source := &core.ContentSource{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(input.Name),
		URL:         input.URL,
		Description: strings.TrimSpace(input.Description),
		Type:        input.Type,
		CreatedAt:   time.Now().UTC(),
	}

	embedding, err := m.embedder.GenerateEmbedding(ctx, EmbeddingText(source.Name, source.Description, source.URL))
	if err != nil {
		m.log.Warn("Embedding generation failed, storing source without vector",
			"url", source.URL, "error", err)
	} else {
		source.Embedding = embedding
	}

	if err := m.db.Sources().Create(ctx, source); err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}

	m.log.Info("Registered content source",
		"source_id", source.ID, "type", source.Type, "embedded", source.Embedding != nil)
	return source, nil
}

// Verify checks that a registered source still serves what its type promises
func (m *Manager) Verify(ctx context.Context, source *core.ContentSource) error {
	switch source.Type {
	case core.SourceTypeRSS, core.SourceTypePodcast, core.SourceTypeYouTube:
		if _, err := m.feeds.FetchFeed(ctx, source.URL); err != nil {
			return fmt.Errorf("feed verification failed for %s: %w", source.URL, err)
		}
	case core.SourceTypeWeb:
		if _, err := m.pages.FetchMetadata(ctx, source.URL); err != nil {
			return fmt.Errorf("page verification failed for %s: %w", source.URL, err)
		}
	}
	return nil
}

// ListSources returns every registered source
func (m *Manager) ListSources(ctx context.Context) ([]core.ContentSource, error) {
	sources, err := m.db.Sources().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

// SeedReport summarizes a bulk seeding run
type SeedReport struct {
	Total   int `json:"total"`   // CSV records processed
	Added   int `json:"added"`   // New sources registered
	Skipped int `json:"skipped"` // Already-registered URLs
	Failed  int `json:"failed"`  // Records that could not be stored
}

// SeedFromCSV bulk-registers sources from a CSV of (name, url, description)
// rows, all typed rss. A header row is detected and skipped. Duplicate URLs
// are skipped, and embedding failures degrade to unembedded rows, so a seed
// run can be re-executed safely.
func (m *Manager) SeedFromCSV(ctx context.Context, path string) (*SeedReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	report := &SeedReport{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read seed file: %w", err)
		}
		if len(record) < 2 {
			continue
		}

		name := strings.TrimSpace(record[0])
		sourceURL := strings.TrimSpace(record[1])
		description := ""
		if len(record) > 2 {
			description = strings.TrimSpace(record[2])
		}

		// Header row: the URL column does not hold a URL
		if validateURL(sourceURL) != nil {
			continue
		}

		report.Total++
		_, err = m.AddSource(ctx, AddSourceInput{
			Name:        name,
			URL:         sourceURL,
			Description: description,
			Type:        core.SourceTypeRSS,
		})
		switch {
		case err == nil:
			report.Added++
		case errors.Is(err, core.ErrAlreadyExists):
			report.Skipped++
		default:
			m.log.Warn("Failed to seed source", "url", sourceURL, "error", err)
			report.Failed++
		}
	}

	m.log.Info("Seeding complete",
		"total", report.Total, "added", report.Added,
		"skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

// verifyAndFill fetches the source URL and fills missing metadata
func (m *Manager) verifyAndFill(ctx context.Context, input *AddSourceInput) error {
	switch input.Type {
	case core.SourceTypeRSS, core.SourceTypePodcast, core.SourceTypeYouTube:
		info, err := m.feeds.FetchFeed(ctx, input.URL)
		if err != nil {
			return fmt.Errorf("URL does not serve a valid feed: %w", err)
		}
		if input.Name == "" {
			input.Name = info.Title
		}
		if input.Description == "" {
			input.Description = info.Description
		}
	case core.SourceTypeWeb:
		meta, err := m.pages.FetchMetadata(ctx, input.URL)
		if err != nil {
			return fmt.Errorf("URL is not reachable: %w", err)
		}
		if input.Name == "" {
			input.Name = meta.Title
		}
		if input.Description == "" {
			input.Description = meta.Description
		}
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid URL %q: missing host", raw)
	}
	return nil
}
