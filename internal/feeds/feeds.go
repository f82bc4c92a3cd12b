// Package feeds provides RSS/Atom feed fetching and parsing, used to verify
// feed-backed content sources and to autofill their metadata.
package feeds

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	fetchTimeout = 30 * time.Second
	userAgent    = "Clarity Source Verifier/1.0"

	// maxFeedBytes caps how much of a feed body we read
	maxFeedBytes = 4 << 20
)

// rssDocument mirrors the subset of RSS 2.0 we care about
type rssDocument struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title       string `xml:"title"`
		Description string `xml:"description"`
		Items       []struct {
			Title string `xml:"title"`
		} `xml:"item"`
	} `xml:"channel"`
}

// atomDocument mirrors the subset of Atom we care about
type atomDocument struct {
	XMLName  xml.Name `xml:"feed"`
	Title    string   `xml:"title"`
	Subtitle string   `xml:"subtitle"`
	Entries  []struct {
		Title string `xml:"title"`
	} `xml:"entry"`
}

// FeedInfo describes a successfully fetched and parsed feed
type FeedInfo struct {
	Title       string `json:"title"`       // Feed title
	Description string `json:"description"` // Feed description or subtitle
	ItemCount   int    `json:"item_count"`  // Entries present at fetch time
}

// FeedManager fetches and parses RSS/Atom feeds
type FeedManager struct {
	client *http.Client
}

// NewFeedManager creates a feed manager with a default HTTP client
func NewFeedManager() *FeedManager {
	return &FeedManager{
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// FetchFeed fetches a feed URL and parses it as RSS or Atom.
// An error means the URL does not serve a parseable feed.
func (fm *FeedManager) FetchFeed(ctx context.Context, feedURL string) (*FeedInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := fm.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}

	return ParseFeed(body)
}

// ParseFeed parses raw feed bytes, trying RSS first and then Atom
func ParseFeed(body []byte) (*FeedInfo, error) {
	var rss rssDocument
	if err := xml.Unmarshal(body, &rss); err == nil && rss.Channel.Title != "" {
		return &FeedInfo{
			Title:       strings.TrimSpace(rss.Channel.Title),
			Description: strings.TrimSpace(rss.Channel.Description),
			ItemCount:   len(rss.Channel.Items),
		}, nil
	}

	var atom atomDocument
	if err := xml.Unmarshal(body, &atom); err == nil && atom.Title != "" {
		return &FeedInfo{
			Title:       strings.TrimSpace(atom.Title),
			Description: strings.TrimSpace(atom.Subtitle),
			ItemCount:   len(atom.Entries),
		}, nil
	}

	return nil, fmt.Errorf("unable to parse as RSS or Atom feed")
}
