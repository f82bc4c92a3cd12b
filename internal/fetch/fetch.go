// Package fetch retrieves web page metadata, used to verify plain-web content
// sources and to autofill missing names and descriptions.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	fetchTimeout = 30 * time.Second
	userAgent    = "Clarity Source Verifier/1.0"

	// maxPageBytes caps how much of a page body we read
	maxPageBytes = 4 << 20
)

// PageMetadata holds what a page says about itself
type PageMetadata struct {
	Title       string `json:"title"`       // <title>, og:title, or first h1
	Description string `json:"description"` // meta description or og:description
}

// PageFetcher retrieves page metadata over HTTP
type PageFetcher struct {
	client *http.Client
}

// NewPageFetcher creates a page fetcher with a default HTTP client
func NewPageFetcher() *PageFetcher {
	return &PageFetcher{
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// FetchMetadata fetches a page and extracts its title and description
func (p *PageFetcher) FetchMetadata(ctx context.Context, pageURL string) (*PageMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page HTML: %w", err)
	}

	return ExtractMetadata(doc), nil
}

// ExtractMetadata pulls title and description out of a parsed document
func ExtractMetadata(doc *goquery.Document) *PageMetadata {
	meta := &PageMetadata{}

	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		meta.Title = title
	} else if ogTitle, _ := doc.Find("meta[property='og:title']").Attr("content"); ogTitle != "" {
		meta.Title = strings.TrimSpace(ogTitle)
	} else if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		meta.Title = h1
	}

	if desc, _ := doc.Find("meta[name='description']").Attr("content"); desc != "" {
		meta.Description = strings.TrimSpace(desc)
	} else if ogDesc, _ := doc.Find("meta[property='og:description']").Attr("content"); ogDesc != "" {
		meta.Description = strings.TrimSpace(ogDesc)
	}

	return meta
}
