package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("Failed to parse HTML: %v", err)
	}
	return doc
}

func TestExtractMetadata(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		wantName string
		wantDesc string
	}{
		{
			"title tag and meta description",
			`<html><head><title>Go Blog</title><meta name="description" content="Official Go news"></head></html>`,
			"Go Blog",
			"Official Go news",
		},
		{
			"opengraph fallbacks",
			`<html><head><meta property="og:title" content="Go Blog"><meta property="og:description" content="Official Go news"></head></html>`,
			"Go Blog",
			"Official Go news",
		},
		{
			"h1 fallback",
			`<html><body><h1>  Go Blog  </h1></body></html>`,
			"Go Blog",
			"",
		},
		{
			"nothing useful",
			`<html><body><p>text</p></body></html>`,
			"",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := ExtractMetadata(docFrom(t, tt.html))
			if meta.Title != tt.wantName {
				t.Errorf("Title = %q, want %q", meta.Title, tt.wantName)
			}
			if meta.Description != tt.wantDesc {
				t.Errorf("Description = %q, want %q", meta.Description, tt.wantDesc)
			}
		})
	}
}

func TestFetchMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Example</title></head></html>`))
	}))
	defer server.Close()

	p := NewPageFetcher()
	meta, err := p.FetchMetadata(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchMetadata failed: %v", err)
	}
	if meta.Title != "Example" {
		t.Errorf("Expected page title, got %q", meta.Title)
	}
}

func TestFetchMetadataNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewPageFetcher()
	if _, err := p.FetchMetadata(context.Background(), server.URL); err == nil {
		t.Error("Expected error for non-200 response")
	}
}
