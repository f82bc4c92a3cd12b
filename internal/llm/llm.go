// Package llm wraps the Gemini API for generating text embeddings
package llm

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"
	"unicode/utf8"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	// DefaultEmbeddingModel is the default model for generating embeddings
	DefaultEmbeddingModel = "gemini-embedding-001"
	// DefaultEmbeddingDimensions is the output dimension for embeddings (Matryoshka)
	DefaultEmbeddingDimensions = int32(768)
	// DefaultTimeout bounds a single embedding call
	DefaultTimeout = 30 * time.Second
	// maxEmbeddingTextLen is a conservative character limit for gemini-embedding-001
	maxEmbeddingTextLen = 8000
)

// Embedder generates fixed-length vector embeddings for text.
// Batch results preserve input order and count.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float64, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float64, error)
}

// Client is an Embedder backed by the Gemini embedding API.
type Client struct {
	modelName  string
	dimensions int32
	timeout    time.Duration
	limiter    *rate.Limiter
	gClient    *genai.Client
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the embedding model.
func WithModel(model string) Option {
	return func(c *Client) {
		c.modelName = model
	}
}

// WithDimensions overrides the output dimensionality.
func WithDimensions(dims int32) Option {
	return func(c *Client) {
		c.dimensions = dims
	}
}

// WithTimeout bounds each embedding call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithRateLimit caps outbound requests per second to respect provider limits.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewClient creates a new embedding client.
// It supports multiple ways to get the API key (in order of preference):
// 1. Environment variable: GEMINI_API_KEY (or alternatives)
// 2. Viper configuration: ai.gemini.api_key
func NewClient(opts ...Option) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		if apiKey = os.Getenv("GOOGLE_GEMINI_API_KEY"); apiKey == "" {
			if apiKey = os.Getenv("GOOGLE_AI_API_KEY"); apiKey == "" {
				apiKey = viper.GetString("ai.gemini.api_key")
			}
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file")
	}

	ctx := context.Background()
	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := &Client{
		modelName:  DefaultEmbeddingModel,
		dimensions: DefaultEmbeddingDimensions,
		timeout:    DefaultTimeout,
		gClient:    gClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GenerateEmbedding generates a vector embedding for the given text.
// The call is bounded by the client timeout; on timeout the caller sees a
// plain error, identical to any other provider failure.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// GenerateEmbeddings generates embeddings for multiple texts in one request,
// preserving input order and count.
func (c *Client) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait cancelled: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		text = truncateForEmbedding(text)
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: text}},
			Role:  "user",
		})
	}

	dims := c.dimensions
	config := &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	}

	resp, err := c.gClient.Models.EmbedContent(ctx, c.modelName, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), embeddingCount(resp))
	}

	vectors := make([][]float64, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("no embedding values returned for input %d", i)
		}
		vector := make([]float64, len(emb.Values))
		for j, val := range emb.Values {
			vector[j] = float64(val)
		}
		vectors[i] = vector
	}

	return vectors, nil
}

// truncateForEmbedding caps text at maxEmbeddingTextLen without cutting
// through a multi-byte rune.
func truncateForEmbedding(text string) string {
	if len(text) <= maxEmbeddingTextLen {
		return text
	}
	cut := maxEmbeddingTextLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func embeddingCount(resp *genai.EmbedContentResponse) int {
	if resp == nil {
		return 0
	}
	return len(resp.Embeddings)
}

// CosineSimilarity calculates the cosine similarity between two embeddings
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
