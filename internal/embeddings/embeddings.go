// Package embeddings provides embedding generation for document chunks and
// queries via an OpenAI-compatible endpoint.
package embeddings

import (
	"context"
	"errors"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrModelUnavailable indicates the embedding endpoint could not be reached
// or rejected the request. Connection-class from the caller's point of view.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Embedder generates embedding vectors for texts.
type Embedder interface {
	// EmbedDocuments embeds a batch of document chunks, one vector per
	// input text in the same order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config holds embedding provider configuration.
type Config struct {
	// BaseURL of the OpenAI-compatible embedding endpoint. Empty means
	// the provider default.
	BaseURL string

	// APIKey authenticates against the endpoint.
	APIKey string

	// Model is the embedding model name.
	Model string

	// Dimension is the expected vector dimensionality. Every returned
	// vector is checked against it.
	Dimension int

	// BatchSize caps the number of texts sent per request. Default: 32.
	BatchSize int
}

// Service wraps a langchaingo embedder with batching and dimension
// enforcement. A vector of the wrong length is an error, never silently
// truncated or padded.
type Service struct {
	embedder  lcembeddings.Embedder
	dimension int
	batchSize int
}

// NewService creates an embedding service backed by an OpenAI-compatible
// endpoint.
func NewService(cfg Config) (*Service, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	opts := []openai.Option{
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	embedder, err := lcembeddings.NewEmbedder(client,
		lcembeddings.WithBatchSize(cfg.BatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &Service{
		embedder:  embedder,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
	}, nil
}

// Dimension returns the configured vector dimensionality.
func (s *Service) Dimension() int {
	return s.dimension
}

// BatchSize returns the configured request batch size.
func (s *Service) BatchSize() int {
	return s.batchSize
}

// EmbedDocuments embeds document chunks, one vector per input text.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrModelUnavailable, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != s.dimension {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(v), s.dimension)
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query embedding has dimension %d, expected %d", len(vector), s.dimension)
	}
	return vector, nil
}

var _ Embedder = (*Service)(nil)
