// Package retrieval answers similarity queries over the vector store.
package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Config holds retrieval defaults.
type Config struct {
	// TopK is the default result count, reported via DefaultTopK for
	// callers that let the field be omitted. Default: 3.
	TopK int
}

// Service embeds queries and searches the active vector store. Scores
// ascend: smaller means more similar.
type Service struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	cfg      Config
	logger   *zap.Logger
}

// NewService creates a retrieval service.
func NewService(store vectorstore.Store, embedder embeddings.Embedder, cfg Config, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", vectorstore.ErrInvalidConfig)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", vectorstore.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	return &Service{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger.Named("retrieval"),
	}, nil
}

// DefaultTopK returns the configured default result count. Transport layers
// apply it when the caller omits the field; Retrieve itself stays strict.
func (s *Service) DefaultTopK() int {
	return s.cfg.TopK
}

// Retrieve embeds the query and returns up to topK results ordered by
// ascending score, optionally restricted to records whose metadata matches
// every filter key exactly. topK must be positive and the query non-empty;
// anything else fails with ErrInvalidInput. An empty store yields an empty
// result, not an error.
func (s *Service) Retrieve(ctx context.Context, query string, topK int, filters map[string]string) ([]vectorstore.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", vectorstore.ErrInvalidInput)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", vectorstore.ErrInvalidInput, topK)
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.store.Search(ctx, vector, topK, filters)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	s.logger.Debug("query served",
		zap.Int("top_k", topK),
		zap.Int("results", len(results)))
	return results, nil
}
