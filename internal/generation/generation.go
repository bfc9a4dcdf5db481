// Package generation produces grounded answers from retrieved context via an
// OpenAI-compatible chat model.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// ErrModelUnavailable indicates the chat endpoint could not be reached or
// rejected the request.
var ErrModelUnavailable = errors.New("generation model unavailable")

// Config holds generation model configuration.
type Config struct {
	// BaseURL of the OpenAI-compatible chat endpoint. Empty means the
	// provider default.
	BaseURL string

	// APIKey authenticates against the endpoint.
	APIKey string

	// Model is the chat model name.
	Model string

	// Temperature for sampling. Default: 0.1.
	Temperature float64

	// MaxTokens caps the completion length. Default: 1024.
	MaxTokens int
}

// Service generates answers from a query and its retrieved context chunks.
type Service struct {
	model       llms.Model
	temperature float64
	maxTokens   int
}

// NewService creates a generation service backed by an OpenAI-compatible
// endpoint.
func NewService(cfg Config) (*Service, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("generation model is required")
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create generation client: %w", err)
	}
	return &Service{
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Answer generates a response to the query grounded in the retrieved
// results. With no results the model is instructed to say it cannot answer
// from the available documents.
func (s *Service) Answer(ctx context.Context, query string, results []vectorstore.SearchResult) (string, error) {
	if query == "" {
		return "", fmt.Errorf("%w: query is required", vectorstore.ErrInvalidInput)
	}

	prompt := buildPrompt(query, results)
	answer, err := llms.GenerateFromSinglePrompt(ctx, s.model, prompt,
		llms.WithTemperature(s.temperature),
		llms.WithMaxTokens(s.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return strings.TrimSpace(answer), nil
}

// buildPrompt assembles the grounding prompt. Context chunks appear in
// retrieval order, most relevant first.
func buildPrompt(query string, results []vectorstore.SearchResult) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. ")
	b.WriteString("If the context does not contain the answer, say so.\n\n")
	if len(results) == 0 {
		b.WriteString("Context: (no matching documents)\n\n")
	} else {
		b.WriteString("Context:\n")
		for i, r := range results {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, r.Text)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s\nAnswer:", query)
	return b.String()
}
