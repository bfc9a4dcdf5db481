// Package ingest turns raw document text into embedded chunk records and
// writes them to the vector store.
package ingest

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Config holds chunking and batching parameters for the pipeline.
type Config struct {
	// ChunkSize is the maximum chunk length in runes. Default: 1000.
	ChunkSize int

	// ChunkOverlap is the rune overlap between consecutive chunks.
	// Default: 200.
	ChunkOverlap int

	// BatchSize caps the number of chunks embedded and inserted per
	// round trip. Default: 32.
	BatchSize int
}

func (c *Config) applyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 200
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
}

// Chunk is one pre-split piece of a document, carried through embedding and
// insertion with its identity and provenance.
type Chunk struct {
	// ID is "{documentID}_chunk_{seq}".
	ID string

	// Text is the chunk content.
	Text string

	// Metadata carries document_id, sequence_index, char_start and
	// char_end plus any caller-supplied keys.
	Metadata map[string]string
}

// Result reports the outcome of an ingestion call.
type Result struct {
	// Inserted is the number of chunks stored.
	Inserted int `json:"inserted"`

	// FailedIDs lists chunk ids that could not be embedded. Their chunks
	// were skipped; the rest of the batch was stored.
	FailedIDs []string `json:"failed_ids,omitempty"`
}

// Pipeline chunks, embeds and inserts documents.
type Pipeline struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	cfg      Config
	logger   *zap.Logger
}

// NewPipeline creates an ingestion pipeline over the given store and
// embedder.
func NewPipeline(store vectorstore.Store, embedder embeddings.Embedder, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", vectorstore.ErrInvalidConfig)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", vectorstore.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	return &Pipeline{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger.Named("ingest"),
	}, nil
}

// IngestText splits a document into chunks and ingests them. Metadata is
// copied onto every chunk. Empty text yields an empty result without touching
// the store.
func (p *Pipeline) IngestText(ctx context.Context, documentID, text string, metadata map[string]string) (Result, error) {
	if documentID == "" {
		return Result{}, fmt.Errorf("%w: document id is required", vectorstore.ErrInvalidInput)
	}

	pieces, err := chunker.Split(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", vectorstore.ErrInvalidInput, err)
	}
	if len(pieces) == 0 {
		return Result{}, nil
	}

	chunks := make([]Chunk, 0, len(pieces))
	for i, piece := range pieces {
		md := make(map[string]string, len(metadata)+4)
		for k, v := range metadata {
			md[k] = v
		}
		md["document_id"] = documentID
		md["sequence_index"] = strconv.Itoa(i)
		md["char_start"] = strconv.Itoa(piece.Start)
		md["char_end"] = strconv.Itoa(piece.End)

		chunks = append(chunks, Chunk{
			ID:       fmt.Sprintf("%s_chunk_%d", documentID, i),
			Text:     piece.Text,
			Metadata: md,
		})
	}
	return p.IngestChunks(ctx, chunks)
}

// IngestChunks embeds and inserts pre-split chunks in batches. A failed batch
// embedding is retried per chunk; chunks that still fail are reported in
// Result.FailedIDs while the rest of the batch proceeds. A store insertion
// failure aborts the call.
func (p *Pipeline) IngestChunks(ctx context.Context, chunks []Chunk) (Result, error) {
	var result Result
	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		records, failed, err := p.embedBatch(ctx, batch)
		if err != nil {
			return result, err
		}
		result.FailedIDs = append(result.FailedIDs, failed...)
		if len(records) == 0 {
			continue
		}

		if err := p.store.Insert(ctx, records); err != nil {
			return result, fmt.Errorf("insert batch: %w", err)
		}
		result.Inserted += len(records)
	}

	if len(result.FailedIDs) > 0 {
		p.logger.Warn("some chunks failed to embed",
			zap.Int("inserted", result.Inserted),
			zap.Int("failed", len(result.FailedIDs)))
	}
	return result, nil
}

// embedBatch embeds a batch in one call, falling back to per-chunk embedding
// when the batch call fails. Only a context cancellation aborts the fallback.
func (p *Pipeline) embedBatch(ctx context.Context, batch []Chunk) ([]vectorstore.Record, []string, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err == nil {
		records := make([]vectorstore.Record, len(batch))
		for i, c := range batch {
			records[i] = vectorstore.Record{
				ID:       c.ID,
				Vector:   vectors[i],
				Text:     c.Text,
				Metadata: c.Metadata,
			}
		}
		return records, nil, nil
	}

	p.logger.Warn("batch embedding failed, retrying per chunk",
		zap.Int("batch_size", len(batch)),
		zap.Error(err))

	var records []vectorstore.Record
	var failed []string
	for _, c := range batch {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		vector, embedErr := p.embedder.EmbedQuery(ctx, c.Text)
		if embedErr != nil {
			p.logger.Warn("chunk embedding failed, skipping",
				zap.String("chunk_id", c.ID),
				zap.Error(embedErr))
			failed = append(failed, c.ID)
			continue
		}
		records = append(records, vectorstore.Record{
			ID:       c.ID,
			Vector:   vector,
			Text:     c.Text,
			Metadata: c.Metadata,
		})
	}
	return records, failed, nil
}

// DeleteDocument removes every chunk belonging to the document and returns
// how many were deleted. Deleting an unknown document is not an error.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	if documentID == "" {
		return 0, fmt.Errorf("%w: document id is required", vectorstore.ErrInvalidInput)
	}
	ids, err := p.store.IDsForDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("list document chunks: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	deleted, err := p.store.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete document chunks: %w", err)
	}
	p.logger.Info("document deleted",
		zap.String("document_id", documentID),
		zap.Int("chunks", deleted))
	return deleted, nil
}
