package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// memStore collects inserted records in memory.
type memStore struct {
	records   []vectorstore.Record
	insertErr error
	deleteErr error
}

func (m *memStore) Backend() vectorstore.Backend { return vectorstore.BackendLocal }

func (m *memStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	return nil
}

func (m *memStore) Insert(ctx context.Context, records []vectorstore.Record) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *memStore) Search(ctx context.Context, vector []float32, topK int, filters map[string]string) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (m *memStore) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	deleted := 0
	var kept []vectorstore.Record
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	for _, r := range m.records {
		if drop[r.ID] {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return deleted, nil
}

func (m *memStore) IDsForDocument(ctx context.Context, documentID string) ([]string, error) {
	var ids []string
	for _, r := range m.records {
		if r.Metadata["document_id"] == documentID {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

func (m *memStore) Count(ctx context.Context) (int, error) { return len(m.records), nil }

func (m *memStore) Close() error { return nil }

// stubEmbedder returns fixed-width vectors. failTexts makes specific inputs
// fail; batchErr fails every batch call to force the per-chunk fallback.
type stubEmbedder struct {
	dimension  int
	batchErr   error
	failTexts  map[string]bool
	batchCalls int
	queryCalls int
}

func (s *stubEmbedder) vector() []float32 {
	return make([]float32, s.dimension)
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	s.batchCalls++
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = s.vector()
	}
	return vectors, nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	s.queryCalls++
	if s.failTexts[text] {
		return nil, errors.New("embedding rejected")
	}
	return s.vector(), nil
}

func newTestPipeline(t *testing.T, store *memStore, embedder *stubEmbedder, cfg Config) *Pipeline {
	t.Helper()
	p, err := NewPipeline(store, embedder, cfg, nil)
	require.NoError(t, err)
	return p
}

func TestIngestText_ChunkIdentityAndMetadata(t *testing.T) {
	store := &memStore{}
	embedder := &stubEmbedder{dimension: 4}
	p := newTestPipeline(t, store, embedder, Config{ChunkSize: 10, ChunkOverlap: 2})

	text := strings.Repeat("A", 25)
	result, err := p.IngestText(context.Background(), "doc1", text, map[string]string{"source": "test"})
	require.NoError(t, err)
	assert.Empty(t, result.FailedIDs)
	assert.Equal(t, result.Inserted, len(store.records))
	require.NotEmpty(t, store.records)

	for i, r := range store.records {
		assert.Equal(t, fmt.Sprintf("doc1_chunk_%d", i), r.ID)
		assert.Equal(t, "doc1", r.Metadata["document_id"])
		assert.Equal(t, fmt.Sprintf("%d", i), r.Metadata["sequence_index"])
		assert.Equal(t, "test", r.Metadata["source"])
		assert.NotEmpty(t, r.Metadata["char_start"])
		assert.NotEmpty(t, r.Metadata["char_end"])
		assert.Len(t, r.Vector, 4)
	}
}

func TestIngestText_EmptyText(t *testing.T) {
	store := &memStore{}
	p := newTestPipeline(t, store, &stubEmbedder{dimension: 4}, Config{})

	result, err := p.IngestText(context.Background(), "doc1", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Empty(t, store.records)
}

func TestIngestText_MissingDocumentID(t *testing.T) {
	p := newTestPipeline(t, &memStore{}, &stubEmbedder{dimension: 4}, Config{})

	_, err := p.IngestText(context.Background(), "", "some text", nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidInput)
}

func TestIngestChunks_Batching(t *testing.T) {
	store := &memStore{}
	embedder := &stubEmbedder{dimension: 4}
	p := newTestPipeline(t, store, embedder, Config{BatchSize: 2})

	chunks := []Chunk{
		{ID: "d_chunk_0", Text: "one"},
		{ID: "d_chunk_1", Text: "two"},
		{ID: "d_chunk_2", Text: "three"},
		{ID: "d_chunk_3", Text: "four"},
		{ID: "d_chunk_4", Text: "five"},
	}
	result, err := p.IngestChunks(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Inserted)
	// Five chunks at batch size two means three embed calls.
	assert.Equal(t, 3, embedder.batchCalls)
	assert.Len(t, store.records, 5)
}

func TestIngestChunks_PerChunkFallback(t *testing.T) {
	store := &memStore{}
	embedder := &stubEmbedder{
		dimension: 4,
		batchErr:  errors.New("batch endpoint down"),
		failTexts: map[string]bool{"poison": true},
	}
	p := newTestPipeline(t, store, embedder, Config{BatchSize: 3})

	chunks := []Chunk{
		{ID: "d_chunk_0", Text: "fine"},
		{ID: "d_chunk_1", Text: "poison"},
		{ID: "d_chunk_2", Text: "also fine"},
	}
	result, err := p.IngestChunks(context.Background(), chunks)
	require.NoError(t, err)

	// The failed chunk is skipped and reported; the rest land.
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, []string{"d_chunk_1"}, result.FailedIDs)
	assert.Len(t, store.records, 2)
	assert.Equal(t, 3, embedder.queryCalls)
}

func TestIngestChunks_InsertFailureAborts(t *testing.T) {
	store := &memStore{insertErr: fmt.Errorf("%w: remote down", vectorstore.ErrConnectionFailed)}
	p := newTestPipeline(t, store, &stubEmbedder{dimension: 4}, Config{})

	_, err := p.IngestChunks(context.Background(), []Chunk{{ID: "d_chunk_0", Text: "one"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrConnectionFailed)
}

func TestDeleteDocument(t *testing.T) {
	store := &memStore{}
	embedder := &stubEmbedder{dimension: 4}
	p := newTestPipeline(t, store, embedder, Config{ChunkSize: 10, ChunkOverlap: 0})
	ctx := context.Background()

	_, err := p.IngestText(ctx, "doc1", strings.Repeat("A", 25), nil)
	require.NoError(t, err)
	_, err = p.IngestText(ctx, "doc2", strings.Repeat("B", 15), nil)
	require.NoError(t, err)

	before := len(store.records)
	deleted, err := p.DeleteDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
	assert.Len(t, store.records, before-deleted)

	// Only doc2 chunks remain.
	for _, r := range store.records {
		assert.Equal(t, "doc2", r.Metadata["document_id"])
	}

	// Deleting an unknown document is a no-op.
	deleted, err = p.DeleteDocument(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	_, err = p.DeleteDocument(ctx, "")
	assert.ErrorIs(t, err, vectorstore.ErrInvalidInput)
}
