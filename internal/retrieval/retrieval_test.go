package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// stubStore records the search arguments it was called with.
type stubStore struct {
	results   []vectorstore.SearchResult
	searchErr error

	gotTopK    int
	gotFilters map[string]string
}

func (s *stubStore) Backend() vectorstore.Backend { return vectorstore.BackendLocal }

func (s *stubStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	return nil
}

func (s *stubStore) Insert(ctx context.Context, records []vectorstore.Record) error { return nil }

func (s *stubStore) Search(ctx context.Context, vector []float32, topK int, filters map[string]string) ([]vectorstore.SearchResult, error) {
	s.gotTopK = topK
	s.gotFilters = filters
	return s.results, s.searchErr
}

func (s *stubStore) DeleteByIDs(ctx context.Context, ids []string) (int, error) { return 0, nil }

func (s *stubStore) IDsForDocument(ctx context.Context, documentID string) ([]string, error) {
	return nil, nil
}

func (s *stubStore) Count(ctx context.Context) (int, error) { return len(s.results), nil }

func (s *stubStore) Close() error { return nil }

type stubEmbedder struct {
	queryErr error
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return []float32{1, 0, 0}, nil
}

func newTestService(t *testing.T, store *stubStore, embedder *stubEmbedder) *Service {
	t.Helper()
	svc, err := NewService(store, embedder, Config{TopK: 3}, nil)
	require.NoError(t, err)
	return svc
}

func TestRetrieve_HappyPath(t *testing.T) {
	store := &stubStore{results: []vectorstore.SearchResult{
		{ID: "a", Text: "closest", Score: 0.1},
		{ID: "b", Text: "further", Score: 0.9},
	}}
	svc := newTestService(t, store, &stubEmbedder{})

	results, err := svc.Retrieve(context.Background(), "what is this", 2, map[string]string{"lang": "en"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, 2, store.gotTopK)
	assert.Equal(t, map[string]string{"lang": "en"}, store.gotFilters)
}

func TestDefaultTopK(t *testing.T) {
	svc := newTestService(t, &stubStore{}, &stubEmbedder{})
	assert.Equal(t, 3, svc.DefaultTopK())
}

func TestRetrieve_InvalidInput(t *testing.T) {
	store := &stubStore{gotTopK: -99}
	svc := newTestService(t, store, &stubEmbedder{})
	ctx := context.Background()

	_, err := svc.Retrieve(ctx, "", 3, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidInput)

	// Non-positive top_k is rejected outright, never defaulted.
	_, err = svc.Retrieve(ctx, "query", 0, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidInput)

	_, err = svc.Retrieve(ctx, "query", -1, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidInput)

	// The store was never consulted for any of the rejected calls.
	assert.Equal(t, -99, store.gotTopK)
}

func TestRetrieve_EmptyStore(t *testing.T) {
	svc := newTestService(t, &stubStore{}, &stubEmbedder{})

	results, err := svc.Retrieve(context.Background(), "query", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieve_EmbedFailure(t *testing.T) {
	embedErr := errors.New("endpoint down")
	svc := newTestService(t, &stubStore{}, &stubEmbedder{queryErr: embedErr})

	_, err := svc.Retrieve(context.Background(), "query", 3, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, embedErr)
}

func TestRetrieve_SearchFailure(t *testing.T) {
	store := &stubStore{searchErr: errors.New("store exploded")}
	svc := newTestService(t, store, &stubEmbedder{})

	_, err := svc.Retrieve(context.Background(), "query", 3, nil)
	assert.Error(t, err)
}
