// Package vectorstore provides vector storage with a networked primary index
// and a persisted local fallback behind a single Store interface.
//
// The Selector routes every operation to whichever backend is currently
// active, degrading from the remote index to the local one when the remote
// becomes unreachable. Ingestion and retrieval share the same Selector, so
// both always target the same backend.
package vectorstore

import "context"

// Store is the uniform interface over the remote and local indexes.
//
// Implementations are vector-level: embedding happens outside this package.
// All blocking operations take a context; remote implementations bound each
// call with a configurable timeout so a hung connection cannot stall the
// Selector's degrade decision.
//
// Implementations:
//   - LocalIndex: persisted flat index with exact L2 search
//   - QdrantStore: Qdrant gRPC client
//   - Selector: routes to one of the above per its state machine
type Store interface {
	// Backend identifies the implementation serving this store.
	Backend() Backend

	// CreateCollection creates the collection if it does not exist.
	// Idempotent: creating an identical collection is a no-op; an existing
	// collection with a different dimension fails with ErrInvalidConfig.
	CreateCollection(ctx context.Context, name string, dimension int) error

	// Insert upserts records into the collection: re-inserting an id
	// replaces the existing record, so at most one active record exists
	// per chunk id. The operation is durable before it returns: the
	// local index persists all artifacts, the remote index acknowledges
	// the upsert.
	Insert(ctx context.Context, records []Record) error

	// Search returns up to topK results ordered by ascending distance,
	// ties broken by insertion order. topK larger than the row count
	// returns all rows; an empty collection returns an empty slice.
	// Filters match metadata exactly; the local index applies them by
	// post-filtering.
	Search(ctx context.Context, vector []float32, topK int, filters map[string]string) ([]SearchResult, error)

	// DeleteByIDs removes the records with the given ids. Unknown ids are
	// ignored. Returns the number of records removed.
	DeleteByIDs(ctx context.Context, ids []string) (int, error)

	// IDsForDocument returns the ids of all chunks belonging to a
	// document, matched by the document_id metadata field or the
	// "{document_id}_chunk_" id prefix.
	IDsForDocument(ctx context.Context, documentID string) ([]string, error)

	// Count returns the number of stored vectors.
	Count(ctx context.Context) (int, error)

	// Close flushes state and releases resources.
	Close() error
}

// Prober tests connectivity with a lightweight operation. The Selector uses
// it for the startup probe and for explicit re-probe requests.
type Prober interface {
	Probe(ctx context.Context) error
}
