package vectorstore

import "time"

// Backend identifies which index implementation serves requests.
type Backend string

const (
	// BackendRemote is the networked Qdrant index.
	BackendRemote Backend = "remote"
	// BackendLocal is the persisted file-backed index.
	BackendLocal Backend = "local"
)

// Record is a chunk's embedding plus its text and metadata, as stored in an
// index. The ID equals the chunk id ("{document_id}_chunk_{sequence_index}")
// and is stable across backends.
type Record struct {
	// ID is the globally unique record identifier.
	ID string

	// Vector is the embedding. Its length must equal the collection
	// dimension; a mismatch on insert fails with ErrInvalidConfig.
	Vector []float32

	// Text is the chunk text the vector was computed from.
	Text string

	// Metadata holds filterable key-value pairs.
	// Common fields: document_id, sequence_index, char_start, char_end.
	Metadata map[string]string
}

// SearchResult is a single similarity hit.
//
// Score is a distance: smaller means more relevant. Both backends expose
// this ordering (squared Euclidean locally, Euclidean on the remote index),
// with ties broken by insertion order.
type SearchResult struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Descriptor reports which backend is active and its health. It is the only
// piece of cross-component mutable state; the Selector owns all mutation.
type Descriptor struct {
	Backend        Backend   `json:"backend"`
	CollectionName string    `json:"collection_name"`
	Dimension      int       `json:"dimension"`
	Healthy        bool      `json:"is_healthy"`
	LastCheckedAt  time.Time `json:"last_checked_at"`
}
