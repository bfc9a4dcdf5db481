package vectorstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/renameio"
	"go.uber.org/zap"
)

// vecMagic marks the vector array file format.
var vecMagic = [4]byte{'R', 'G', 'V', '1'}

// LocalConfig holds configuration for the persisted local index.
type LocalConfig struct {
	// Path is the storage directory for the collection's artifacts.
	Path string

	// Collection is the collection name.
	Collection string

	// Dimension is the embedding dimension. Must match the remote index.
	Dimension int
}

// Validate validates the configuration.
func (c LocalConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: storage path required", ErrInvalidConfig)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, c.Dimension)
	}
	return nil
}

// rowRecord is one entry of the id-mapping artifact. Row order equals
// insertion order and equals row order in the vector array.
type rowRecord struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// manifest is the index configuration record, written alongside the vector
// array and the id mapping. Its row count cross-checks the other artifacts
// on load.
type manifest struct {
	Collection string `json:"collection"`
	Dimension  int    `json:"dimension"`
	Rows       int    `json:"rows"`
}

// LocalIndex is the fallback store: a file-backed flat index with exact
// squared-Euclidean search.
//
// Three artifacts persist a collection: the vector array ({name}.vec), the
// id mapping ({name}_rows.json) and the manifest ({name}_manifest.json).
// They are always rewritten together via temp-file-then-rename; a crash
// between renames is detected on load by row-count cross-checks and
// surfaces as ErrCorrupted.
//
// Insert and DeleteByIDs are serialized per collection; Search calls run
// concurrently and are only excluded during the rewrite window. A file lock
// on the collection directory keeps a second process out.
type LocalIndex struct {
	cfg    LocalConfig
	logger *zap.Logger

	mu      sync.RWMutex
	vectors []float32 // row-major, len == len(rows)*cfg.Dimension
	rows    []rowRecord
	byID    map[string]int
	closed  bool

	lock *flock.Flock
}

// NewLocalIndex opens or creates a local index at cfg.Path.
//
// Existing artifacts are loaded and cross-checked; any inconsistency
// (missing file, dimension mismatch, row-count disagreement) returns
// ErrCorrupted and the caller must treat the local store as unavailable.
func NewLocalIndex(cfg LocalConfig, logger *zap.Logger) (*LocalIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Path, cfg.Collection+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring collection lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: collection %q locked by another process", ErrInvalidConfig, cfg.Collection)
	}

	idx := &LocalIndex{
		cfg:    cfg,
		logger: logger.Named("local_index"),
		byID:   make(map[string]int),
		lock:   lock,
	}

	if err := idx.loadOrCreate(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	idx.logger.Info("local index ready",
		zap.String("collection", cfg.Collection),
		zap.String("path", cfg.Path),
		zap.Int("dimension", cfg.Dimension),
		zap.Int("rows", len(idx.rows)))

	return idx, nil
}

// Backend identifies this store as the local backend.
func (l *LocalIndex) Backend() Backend { return BackendLocal }

func (l *LocalIndex) vecPath() string {
	return filepath.Join(l.cfg.Path, l.cfg.Collection+".vec")
}

func (l *LocalIndex) rowsPath() string {
	return filepath.Join(l.cfg.Path, l.cfg.Collection+"_rows.json")
}

func (l *LocalIndex) manifestPath() string {
	return filepath.Join(l.cfg.Path, l.cfg.Collection+"_manifest.json")
}

// loadOrCreate loads existing artifacts or persists an empty collection.
func (l *LocalIndex) loadOrCreate() error {
	_, vecErr := os.Stat(l.vecPath())
	_, rowsErr := os.Stat(l.rowsPath())
	_, manErr := os.Stat(l.manifestPath())

	none := os.IsNotExist(vecErr) && os.IsNotExist(rowsErr) && os.IsNotExist(manErr)
	if none {
		return l.persistLocked()
	}

	// Some artifacts exist: all three must, and must agree.
	if vecErr != nil || rowsErr != nil || manErr != nil {
		return fmt.Errorf("%w: incomplete artifact set for collection %q", ErrCorrupted, l.cfg.Collection)
	}
	return l.load()
}

// load reads and cross-checks the three artifacts.
func (l *LocalIndex) load() error {
	manData, err := os.ReadFile(l.manifestPath())
	if err != nil {
		return fmt.Errorf("%w: reading manifest: %v", ErrCorrupted, err)
	}
	var man manifest
	if err := json.Unmarshal(manData, &man); err != nil {
		return fmt.Errorf("%w: decoding manifest: %v", ErrCorrupted, err)
	}
	if man.Dimension != l.cfg.Dimension {
		return fmt.Errorf("%w: collection %q has dimension %d, configured %d",
			ErrInvalidConfig, l.cfg.Collection, man.Dimension, l.cfg.Dimension)
	}

	rowsData, err := os.ReadFile(l.rowsPath())
	if err != nil {
		return fmt.Errorf("%w: reading id mapping: %v", ErrCorrupted, err)
	}
	var rows []rowRecord
	if err := json.Unmarshal(rowsData, &rows); err != nil {
		return fmt.Errorf("%w: decoding id mapping: %v", ErrCorrupted, err)
	}

	vectors, dim, err := readVectorArray(l.vecPath())
	if err != nil {
		return err
	}
	if dim != l.cfg.Dimension {
		return fmt.Errorf("%w: vector array dimension %d, manifest %d", ErrCorrupted, dim, man.Dimension)
	}

	// Row-count cross-check between all three artifacts. A crash between
	// renames leaves these disagreeing.
	vecRows := len(vectors) / l.cfg.Dimension
	if vecRows != len(rows) || vecRows != man.Rows {
		return fmt.Errorf("%w: row counts disagree: vectors=%d mapping=%d manifest=%d",
			ErrCorrupted, vecRows, len(rows), man.Rows)
	}

	l.vectors = vectors
	l.rows = rows
	l.byID = make(map[string]int, len(rows))
	for i, r := range rows {
		l.byID[r.ID] = i
	}
	return nil
}

// readVectorArray decodes the binary vector file: magic, dimension, row
// count, then row-major float32 little-endian data.
func readVectorArray(path string) ([]float32, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading vector array: %v", ErrCorrupted, err)
	}
	if len(data) < 12 || !bytes.Equal(data[:4], vecMagic[:]) {
		return nil, 0, fmt.Errorf("%w: bad vector array header", ErrCorrupted)
	}
	dim := int(binary.LittleEndian.Uint32(data[4:8]))
	rows := int(binary.LittleEndian.Uint32(data[8:12]))
	if dim <= 0 {
		return nil, 0, fmt.Errorf("%w: non-positive dimension in vector array", ErrCorrupted)
	}
	want := 12 + rows*dim*4
	if len(data) != want {
		return nil, 0, fmt.Errorf("%w: vector array is %d bytes, expected %d", ErrCorrupted, len(data), want)
	}
	vectors := make([]float32, rows*dim)
	if err := binary.Read(bytes.NewReader(data[12:]), binary.LittleEndian, vectors); err != nil {
		return nil, 0, fmt.Errorf("%w: decoding vector array: %v", ErrCorrupted, err)
	}
	return vectors, dim, nil
}

// persistLocked writes all three artifacts with temp-file-then-rename.
// Callers must hold the write lock (or be the constructor).
func (l *LocalIndex) persistLocked() error {
	var buf bytes.Buffer
	buf.Write(vecMagic[:])
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(l.cfg.Dimension))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(l.rows)))
	buf.Write(hdr[:])
	if err := binary.Write(&buf, binary.LittleEndian, l.vectors); err != nil {
		return fmt.Errorf("encoding vector array: %w", err)
	}

	rowsData, err := json.Marshal(l.rows)
	if err != nil {
		return fmt.Errorf("encoding id mapping: %w", err)
	}
	manData, err := json.Marshal(manifest{
		Collection: l.cfg.Collection,
		Dimension:  l.cfg.Dimension,
		Rows:       len(l.rows),
	})
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	// Manifest last: its row count vouches for the other two.
	if err := renameio.WriteFile(l.vecPath(), buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing vector array: %w", err)
	}
	if err := renameio.WriteFile(l.rowsPath(), rowsData, 0o600); err != nil {
		return fmt.Errorf("writing id mapping: %w", err)
	}
	if err := renameio.WriteFile(l.manifestPath(), manData, 0o600); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// CreateCollection is idempotent for this index's own collection. A
// different name or dimension is a configuration error: the local index
// owns exactly one collection per instance.
func (l *LocalIndex) CreateCollection(_ context.Context, name string, dimension int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrStoreClosed
	}
	if name != l.cfg.Collection {
		return fmt.Errorf("%w: local index owns collection %q, not %q", ErrInvalidConfig, l.cfg.Collection, name)
	}
	if dimension != l.cfg.Dimension {
		return fmt.Errorf("%w: collection %q has dimension %d, requested %d",
			ErrInvalidConfig, name, l.cfg.Dimension, dimension)
	}
	return nil
}

// Insert upserts records and persists all artifacts before returning. An id
// that already exists overwrites its row in place, keeping at most one
// active record per chunk id; new ids append in insertion order.
func (l *LocalIndex) Insert(_ context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if len(r.Vector) != l.cfg.Dimension {
			return fmt.Errorf("%w: record %q has dimension %d, collection requires %d",
				ErrInvalidConfig, r.ID, len(r.Vector), l.cfg.Dimension)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrStoreClosed
	}

	// Mutate copies and swap, so a failed persist rolls back to the
	// previous arrays untouched.
	newRows := append(make([]rowRecord, 0, len(l.rows)+len(records)), l.rows...)
	newVectors := append(make([]float32, 0, (len(l.rows)+len(records))*l.cfg.Dimension), l.vectors...)
	newByID := make(map[string]int, len(l.byID)+len(records))
	for id, row := range l.byID {
		newByID[id] = row
	}

	for _, r := range records {
		if row, ok := newByID[r.ID]; ok {
			newRows[row] = rowRecord{ID: r.ID, Text: r.Text, Metadata: r.Metadata}
			copy(newVectors[row*l.cfg.Dimension:(row+1)*l.cfg.Dimension], r.Vector)
			continue
		}
		newByID[r.ID] = len(newRows)
		newRows = append(newRows, rowRecord{ID: r.ID, Text: r.Text, Metadata: r.Metadata})
		newVectors = append(newVectors, r.Vector...)
	}

	prevRows, prevVectors, prevByID := l.rows, l.vectors, l.byID
	l.rows, l.vectors, l.byID = newRows, newVectors, newByID

	if err := l.persistLocked(); err != nil {
		l.rows, l.vectors, l.byID = prevRows, prevVectors, prevByID
		return err
	}

	l.logger.Debug("records inserted", zap.Int("count", len(records)), zap.Int("rows", len(l.rows)))
	return nil
}

// Search computes squared Euclidean distance against every stored vector
// and returns the topK smallest, ties broken by insertion order. Filters
// are applied by post-filtering on metadata.
func (l *LocalIndex) Search(_ context.Context, vector []float32, topK int, filters map[string]string) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top-k must be positive, got %d", ErrInvalidInput, topK)
	}
	if len(vector) != l.cfg.Dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, collection requires %d",
			ErrInvalidConfig, len(vector), l.cfg.Dimension)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrStoreClosed
	}

	type scored struct {
		row   int
		score float64
	}
	candidates := make([]scored, 0, len(l.rows))
	for i, row := range l.rows {
		if !matchesFilters(row.Metadata, filters) {
			continue
		}
		candidates = append(candidates, scored{row: i, score: l.squaredL2(i, vector)})
	}

	// Stable sort preserves insertion order among equal scores.
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score < candidates[b].score
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	results := make([]SearchResult, 0, topK)
	for _, c := range candidates[:topK] {
		row := l.rows[c.row]
		results = append(results, SearchResult{
			ID:       row.ID,
			Text:     row.Text,
			Score:    c.score,
			Metadata: row.Metadata,
		})
	}
	return results, nil
}

// squaredL2 computes the squared Euclidean distance between the query and
// row i. Callers hold at least the read lock.
func (l *LocalIndex) squaredL2(i int, query []float32) float64 {
	offset := i * l.cfg.Dimension
	var sum float64
	for j, q := range query {
		d := float64(l.vectors[offset+j]) - float64(q)
		sum += d * d
	}
	return sum
}

func matchesFilters(metadata, filters map[string]string) bool {
	for k, v := range filters {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// DeleteByIDs logically removes records, rebuilds the vector array and id
// mapping without them, and re-persists. O(n) by design: deletion is not
// latency-critical and a rebuild guarantees no orphaned rows.
func (l *LocalIndex) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrStoreClosed
	}

	drop := make(map[string]bool, len(ids))
	removed := 0
	for _, id := range ids {
		if _, ok := l.byID[id]; ok && !drop[id] {
			removed++
		}
		drop[id] = true
	}
	if removed == 0 {
		return 0, nil
	}

	kept := len(l.rows) - removed
	newRows := make([]rowRecord, 0, kept)
	newVectors := make([]float32, 0, kept*l.cfg.Dimension)
	newByID := make(map[string]int, kept)
	for i, row := range l.rows {
		if drop[row.ID] {
			continue
		}
		newByID[row.ID] = len(newRows)
		newRows = append(newRows, row)
		offset := i * l.cfg.Dimension
		newVectors = append(newVectors, l.vectors[offset:offset+l.cfg.Dimension]...)
	}

	prevRows, prevVectors, prevByID := l.rows, l.vectors, l.byID
	l.rows, l.vectors, l.byID = newRows, newVectors, newByID

	if err := l.persistLocked(); err != nil {
		l.rows, l.vectors, l.byID = prevRows, prevVectors, prevByID
		return 0, err
	}

	l.logger.Debug("records deleted", zap.Int("count", removed), zap.Int("rows", len(l.rows)))
	return removed, nil
}

// IDsForDocument returns all chunk ids belonging to a document.
func (l *LocalIndex) IDsForDocument(_ context.Context, documentID string) ([]string, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id required", ErrInvalidInput)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrStoreClosed
	}

	prefix := documentID + "_chunk_"
	var ids []string
	for _, row := range l.rows {
		if row.Metadata["document_id"] == documentID || strings.HasPrefix(row.ID, prefix) {
			ids = append(ids, row.ID)
		}
	}
	return ids, nil
}

// Count returns the number of stored vectors.
func (l *LocalIndex) Count(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return 0, ErrStoreClosed
	}
	return len(l.rows), nil
}

// Close flushes the artifacts and releases the collection lock.
func (l *LocalIndex) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	err := l.persistLocked()
	if unlockErr := l.lock.Unlock(); unlockErr != nil && err == nil {
		err = fmt.Errorf("releasing collection lock: %w", unlockErr)
	}
	return err
}

// Ensure LocalIndex implements Store.
var _ Store = (*LocalIndex)(nil)
