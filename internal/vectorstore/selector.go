package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the Selector's routing state.
type State string

const (
	// StateUninitialized is the state before Init.
	StateUninitialized State = "UNINITIALIZED"
	// StateActiveRemote routes operations to the remote index.
	StateActiveRemote State = "ACTIVE_REMOTE"
	// StateActiveLocal routes operations to the local index.
	StateActiveLocal State = "ACTIVE_LOCAL"
	// StateRemoteRetryPending is the transient state while an explicit
	// re-probe of the remote index is in flight.
	StateRemoteRetryPending State = "REMOTE_RETRY_PENDING"
)

// SelectorConfig holds configuration for the Selector.
type SelectorConfig struct {
	// UseRemote requests the remote backend. When false the Selector
	// activates the local index without probing.
	UseRemote bool

	// Collection is the logical collection name, reported in the
	// Descriptor.
	Collection string

	// Dimension is the embedding dimension, reported in the Descriptor.
	Dimension int

	// ProbeTimeout bounds the startup and re-probe connectivity checks.
	// Default: 5s.
	ProbeTimeout time.Duration
}

// Selector routes every store operation to the currently active backend and
// owns all degradation state.
//
// State machine:
//
//	UNINITIALIZED        --probe ok-->            ACTIVE_REMOTE
//	UNINITIALIZED        --remote off/probe err-> ACTIVE_LOCAL
//	ACTIVE_REMOTE        --connection error-->    ACTIVE_LOCAL (op retried once locally)
//	ACTIVE_LOCAL         --RetryRemote-->         REMOTE_RETRY_PENDING --probe ok--> ACTIVE_REMOTE
//
// State reads are safe under many concurrent callers; transitions are
// serialized against each other but not against reads, so an operation in
// flight during a degrade completes against its original backend or is
// retried exactly once against the new one, never dropped. Writes go to
// exactly one backend per call; restoring the remote does not migrate data
// written locally in the meantime.
type Selector struct {
	remote Store // nil when the remote backend is disabled
	local  Store
	cfg    SelectorConfig
	logger *zap.Logger

	mu    sync.RWMutex
	state State
	desc  Descriptor
}

// NewSelector creates a Selector. The remote store may be nil when the
// configuration disables the remote backend; the local store is required.
func NewSelector(remote, local Store, cfg SelectorConfig, logger *zap.Logger) (*Selector, error) {
	if local == nil {
		return nil, fmt.Errorf("%w: local store is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	return &Selector{
		remote: remote,
		local:  local,
		cfg:    cfg,
		logger: logger.Named("selector"),
		state:  StateUninitialized,
		desc: Descriptor{
			CollectionName: cfg.Collection,
			Dimension:      cfg.Dimension,
		},
	}, nil
}

// Init probes the remote index (when requested) and settles on the initial
// backend. Must be called once before any operation.
func (s *Selector) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		return nil
	}

	if !s.cfg.UseRemote || s.remote == nil {
		s.transitionLocked(StateActiveLocal, "remote backend disabled")
		return nil
	}

	if err := s.probe(ctx); err != nil {
		s.logger.Warn("startup probe failed, degrading to local index", zap.Error(err))
		s.transitionLocked(StateActiveLocal, "startup probe failed")
		return nil
	}
	s.transitionLocked(StateActiveRemote, "startup probe succeeded")
	return nil
}

// probe runs the remote connectivity check under the probe timeout.
func (s *Selector) probe(ctx context.Context) error {
	prober, ok := s.remote.(Prober)
	if !ok {
		return fmt.Errorf("%w: remote store does not support probing", ErrInvalidConfig)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()
	return prober.Probe(ctx)
}

// transitionLocked updates state and descriptor. Callers hold the write lock.
func (s *Selector) transitionLocked(next State, reason string) {
	prev := s.state
	s.state = next

	switch next {
	case StateActiveRemote:
		s.desc.Backend = BackendRemote
		s.desc.Healthy = true
	case StateActiveLocal:
		s.desc.Backend = BackendLocal
		// Local is healthy when it is the requested backend; when the
		// deployment asked for remote, local routing means degraded.
		s.desc.Healthy = !s.cfg.UseRemote || s.remote == nil
	case StateRemoteRetryPending:
		// Backend unchanged while the probe runs.
	}
	s.desc.LastCheckedAt = time.Now()

	observeState(next)
	s.logger.Info("state transition",
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
		zap.String("reason", reason))
}

// State returns the current routing state.
func (s *Selector) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns a copy of the Store Descriptor for reporting.
func (s *Selector) Status() Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.desc
}

// Backend reports the currently active backend.
func (s *Selector) Backend() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.desc.Backend
}

// active returns the store to route to and whether it is the remote one.
// The possibly stale-by-one-operation read is intentional: state reads are
// not serialized against transitions.
func (s *Selector) active() (Store, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == StateActiveRemote || s.state == StateRemoteRetryPending && s.desc.Backend == BackendRemote {
		return s.remote, true
	}
	return s.local, false
}

// degrade switches routing to the local index after a connection-class
// failure. Idempotent: concurrent failures race to a single transition.
func (s *Selector) degrade(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateActiveLocal {
		return
	}
	DegradationsTotal.Inc()
	s.logger.Warn("remote store unavailable, degrading", zap.Error(cause))
	s.transitionLocked(StateActiveLocal, "connection failure")
}

// RetryRemote re-probes the remote index and restores remote routing on
// success. Data written to the local index in the meantime is not migrated.
// Invoked by an external scheduler or operator, never automatically.
func (s *Selector) RetryRemote(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateActiveRemote {
		s.mu.Unlock()
		return nil
	}
	if !s.cfg.UseRemote || s.remote == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: remote backend disabled", ErrInvalidConfig)
	}
	if s.state == StateRemoteRetryPending {
		s.mu.Unlock()
		return fmt.Errorf("%w: remote re-probe already in flight", ErrInvalidInput)
	}
	s.transitionLocked(StateRemoteRetryPending, "re-probe requested")
	s.mu.Unlock()

	// Probe outside the lock so concurrent reads and local operations
	// proceed while the network call runs.
	err := s.probe(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.transitionLocked(StateActiveLocal, "re-probe failed")
		return err
	}
	RestoresTotal.Inc()
	s.transitionLocked(StateActiveRemote, "re-probe succeeded")
	return nil
}

// shouldFallback reports whether a failed remote operation should be retried
// once against the local index.
func (s *Selector) shouldFallback(wasRemote bool, err error) bool {
	return wasRemote && err != nil && IsConnectionError(err)
}

// CreateCollection routes to the active backend.
func (s *Selector) CreateCollection(ctx context.Context, name string, dimension int) error {
	store, wasRemote := s.active()
	err := store.CreateCollection(ctx, name, dimension)
	if s.shouldFallback(wasRemote, err) {
		s.degrade(err)
		return s.local.CreateCollection(ctx, name, dimension)
	}
	return err
}

// Insert routes to the active backend, falling back to the local index
// exactly once on a connection failure. The write lands on exactly one
// backend: the remote error class guarantees the remote never applied it.
func (s *Selector) Insert(ctx context.Context, records []Record) error {
	store, wasRemote := s.active()
	err := store.Insert(ctx, records)
	observeOperation("insert", store.Backend(), err)
	if s.shouldFallback(wasRemote, err) {
		s.degrade(err)
		err = s.local.Insert(ctx, records)
		observeOperation("insert", BackendLocal, err)
	}
	return err
}

// Search routes to the active backend with the same single-fallback policy.
func (s *Selector) Search(ctx context.Context, vector []float32, topK int, filters map[string]string) ([]SearchResult, error) {
	store, wasRemote := s.active()
	results, err := store.Search(ctx, vector, topK, filters)
	observeOperation("search", store.Backend(), err)
	if s.shouldFallback(wasRemote, err) {
		s.degrade(err)
		results, err = s.local.Search(ctx, vector, topK, filters)
		observeOperation("search", BackendLocal, err)
	}
	return results, err
}

// DeleteByIDs routes to the active backend with the same single-fallback policy.
func (s *Selector) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	store, wasRemote := s.active()
	deleted, err := store.DeleteByIDs(ctx, ids)
	observeOperation("delete", store.Backend(), err)
	if s.shouldFallback(wasRemote, err) {
		s.degrade(err)
		deleted, err = s.local.DeleteByIDs(ctx, ids)
		observeOperation("delete", BackendLocal, err)
	}
	return deleted, err
}

// IDsForDocument routes to the active backend with the same single-fallback policy.
func (s *Selector) IDsForDocument(ctx context.Context, documentID string) ([]string, error) {
	store, wasRemote := s.active()
	ids, err := store.IDsForDocument(ctx, documentID)
	if s.shouldFallback(wasRemote, err) {
		s.degrade(err)
		return s.local.IDsForDocument(ctx, documentID)
	}
	return ids, err
}

// Count routes to the active backend with the same single-fallback policy.
func (s *Selector) Count(ctx context.Context) (int, error) {
	store, wasRemote := s.active()
	count, err := store.Count(ctx)
	if s.shouldFallback(wasRemote, err) {
		s.degrade(err)
		return s.local.Count(ctx)
	}
	return count, err
}

// Close closes both backends.
func (s *Selector) Close() error {
	var firstErr error
	if s.remote != nil {
		if err := s.remote.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.local.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Ensure Selector implements Store.
var _ Store = (*Selector)(nil)
