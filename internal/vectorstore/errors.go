package vectorstore

import "errors"

// Sentinel errors for vector store operations.
//
// Classification matters for routing: ErrConnectionFailed is the only class
// that triggers degradation inside the Selector; every other class propagates
// to the caller unchanged and is never retried.
var (
	// ErrInvalidConfig indicates a fatal configuration problem such as a
	// dimension mismatch or invalid chunk parameters.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the remote store is unreachable
	// (refused connection, timeout, auth failure at transport level).
	ErrConnectionFailed = errors.New("failed to connect to remote store")

	// ErrCorrupted indicates the local index artifacts are inconsistent.
	// Recovery requires rebuilding the index from source documents.
	ErrCorrupted = errors.New("local index corrupted")

	// ErrInvalidInput indicates bad caller input (non-positive top-k,
	// empty query).
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// IsConnectionError reports whether err belongs to the connection-failure
// class that is eligible for triggering degradation.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}
