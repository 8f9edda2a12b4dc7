package callgate

import (
	"github.com/LavishGent/callgate/internal/resilience"
	"github.com/LavishGent/callgate/internal/types"
)

type (
	// CacheError represents a cache operation error.
	CacheError = types.CacheError
	// CallError wraps the final failure of a backend call.
	CallError = types.CallError
	// RemoteError is a failure reported by the backend itself.
	RemoteError = types.RemoteError
)

var (
	// ErrClosed indicates that the manager has been closed.
	ErrClosed = types.ErrClosed
	// ErrCancelled indicates that a queued call was cancelled before it ran.
	ErrCancelled = types.ErrCancelled
	// ErrQueueFull indicates that the scheduler queue is at capacity.
	ErrQueueFull = types.ErrQueueFull
	// ErrTimeout indicates that a transport attempt timed out.
	ErrTimeout = types.ErrTimeout
	// ErrCircuitOpen indicates that the circuit breaker is open.
	ErrCircuitOpen = types.ErrCircuitOpen
	// ErrInvalidRequest indicates a malformed RequestSpec.
	ErrInvalidRequest = types.ErrInvalidRequest
	// ErrInvalidKey indicates that a cache key is invalid.
	ErrInvalidKey = types.ErrInvalidKey
	// ErrManagerUnavailable indicates that the wrapper could not build a manager.
	ErrManagerUnavailable = types.ErrManagerUnavailable
	// ErrNoResponse indicates a transport that returned neither a response nor an error.
	ErrNoResponse = types.ErrNoResponse
	// ErrMalformedResponse indicates a backend body that could not be decoded.
	ErrMalformedResponse = types.ErrMalformedResponse
	// ErrShutdownTimeout indicates that Close gave up waiting for in-flight work.
	ErrShutdownTimeout = types.ErrShutdownTimeout
)

// IsCancelled returns true if the error is a queue cancellation.
func IsCancelled(err error) bool {
	return types.IsCancelled(err)
}

// IsCircuitOpen returns true if the error indicates the circuit breaker is open.
func IsCircuitOpen(err error) bool {
	return types.IsCircuitOpen(err)
}

// IsTimeout returns true if a transport attempt timed out.
func IsTimeout(err error) bool {
	return types.IsTimeout(err)
}

// IsRetryable returns true if the error is a transient failure.
func IsRetryable(err error) bool {
	return resilience.IsRetryable(err)
}
