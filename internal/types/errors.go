package types

import (
	"errors"
	"fmt"
)

var (
	ErrCacheMiss          = errors.New("callgate: key not found")
	ErrClosed             = errors.New("callgate: closed")
	ErrCancelled          = errors.New("callgate: request cancelled before execution")
	ErrQueueFull          = errors.New("callgate: request queue full")
	ErrTimeout            = errors.New("callgate: transport call timed out")
	ErrCircuitOpen        = errors.New("callgate: circuit breaker open")
	ErrInvalidKey         = errors.New("callgate: invalid key")
	ErrInvalidRequest     = errors.New("callgate: invalid request")
	ErrWriteQueueFull     = errors.New("callgate: persist write queue full")
	ErrEntryTooLarge      = errors.New("callgate: entry exceeds memory tier capacity")
	ErrStoreUnavailable   = errors.New("callgate: persisted store unavailable")
	ErrManagerUnavailable = errors.New("callgate: manager unavailable")
	ErrRemoteFailure      = errors.New("callgate: backend reported failure")
	ErrNoResponse         = errors.New("callgate: transport returned no response")
	ErrMalformedResponse  = errors.New("callgate: malformed backend response")
	ErrShutdownTimeout    = errors.New("callgate: shutdown timeout waiting for background operations")
)

type CacheError struct {
	Op    string
	Key   string
	Layer string
	Err   error
}

func (e *CacheError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("cache %s on %s [%s]: %v", e.Op, e.Layer, e.Key, e.Err)
	}
	return fmt.Sprintf("cache %s on %s: %v", e.Op, e.Layer, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

func NewCacheError(op, key, layer string, err error) *CacheError {
	return &CacheError{
		Op:    op,
		Key:   key,
		Layer: layer,
		Err:   err,
	}
}

// CallError describes a failed attempt against the backend.
type CallError struct {
	Endpoint string
	Action   string
	Attempt  int
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call %s:%s attempt %d: %v", e.Endpoint, e.Action, e.Attempt, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func NewCallError(endpoint, action string, attempt int, err error) *CallError {
	return &CallError{
		Endpoint: endpoint,
		Action:   action,
		Attempt:  attempt,
		Err:      err,
	}
}

// RemoteError carries a failure reported by the backend in a well-formed response.
type RemoteError struct {
	Message   string
	Retryable bool
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return ErrRemoteFailure.Error()
	}
	return fmt.Sprintf("%s: %s", ErrRemoteFailure.Error(), e.Message)
}

func (e *RemoteError) Unwrap() error {
	return ErrRemoteFailure
}

func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
