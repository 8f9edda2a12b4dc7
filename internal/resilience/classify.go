package resilience

import (
	"context"
	"errors"

	"github.com/LavishGent/callgate/internal/types"
)

// Class tells the scheduler whether a failed attempt may be retried.
type Class int

const (
	// Permanent failures resolve immediately.
	Permanent Class = iota
	// Transient failures consume retry budget and count against the circuit breaker.
	Transient
)

func (c Class) String() string {
	if c == Transient {
		return "transient"
	}
	return "permanent"
}

// Classify sorts a failed attempt. A RemoteError is permanent unless the
// backend flagged it retryable; unrecognised transport errors are transient.
func Classify(err error) Class {
	if err == nil {
		return Permanent
	}

	switch {
	case errors.Is(err, types.ErrCircuitOpen),
		errors.Is(err, types.ErrCancelled),
		errors.Is(err, types.ErrClosed),
		errors.Is(err, types.ErrInvalidRequest),
		errors.Is(err, types.ErrQueueFull),
		errors.Is(err, types.ErrMalformedResponse),
		errors.Is(err, context.Canceled):
		return Permanent
	}

	var remote *types.RemoteError
	if errors.As(err, &remote) {
		if remote.Retryable {
			return Transient
		}
		return Permanent
	}

	// Timeouts, network errors and anything else the transport raised may
	// not have reached the backend.
	return Transient
}

// IsRetryable reports whether err is a transient failure.
func IsRetryable(err error) bool {
	return err != nil && Classify(err) == Transient
}

// IsCircuitOpen returns true if the error is a circuit open error.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, types.ErrCircuitOpen)
}
