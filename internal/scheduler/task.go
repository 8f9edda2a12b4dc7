package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/LavishGent/callgate/internal/types"
)

type taskState int

const (
	stateCreated taskState = iota
	stateQueued
	stateRunning
	stateRetryPending
	stateDone
)

func (s taskState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateQueued:
		return "queued"
	case stateRunning:
		return "running"
	case stateRetryPending:
		return "retry-pending"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// task is a queued backend call. state, retryCount and stopRetry are guarded
// by Scheduler.mu; done receives exactly one Result.
type task struct {
	id       string
	ctx      context.Context
	spec     types.RequestSpec
	key      string
	policy   types.CachePolicy
	priority types.Priority
	budget   int
	timeout  time.Duration

	state      taskState
	retryCount int
	stopRetry  func() bool

	done chan types.Result
	once sync.Once
}

// resolve fulfils the completion handle. Later calls are ignored.
func (t *task) resolve(r types.Result) bool {
	resolved := false
	t.once.Do(func() {
		t.done <- r
		resolved = true
	})
	return resolved
}

// panicError carries a value recovered from a transport panic.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("transport panic: %v", e.value)
}
