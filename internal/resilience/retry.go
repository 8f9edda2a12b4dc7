package resilience

import (
	"context"
	"time"
)

// LinearBackoff waits Base * retryCount before the retryCount-th retry.
type LinearBackoff struct {
	Base time.Duration
}

// DefaultBackoffBase is the per-retry delay step.
const DefaultBackoffBase = time.Second

func NewLinearBackoff(base time.Duration) LinearBackoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	return LinearBackoff{Base: base}
}

// Delay returns the wait before retry number retryCount (1-based).
func (b LinearBackoff) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		return 0
	}
	return b.Base * time.Duration(retryCount)
}

// Retry runs fn until it succeeds, fails permanently, or budget retries are
// spent. It returns the number of retries performed and the last error.
// Callers outside the scheduler use it for direct transport calls.
func Retry(ctx context.Context, budget int, backoff LinearBackoff, fn func(ctx context.Context) error) (int, error) {
	retries := 0
	for {
		err := fn(ctx)
		if err == nil {
			return retries, nil
		}
		if !IsRetryable(err) || retries >= budget {
			return retries, err
		}

		retries++
		timer := time.NewTimer(backoff.Delay(retries))
		select {
		case <-ctx.Done():
			timer.Stop()
			return retries, ctx.Err()
		case <-timer.C:
		}
	}
}
