package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavishGent/callgate/internal/types"
)

func TestLinearBackoffDelay(t *testing.T) {
	b := NewLinearBackoff(0)

	assert.Equal(t, time.Duration(0), b.Delay(0))
	assert.Equal(t, 1000*time.Millisecond, b.Delay(1))
	assert.Equal(t, 2000*time.Millisecond, b.Delay(2))
	assert.Equal(t, 3000*time.Millisecond, b.Delay(3))

	assert.Equal(t, 20*time.Millisecond, NewLinearBackoff(10*time.Millisecond).Delay(2))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	retries, err := Retry(context.Background(), 2, NewLinearBackoff(time.Millisecond), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return types.ErrTimeout
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, retries)
}

func TestRetryStopsWhenBudgetSpent(t *testing.T) {
	attempts := 0
	retries, err := Retry(context.Background(), 2, NewLinearBackoff(time.Millisecond), func(ctx context.Context) error {
		attempts++
		return types.ErrTimeout
	})

	assert.ErrorIs(t, err, types.ErrTimeout)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, retries)
}

func TestRetryDoesNotRetryPermanentFailures(t *testing.T) {
	attempts := 0
	remote := &types.RemoteError{Message: "invalid batch"}
	retries, err := Retry(context.Background(), 5, NewLinearBackoff(time.Millisecond), func(ctx context.Context) error {
		attempts++
		return remote
	})

	assert.True(t, errors.Is(err, types.ErrRemoteFailure))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 0, retries)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	_, err := Retry(ctx, 3, NewLinearBackoff(time.Hour), func(ctx context.Context) error {
		attempts++
		cancel()
		return types.ErrTimeout
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
