package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClearer struct {
	patterns []string
	err      error
}

func (r *recordingClearer) ClearCache(ctx context.Context, pattern string) error {
	r.patterns = append(r.patterns, pattern)
	return r.err
}

func TestInvalidatorTopics(t *testing.T) {
	ctx := context.Background()
	target := &recordingClearer{}
	inv := NewInvalidator(target, nil)

	require.NoError(t, inv.RecordCreated(ctx, "batch"))
	require.NoError(t, inv.RecordUpdated(ctx, "production"))
	require.NoError(t, inv.RecordDeleted(ctx, "finance"))
	require.NoError(t, inv.RecordUpdated(ctx, ""))

	assert.Equal(t, []string{"batch:", "production:", "finance:"}, target.patterns)
}

func TestInvalidatorBatchChanged(t *testing.T) {
	ctx := context.Background()
	target := &recordingClearer{}
	inv := NewInvalidator(target, nil)

	require.NoError(t, inv.BatchChanged(ctx, "12"))
	require.NoError(t, inv.BatchChanged(ctx, ""))

	assert.Equal(t, []string{":b:12:", "batch:list"}, target.patterns)
}

func TestInvalidatorSessionChanged(t *testing.T) {
	target := &recordingClearer{}
	inv := NewInvalidator(target, nil)

	require.NoError(t, inv.SessionChanged(context.Background()))
	assert.Equal(t, []string{":u:"}, target.patterns)
}

func TestInvalidatorPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	inv := NewInvalidator(&recordingClearer{err: boom}, nil)

	assert.ErrorIs(t, inv.RecordUpdated(context.Background(), "batch"), boom)
	assert.ErrorIs(t, inv.BatchChanged(context.Background(), "1"), boom)
}

func TestInvalidatorClearsTieredCache(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newFakeClock(), newMapStore())
	for _, key := range []string{"batch:getDetails:b:1:", "batch:getDetails:b:12:", "batch:list:u:7", "health:getRecords:b:1:"} {
		require.NoError(t, c.Set(ctx, key, []byte("v"), level(3)))
	}

	inv := NewInvalidator(clearerFunc(c.Clear), nil)
	require.NoError(t, inv.BatchChanged(ctx, "1"))

	assert.ElementsMatch(t, []string{"batch:getDetails:b:12:"}, c.Memory().Keys())
}

type clearerFunc func(ctx context.Context, pattern string) error

func (f clearerFunc) ClearCache(ctx context.Context, pattern string) error {
	return f(ctx, pattern)
}
