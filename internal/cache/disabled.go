package cache

import (
	"context"

	"github.com/LavishGent/callgate/internal/types"
)

// DisabledStore is the persisted tier used when persistence is turned off.
type DisabledStore struct{}

// NewDisabledStore creates a new disabled store.
func NewDisabledStore() *DisabledStore {
	return &DisabledStore{}
}

// Name returns the store name.
func (s *DisabledStore) Name() string { return "persist-disabled" }

// IsAvailable returns false as this store is disabled.
func (s *DisabledStore) IsAvailable() bool { return false }

// Close does nothing as this store is disabled.
func (s *DisabledStore) Close() error { return nil }

// PendingWrites returns 0 as this store is disabled.
func (s *DisabledStore) PendingWrites() int { return 0 }

// DroppedWrites returns 0 as this store is disabled.
func (s *DisabledStore) DroppedWrites() int64 { return 0 }

// Get returns ErrStoreUnavailable as this store is disabled.
func (s *DisabledStore) Get(ctx context.Context, key string) (*types.Envelope, error) {
	return nil, types.ErrStoreUnavailable
}

// Set does nothing as this store is disabled.
func (s *DisabledStore) Set(ctx context.Context, key string, env types.Envelope) error {
	return nil
}

// Remove does nothing as this store is disabled.
func (s *DisabledStore) Remove(ctx context.Context, key string) error { return nil }

// RemoveMatching does nothing as this store is disabled.
func (s *DisabledStore) RemoveMatching(ctx context.Context, substr string) error { return nil }

// Clear does nothing as this store is disabled.
func (s *DisabledStore) Clear(ctx context.Context) error { return nil }

var (
	_ types.Store           = (*DisabledStore)(nil)
	_ types.WriteQueueStats = (*DisabledStore)(nil)
)
