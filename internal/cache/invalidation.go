package cache

import (
	"context"
	"errors"
	"log/slog"
)

// Clearer removes cached entries whose key contains pattern.
type Clearer interface {
	ClearCache(ctx context.Context, pattern string) error
}

// Invalidator clears related cache subsets after state-changing operations.
// Topics are endpoint names, so clearing "batch" drops every batch:* entry.
type Invalidator struct {
	target Clearer
	logger *slog.Logger
}

func NewInvalidator(target Clearer, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{
		target: target,
		logger: logger.With("component", "invalidator"),
	}
}

// RecordCreated clears listings and lookups under topic after an entity is created.
func (i *Invalidator) RecordCreated(ctx context.Context, topic string) error {
	return i.clearTopic(ctx, "created", topic)
}

// RecordUpdated clears cached reads under topic after an entity is updated.
func (i *Invalidator) RecordUpdated(ctx context.Context, topic string) error {
	return i.clearTopic(ctx, "updated", topic)
}

// RecordDeleted clears cached reads under topic after an entity is deleted.
func (i *Invalidator) RecordDeleted(ctx context.Context, topic string) error {
	return i.clearTopic(ctx, "deleted", topic)
}

// BatchChanged clears every entry scoped to batchID across all endpoints,
// plus the batch listings.
func (i *Invalidator) BatchChanged(ctx context.Context, batchID string) error {
	if batchID == "" {
		return nil
	}
	i.logger.Debug("Invalidating batch scope", "batch_id", batchID)
	return errors.Join(
		i.target.ClearCache(ctx, BatchScope(batchID)),
		i.target.ClearCache(ctx, "batch:list"),
	)
}

// SessionChanged clears every user-scoped entry, e.g. after login or logout.
func (i *Invalidator) SessionChanged(ctx context.Context) error {
	i.logger.Debug("Invalidating user-scoped entries")
	return i.target.ClearCache(ctx, UserScope())
}

func (i *Invalidator) clearTopic(ctx context.Context, event, topic string) error {
	if topic == "" {
		return nil
	}
	i.logger.Debug("Invalidating topic", "event", event, "topic", topic)
	return i.target.ClearCache(ctx, topic+":")
}
