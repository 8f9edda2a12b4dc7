package cache

import (
	"log/slog"
	"time"

	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/types"
)

// NewStore builds the persisted tier selected by cfg.Backend. A store that
// cannot be built degrades to DisabledStore so the memory tier keeps working.
func NewStore(cfg config.PersistConfig, serializer types.Serializer, now func() time.Time, logger *slog.Logger) types.Store {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case "redis":
		store, err := NewRedisStore(cfg, serializer, now, logger)
		if err != nil {
			logger.Warn("Failed to create Redis store, using memory-only mode", "error", err)
			return NewDisabledStore()
		}
		return store
	case "sqlite":
		store, err := NewSQLiteStore(cfg, now, logger)
		if err != nil {
			logger.Warn("Failed to create SQLite store, using memory-only mode", "error", err)
			return NewDisabledStore()
		}
		return store
	default:
		return NewDisabledStore()
	}
}
