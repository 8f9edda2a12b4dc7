package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/types"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStore is an embedded persisted tier for single-process deployments.
// Like RedisStore it applies writes from a bounded queue, and removals
// discard matching writes that are still queued.
type SQLiteStore struct {
	db           *sql.DB
	table        string
	logger       *slog.Logger
	now          func() time.Time
	writeTimeout time.Duration

	available atomic.Bool

	queue     *writeQueue
	closeOnce sync.Once
}

// NewSQLiteStore opens (or creates) the database at cfg.SQLite.Path.
func NewSQLiteStore(cfg config.PersistConfig, now func() time.Time, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if !tableNamePattern.MatchString(cfg.SQLite.Table) {
		return nil, fmt.Errorf("sqlite store: invalid table name %q", cfg.SQLite.Table)
	}

	db, err := sql.Open("sqlite3", cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open %s: %w", cfg.SQLite.Path, err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expire_at INTEGER NOT NULL
	)`, cfg.SQLite.Table)
	if _, err := db.Exec(query); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Warn("Failed to close sqlite database", "error", closeErr)
		}
		return nil, fmt.Errorf("sqlite store: create table: %w", err)
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}

	s := &SQLiteStore{
		db:           db,
		table:        cfg.SQLite.Table,
		logger:       logger.With("component", "sqlite-store"),
		now:          now,
		writeTimeout: writeTimeout,
	}
	s.queue = newWriteQueue(cfg.MaxPendingWrites, s.executeWrite, s.logger)
	s.available.Store(true)

	s.logger.Info("SQLite store opened", "path", cfg.SQLite.Path, "table", cfg.SQLite.Table)
	return s, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) IsAvailable() bool { return s.available.Load() }

func (s *SQLiteStore) Get(ctx context.Context, key string) (*types.Envelope, error) {
	if !s.available.Load() {
		return nil, types.ErrStoreUnavailable
	}

	var value []byte
	var expireAt int64
	query := fmt.Sprintf(`SELECT value, expire_at FROM %s WHERE key = ?`, s.table)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value, &expireAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrCacheMiss
		}
		return nil, types.NewCacheError("Get", key, "sqlite", err)
	}

	return &types.Envelope{Value: value, ExpireAt: time.Unix(0, expireAt)}, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, env types.Envelope) error {
	if !s.available.Load() {
		return types.ErrStoreUnavailable
	}
	if !s.now().Before(env.ExpireAt) {
		return nil
	}

	return s.queue.enqueue(key, env.Value, env.ExpireAt)
}

func (s *SQLiteStore) executeWrite(op pendingWrite) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (key, value, expire_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expire_at = excluded.expire_at`, s.table)
	if _, err := s.db.ExecContext(ctx, query, op.key, op.value, op.expireAt.UnixNano()); err != nil {
		s.logger.Debug("Async write failed", "key", op.key, "error", err)
	}
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	if !s.available.Load() {
		return types.ErrStoreUnavailable
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, s.table)
	return s.queue.remove(removal{key: key}, func() error {
		if _, err := s.db.ExecContext(ctx, query, key); err != nil {
			return types.NewCacheError("Remove", key, "sqlite", err)
		}
		return nil
	})
}

// RemoveMatching deletes every key containing substr.
func (s *SQLiteStore) RemoveMatching(ctx context.Context, substr string) error {
	if !s.available.Load() {
		return types.ErrStoreUnavailable
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE instr(key, ?) > 0`, s.table)
	return s.queue.remove(removal{substr: substr}, func() error {
		res, err := s.db.ExecContext(ctx, query, substr)
		if err != nil {
			return types.NewCacheError("RemoveMatching", substr, "sqlite", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			s.logger.Debug("Removed keys by substring", "substr", substr, "deleted", n)
		}
		return nil
	})
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if !s.available.Load() {
		return types.ErrStoreUnavailable
	}
	query := fmt.Sprintf(`DELETE FROM %s`, s.table)
	return s.queue.remove(removal{all: true}, func() error {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return types.NewCacheError("Clear", "", "sqlite", err)
		}
		return nil
	})
}

// PurgeExpired deletes rows expired at now and returns how many were removed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expire_at <= ?`, s.table)
	res, err := s.db.ExecContext(ctx, query, now.UnixNano())
	if err != nil {
		return 0, types.NewCacheError("PurgeExpired", "", "sqlite", err)
	}
	return res.RowsAffected()
}

// Flush blocks until the write queue is empty or ctx is done.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	return s.queue.flush(ctx)
}

func (s *SQLiteStore) PendingWrites() int { return int(s.queue.pending.Load()) }

func (s *SQLiteStore) DroppedWrites() int64 { return s.queue.dropped.Load() }

// Close drains queued writes and closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.available.Store(false)
		s.queue.stop()
		err = s.db.Close()
	})
	return err
}

var (
	_ types.Store           = (*SQLiteStore)(nil)
	_ types.WriteQueueStats = (*SQLiteStore)(nil)
)
