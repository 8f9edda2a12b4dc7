package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/types"
)

const (
	disconnectErrorThreshold = 5
	scanBatchSize            = 100
)

// RedisStore is a persisted tier backed by Redis. Writes are queued and
// applied by a worker goroutine, so a Get right after a Set may miss.
// Removals discard matching writes still in the queue.
type RedisStore struct {
	client       *redis.Client
	config       config.RedisConfig
	serializer   types.Serializer
	logger       *slog.Logger
	now          func() time.Time
	writeTimeout time.Duration

	mu            sync.RWMutex
	connected     atomic.Bool
	lastError     error
	lastErrorTime time.Time
	errorCount    atomic.Int64

	queue     *writeQueue
	closeOnce sync.Once

	healthCheckStopCh chan struct{}
	healthCheckWg     sync.WaitGroup
}

// NewRedisStore connects to Redis. A failed initial ping is logged and the
// store starts disconnected; the health check reconnects it later.
func NewRedisStore(cfg config.PersistConfig, serializer types.Serializer, now func() time.Time, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if serializer == nil {
		serializer = NewJSONSerializer()
	}
	if now == nil {
		now = time.Now
	}
	rcfg := cfg.Redis

	opts := &redis.Options{
		Addr:         rcfg.Address,
		Password:     rcfg.Password.Value(),
		DB:           rcfg.DB,
		PoolSize:     rcfg.PoolSize,
		MinIdleConns: rcfg.MinIdleConns,
		DialTimeout:  rcfg.DialTimeout,
		ReadTimeout:  rcfg.ReadTimeout,
		WriteTimeout: rcfg.WriteTimeout,
		PoolTimeout:  rcfg.PoolTimeout,
	}

	if rcfg.EnableTLS {
		opts.TLSConfig = &tls.Config{
			InsecureSkipVerify: rcfg.TLSSkipVerify, //nolint:gosec // opt-in via config
		}
		if rcfg.TLSSkipVerify {
			logger.Warn("TLS certificate verification is disabled - this is insecure for production use")
		}
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}

	s := &RedisStore{
		client:            redis.NewClient(opts),
		config:            rcfg,
		serializer:        serializer,
		logger:            logger.With("component", "redis-store"),
		now:               now,
		writeTimeout:      writeTimeout,
		healthCheckStopCh: make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), rcfg.DialTimeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn("Redis initial connection failed", "error", err)
		s.setError(err)
	} else {
		s.connected.Store(true)
		s.logger.Info("Redis connected", "address", rcfg.Address)
	}

	s.queue = newWriteQueue(cfg.MaxPendingWrites, s.executeWrite, s.logger)

	if rcfg.HealthCheckInterval > 0 {
		s.healthCheckWg.Add(1)
		go s.healthCheckWorker()
	}

	return s, nil
}

func (s *RedisStore) Name() string {
	return "redis"
}

func (s *RedisStore) IsAvailable() bool {
	return s.connected.Load()
}

func (s *RedisStore) prefixKey(key string) string {
	return s.config.KeyPrefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (*types.Envelope, error) {
	if !s.connected.Load() {
		return nil, types.ErrStoreUnavailable
	}

	data, err := s.client.Get(ctx, s.prefixKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, types.ErrCacheMiss
		}
		s.handleError(err)
		return nil, types.NewCacheError("Get", key, "redis", err)
	}
	s.clearError()

	env, err := decodeEnvelope(s.serializer, data)
	if err != nil {
		return nil, types.NewCacheError("Get", key, "redis", err)
	}
	return env, nil
}

// Set queues the envelope for writing with a Redis TTL matching its expiry.
func (s *RedisStore) Set(ctx context.Context, key string, env types.Envelope) error {
	if !s.connected.Load() {
		return types.ErrStoreUnavailable
	}

	if !s.now().Before(env.ExpireAt) {
		return nil
	}

	data, err := encodeEnvelope(s.serializer, env)
	if err != nil {
		return types.NewCacheError("Set", key, "redis", err)
	}
	return s.queue.enqueue(key, data, env.ExpireAt)
}

// executeWrite applies a queued write with a Redis TTL matching its expiry.
func (s *RedisStore) executeWrite(op pendingWrite) {
	ttl := op.expireAt.Sub(s.now())
	if ttl <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if err := s.client.Set(ctx, s.prefixKey(op.key), op.value, ttl).Err(); err != nil {
		s.handleError(err)
		s.logger.Debug("Async SET failed", "key", op.key, "error", err)
		return
	}
	s.clearError()
}

func (s *RedisStore) healthCheckWorker() {
	defer s.healthCheckWg.Done()

	ticker := time.NewTicker(s.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.healthCheckStopCh:
			return
		case <-ticker.C:
			s.performHealthCheck()
		}
	}
}

func (s *RedisStore) performHealthCheck() {
	wasConnected := s.connected.Load()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		if wasConnected {
			s.logger.Warn("Redis health check failed", "error", err)
			s.setError(err)
		}
		return
	}

	if !wasConnected {
		s.connected.Store(true)
		s.errorCount.Store(0)
		s.logger.Info("Redis connection restored via health check")
	}
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if !s.connected.Load() {
		return types.ErrStoreUnavailable
	}

	return s.queue.remove(removal{key: key}, func() error {
		if err := s.client.Del(ctx, s.prefixKey(key)).Err(); err != nil {
			s.handleError(err)
			return types.NewCacheError("Remove", key, "redis", err)
		}
		s.clearError()
		return nil
	})
}

// RemoveMatching deletes every key whose unprefixed name contains substr.
func (s *RedisStore) RemoveMatching(ctx context.Context, substr string) error {
	if !s.connected.Load() {
		return types.ErrStoreUnavailable
	}
	return s.queue.remove(removal{substr: substr}, func() error {
		return s.deleteByPattern(ctx, s.prefixKey("*"+globEscape(substr)+"*"))
	})
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if !s.connected.Load() {
		return types.ErrStoreUnavailable
	}
	return s.queue.remove(removal{all: true}, func() error {
		return s.deleteByPattern(ctx, s.prefixKey("*"))
	})
}

func (s *RedisStore) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	var deleted int64

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			s.handleError(err)
			return types.NewCacheError("RemoveMatching", pattern, "redis", err)
		}

		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				s.handleError(err)
				return types.NewCacheError("RemoveMatching", pattern, "redis", err)
			}
			deleted += int64(len(keys))
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	s.logger.Debug("Removed keys by pattern", "pattern", pattern, "deleted", deleted)
	s.clearError()
	return nil
}

// Close drains queued writes and closes the client.
func (s *RedisStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.connected.Store(false)

		close(s.healthCheckStopCh)
		s.healthCheckWg.Wait()

		s.queue.stop()

		err = s.client.Close()
	})
	return err
}

func (s *RedisStore) PendingWrites() int {
	return int(s.queue.pending.Load())
}

func (s *RedisStore) DroppedWrites() int64 {
	return s.queue.dropped.Load()
}

// Flush blocks until the write queue is empty or ctx is done.
func (s *RedisStore) Flush(ctx context.Context) error {
	return s.queue.flush(ctx)
}

func (s *RedisStore) handleError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastError = err
	s.lastErrorTime = time.Now()
	count := s.errorCount.Add(1)

	if count >= disconnectErrorThreshold {
		if s.connected.CompareAndSwap(true, false) {
			s.logger.Warn("Redis marked as disconnected after errors",
				"error_count", count,
				"last_error", err,
			)
		}
	}
}

func (s *RedisStore) clearError() {
	if s.errorCount.Swap(0) > 0 {
		if s.connected.CompareAndSwap(false, true) {
			s.logger.Info("Redis connection restored")
		}
	}
}

func (s *RedisStore) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err
	s.lastErrorTime = time.Now()
	s.connected.Store(false)
}

func (s *RedisStore) LastError() (error, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError, s.lastErrorTime
}

// globEscape escapes Redis glob metacharacters so substr matches literally.
func globEscape(substr string) string {
	var b strings.Builder
	for _, r := range substr {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var (
	_ types.Store           = (*RedisStore)(nil)
	_ types.WriteQueueStats = (*RedisStore)(nil)
)
