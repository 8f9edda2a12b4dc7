package config

import "time"

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Memory: MemoryConfig{
			MaxItems:      1000,
			MaxSizeBytes:  50 * 1024 * 1024,
			SweepInterval: 60 * time.Second,
			LevelTTLs: LevelTTLConfig{
				Static:   24 * time.Hour,
				Stable:   2 * time.Hour,
				Volatile: 30 * time.Minute,
				Short:    5 * time.Minute,
			},
		},
		Persist: PersistConfig{
			Backend:          "none",
			MaxPendingWrites: 500,
			WriteTimeout:     2 * time.Second,
			Redis: RedisConfig{
				Address:             "localhost:6379",
				Password:            SecretString{},
				DB:                  0,
				KeyPrefix:           "callgate:",
				PoolSize:            20,
				MinIdleConns:        2,
				DialTimeout:         5 * time.Second,
				ReadTimeout:         3 * time.Second,
				WriteTimeout:        3 * time.Second,
				PoolTimeout:         4 * time.Second,
				EnableTLS:           false,
				TLSSkipVerify:       false,
				HealthCheckInterval: 5 * time.Second,
			},
			SQLite: SQLiteConfig{
				Path:  "callgate-cache.db",
				Table: "cache_entries",
			},
		},
		Scheduler: SchedulerConfig{
			MaxConcurrent:      3,
			MaxQueue:           0,
			DefaultTimeout:     10 * time.Second,
			DefaultRetryBudget: 2,
			BackoffBase:        time.Second,
			ResponseCacheSize:  100,
			ResponseCacheTTL:   30 * time.Second,
			DefaultBatchSize:   5,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:             true,
			FailureThreshold:    5,
			SuccessThreshold:    2,
			OpenDuration:        30 * time.Second,
			HalfOpenMaxRequests: 3,
		},
		HotLookup: HotLookupConfig{
			Enabled:          true,
			Endpoint:         "reference",
			Action:           "getSettings",
			TTL:              10 * time.Minute,
			MaxSizeMB:        8,
			Shards:           16,
			IdentityEndpoint: "session",
			IdentityAction:   "whoami",
		},
		Warmup: WarmupConfig{
			OnStart:  false,
			Schedule: "",
		},
		Transport: TransportConfig{
			BaseURL:         "http://localhost:8080/rpc",
			Timeout:         15 * time.Second,
			MaxConnsPerHost: 16,
			UserAgent:       "callgate",
		},
		Metrics: MetricsConfig{
			Enabled:         true,
			PublishInterval: 10 * time.Second,
			DataDog: DataDogConfig{
				Enabled:   false,
				AgentHost: "127.0.0.1",
				Port:      8125,
				Prefix:    "callgate",
				Tags:      []string{},
			},
			Prometheus: PrometheusConfig{
				Enabled:   false,
				Namespace: "callgate",
			},
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "json",
			Backend: "slog",
		},
		KeyValidation: KeyValidationConfig{
			Enabled:           true,
			MaxKeyLength:      512,
			AllowEmpty:        false,
			AllowControlChars: false,
			AllowWhitespace:   false,
		},
	}
}

// ForTesting returns a minimal configuration suitable for unit tests.
func ForTesting() *Config {
	cfg := DefaultConfig()
	cfg.Memory.MaxItems = 100
	cfg.Memory.MaxSizeBytes = 1024 * 1024
	cfg.Memory.SweepInterval = 0
	cfg.Persist.Backend = "none"
	cfg.Persist.MaxPendingWrites = 50
	cfg.Persist.Redis.KeyPrefix = "test:"
	cfg.Persist.Redis.DialTimeout = time.Second
	cfg.Persist.Redis.HealthCheckInterval = 0
	cfg.Scheduler.DefaultTimeout = time.Second
	cfg.Scheduler.DefaultRetryBudget = 0
	cfg.Scheduler.BackoffBase = 10 * time.Millisecond
	cfg.CircuitBreaker.Enabled = false
	cfg.HotLookup.MaxSizeMB = 1
	cfg.HotLookup.Shards = 4
	cfg.Metrics.Enabled = false
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "text"
	return cfg
}

// ForTestingWithRedis returns a test config with the Redis persisted tier enabled.
func ForTestingWithRedis(addr string) *Config {
	cfg := ForTesting()
	cfg.Persist.Backend = "redis"
	cfg.Persist.Redis.Address = addr
	return cfg
}
