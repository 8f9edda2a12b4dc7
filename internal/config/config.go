// Package config provides configuration management for callgate.
package config

import (
	"time"

	"github.com/LavishGent/callgate/internal/types"
)

// SecretString is a string type that redacts its value when marshaled to JSON.
type SecretString = types.SecretString

// NewSecretString creates a new SecretString with the provided value.
func NewSecretString(value string) SecretString {
	return types.NewSecretString(value)
}

// Config contains all configuration for the callgate gateway.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type Config struct {
	Memory         MemoryConfig         `json:"memory"`
	Persist        PersistConfig        `json:"persist"`
	Scheduler      SchedulerConfig      `json:"scheduler"`
	CircuitBreaker CircuitBreakerConfig `json:"circuitBreaker"`
	HotLookup      HotLookupConfig      `json:"hotLookup"`
	Warmup         WarmupConfig         `json:"warmup"`
	Policies       []PolicyConfig       `json:"policies"`
	Transport      TransportConfig      `json:"transport"`
	Metrics        MetricsConfig        `json:"metrics"`
	Logging        LoggingConfig        `json:"logging"`
	KeyValidation  KeyValidationConfig  `json:"keyValidation"`
}

// KeyValidationConfig contains configuration for cache key validation.
type KeyValidationConfig struct {
	ReservedPatterns  []string `json:"reservedPatterns"`
	MaxKeyLength      int      `json:"maxKeyLength"`
	Enabled           bool     `json:"enabled"`
	AllowEmpty        bool     `json:"allowEmpty"`
	AllowControlChars bool     `json:"allowControlChars"`
	AllowWhitespace   bool     `json:"allowWhitespace"`
}

// ToTypesConfig converts this config to a types.KeyValidationConfig.
func (c KeyValidationConfig) ToTypesConfig() types.KeyValidationConfig {
	return types.KeyValidationConfig{
		MaxKeyLength:      c.MaxKeyLength,
		AllowEmpty:        c.AllowEmpty,
		AllowControlChars: c.AllowControlChars,
		AllowWhitespace:   c.AllowWhitespace,
		ReservedPatterns:  c.ReservedPatterns,
	}
}

// MemoryConfig contains configuration for the in-memory tier.
type MemoryConfig struct {
	MaxItems      int            `json:"maxItems"`
	MaxSizeBytes  int64          `json:"maxSizeBytes"`
	SweepInterval time.Duration  `json:"sweepInterval"`
	LevelTTLs     LevelTTLConfig `json:"levelTTLs"`
}

// LevelTTLConfig maps cache levels 1-4 to their default lifetimes.
type LevelTTLConfig struct {
	Static   time.Duration `json:"static"`
	Stable   time.Duration `json:"stable"`
	Volatile time.Duration `json:"volatile"`
	Short    time.Duration `json:"short"`
}

// For returns the TTL of level, or zero for levels that are never stored.
func (c LevelTTLConfig) For(level types.CacheLevel) time.Duration {
	switch level {
	case types.LevelStatic:
		return c.Static
	case types.LevelStable:
		return c.Stable
	case types.LevelVolatile:
		return c.Volatile
	case types.LevelShort:
		return c.Short
	default:
		return 0
	}
}

// PersistConfig selects and configures the persisted tier.
type PersistConfig struct {
	Backend          string        `json:"backend"`
	Redis            RedisConfig   `json:"redis"`
	SQLite           SQLiteConfig  `json:"sqlite"`
	MaxPendingWrites int           `json:"maxPendingWrites"`
	WriteTimeout     time.Duration `json:"writeTimeout"`
}

// RedisConfig contains configuration for the Redis persisted store.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type RedisConfig struct {
	DialTimeout         time.Duration `json:"dialTimeout"`
	ReadTimeout         time.Duration `json:"readTimeout"`
	WriteTimeout        time.Duration `json:"writeTimeout"`
	PoolTimeout         time.Duration `json:"poolTimeout"`
	HealthCheckInterval time.Duration `json:"healthCheckInterval"`
	Password            SecretString  `json:"password"`
	Address             string        `json:"address"`
	KeyPrefix           string        `json:"keyPrefix"`
	DB                  int           `json:"db"`
	PoolSize            int           `json:"poolSize"`
	MinIdleConns        int           `json:"minIdleConns"`
	EnableTLS           bool          `json:"enableTLS"`
	TLSSkipVerify       bool          `json:"tlsSkipVerify"`
}

// SQLiteConfig configures the embedded SQLite persisted store.
type SQLiteConfig struct {
	Path  string `json:"path"`
	Table string `json:"table"`
}

// SchedulerConfig contains configuration for the request scheduler.
type SchedulerConfig struct {
	MaxConcurrent      int           `json:"maxConcurrent"`
	MaxQueue           int           `json:"maxQueue"`
	DefaultTimeout     time.Duration `json:"defaultTimeout"`
	DefaultRetryBudget int           `json:"defaultRetryBudget"`
	BackoffBase        time.Duration `json:"backoffBase"`
	ResponseCacheSize  int           `json:"responseCacheSize"`
	ResponseCacheTTL   time.Duration `json:"responseCacheTTL"`
	DefaultBatchSize   int           `json:"defaultBatchSize"`
}

// CircuitBreakerConfig contains configuration for the circuit breaker around transport calls.
type CircuitBreakerConfig struct {
	Enabled             bool          `json:"enabled"`
	FailureThreshold    int           `json:"failureThreshold"`
	SuccessThreshold    int           `json:"successThreshold"`
	OpenDuration        time.Duration `json:"openDuration"`
	HalfOpenMaxRequests int           `json:"halfOpenMaxRequests"`
}

// HotLookupConfig designates the high-frequency lookup served from its own cache.
type HotLookupConfig struct {
	Enabled          bool          `json:"enabled"`
	Endpoint         string        `json:"endpoint"`
	Action           string        `json:"action"`
	TTL              time.Duration `json:"ttl"`
	MaxSizeMB        int           `json:"maxSizeMB"`
	Shards           int           `json:"shards"`
	IdentityEndpoint string        `json:"identityEndpoint"`
	IdentityAction   string        `json:"identityAction"`
}

// WarmupConfig controls proactive cache population.
type WarmupConfig struct {
	OnStart  bool   `json:"onStart"`
	Schedule string `json:"schedule"`
}

// PolicyConfig is a deploy-time cache policy entry for one endpoint:action.
type PolicyConfig struct {
	Endpoint       string        `json:"endpoint"`
	Action         string        `json:"action"`
	Level          int           `json:"level"`
	KeyStrategy    string        `json:"keyStrategy"`
	CustomTTL      time.Duration `json:"customTTL"`
	Preload        bool          `json:"preload"`
	UpdateStrategy string        `json:"updateStrategy"`
}

// TransportConfig configures the HTTP RPC transport.
type TransportConfig struct {
	BaseURL         string        `json:"baseURL"`
	Timeout         time.Duration `json:"timeout"`
	MaxConnsPerHost int           `json:"maxConnsPerHost"`
	UserAgent       string        `json:"userAgent"`
	AuthToken       SecretString  `json:"authToken"`
}

// MetricsConfig contains configuration for metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type MetricsConfig struct {
	PublishInterval time.Duration    `json:"publishInterval"`
	DataDog         DataDogConfig    `json:"datadog"`
	Prometheus      PrometheusConfig `json:"prometheus"`
	Enabled         bool             `json:"enabled"`
}

// DataDogConfig contains configuration for DataDog metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type DataDogConfig struct {
	Tags      []string `json:"tags"`
	AgentHost string   `json:"agentHost"`
	Prefix    string   `json:"prefix"`
	Port      int      `json:"port"`
	Enabled   bool     `json:"enabled"`
}

// PrometheusConfig configures the Prometheus recorder.
type PrometheusConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// LoggingConfig selects the logging backend.
type LoggingConfig struct {
	Level   string `json:"level"`
	Format  string `json:"format"`
	Backend string `json:"backend"`
}
