package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. CALLGATE_SCHEDULER__MAX_CONCURRENT=5.
const EnvPrefix = "CALLGATE"

// Loader hydrates configuration with env > file > default precedence.
type Loader struct {
	envPrefix    string
	files        []string
	allowMissing bool
}

// NewLoader prepares a loader. An empty envPrefix skips environment overrides.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// AllowMissing makes absent config files fall back to defaults instead of failing.
func (l *Loader) AllowMissing() *Loader {
	l.allowMissing = true
	return l
}

// Load assembles the effective configuration and validates it.
func (l *Loader) Load() (*Config, error) {
	k := koanf.New(".")

	defaults, err := structToMap(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("config: encode defaults: %w", err)
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				if l.allowMissing {
					continue
				}
				return nil, fmt.Errorf("config: file %s not found", path)
			}
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := make(map[string]string, len(k.Keys()))
		for _, key := range k.Keys() {
			canonical[strings.ToLower(key)] = key
		}
		prefix := l.envPrefix + "_"
		transform := func(s string) string {
			// Double underscores separate path segments (PERSIST__REDIS__ADDRESS -> persist.redis.address).
			key := strings.TrimPrefix(s, prefix)
			key = strings.ReplaceAll(key, "__", ".")
			key = strings.ToLower(strings.ReplaceAll(key, "_", ""))
			if mapped, ok := canonical[key]; ok {
				return mapped
			}
			return key
		}
		if err := k.Load(env.Provider(prefix, ".", transform), nil); err != nil {
			return nil, fmt.Errorf("config: load env: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "json",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Metadata:         nil,
			Result:           cfg,
			TagName:          "json",
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if l.envPrefix != "" {
		applyDataDogEnv(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load loads configuration from a JSON, YAML or TOML file.
// If the file doesn't exist, returns default configuration.
func Load(path string) (*Config, error) {
	return NewLoader("", path).AllowMissing().Load()
}

// LoadWithEnv loads configuration from a file and applies CALLGATE_* and DD_* environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	return NewLoader(EnvPrefix, path).AllowMissing().Load()
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return kjson.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported file extension %q", filepath.Ext(path))
	}
}

// structToMap converts a Config into a map for the koanf confmap provider.
// Secret fields are restored from their raw values since their JSON form is redacted.
func structToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if persist, ok := out["persist"].(map[string]any); ok {
		if redis, ok := persist["redis"].(map[string]any); ok {
			redis["password"] = cfg.Persist.Redis.Password.Value()
		}
	}
	if transport, ok := out["transport"].(map[string]any); ok {
		transport["authToken"] = cfg.Transport.AuthToken.Value()
	}
	return out, nil
}

// applyDataDogEnv honors the standard DogStatsD agent variables.
func applyDataDogEnv(cfg *Config) {
	if v := os.Getenv("DD_AGENT_HOST"); v != "" {
		cfg.Metrics.DataDog.AgentHost = v
		cfg.Metrics.DataDog.Enabled = true
	}
	if v := os.Getenv("DD_DOGSTATSD_PORT"); v != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Metrics.DataDog.Port = port
		}
	}
	if v := os.Getenv("DD_SERVICE"); v != "" {
		cfg.Metrics.DataDog.Prefix = v
	}
	if v := os.Getenv("DD_ENV"); v != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "env:"+v)
	}
	if v := os.Getenv("DD_VERSION"); v != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "version:"+v)
	}
}

// Validate checks if the configuration is valid.
//
//nolint:gocyclo // Validation requires many conditional checks
func (c *Config) Validate() error {
	if c.Memory.MaxItems <= 0 {
		return fmt.Errorf("memory.maxItems must be positive")
	}
	if c.Memory.MaxSizeBytes <= 0 {
		return fmt.Errorf("memory.maxSizeBytes must be positive")
	}
	if c.Memory.SweepInterval < 0 {
		return fmt.Errorf("memory.sweepInterval must not be negative")
	}
	ttls := c.Memory.LevelTTLs
	if ttls.Static <= 0 || ttls.Stable <= 0 || ttls.Volatile <= 0 || ttls.Short <= 0 {
		return fmt.Errorf("memory.levelTTLs must all be positive")
	}

	switch c.Persist.Backend {
	case "", "none":
	case "redis":
		if c.Persist.Redis.Address == "" {
			return fmt.Errorf("persist.redis.address is required when backend is redis")
		}
		if c.Persist.Redis.PoolSize <= 0 {
			return fmt.Errorf("persist.redis.poolSize must be positive")
		}
	case "sqlite":
		if c.Persist.SQLite.Path == "" {
			return fmt.Errorf("persist.sqlite.path is required when backend is sqlite")
		}
		if c.Persist.SQLite.Table == "" {
			return fmt.Errorf("persist.sqlite.table is required when backend is sqlite")
		}
	default:
		return fmt.Errorf("persist.backend %q must be one of none, redis, sqlite", c.Persist.Backend)
	}
	if c.Persist.MaxPendingWrites < 0 {
		return fmt.Errorf("persist.maxPendingWrites must not be negative")
	}

	if c.Scheduler.MaxConcurrent <= 0 {
		return fmt.Errorf("scheduler.maxConcurrent must be positive")
	}
	if c.Scheduler.MaxQueue < 0 {
		return fmt.Errorf("scheduler.maxQueue must not be negative")
	}
	if c.Scheduler.DefaultTimeout <= 0 {
		return fmt.Errorf("scheduler.defaultTimeout must be positive")
	}
	if c.Scheduler.DefaultRetryBudget < 0 || c.Scheduler.DefaultRetryBudget > 10 {
		return fmt.Errorf("scheduler.defaultRetryBudget must be between 0 and 10")
	}
	if c.Scheduler.BackoffBase < 0 {
		return fmt.Errorf("scheduler.backoffBase must not be negative")
	}
	if c.Scheduler.ResponseCacheSize < 0 {
		return fmt.Errorf("scheduler.responseCacheSize must not be negative")
	}

	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureThreshold <= 0 {
			return fmt.Errorf("circuitBreaker.failureThreshold must be positive")
		}
		if c.CircuitBreaker.OpenDuration <= 0 {
			return fmt.Errorf("circuitBreaker.openDuration must be positive")
		}
	}

	if c.HotLookup.Enabled {
		if c.HotLookup.Endpoint == "" || c.HotLookup.Action == "" {
			return fmt.Errorf("hotLookup.endpoint and hotLookup.action are required when enabled")
		}
		if c.HotLookup.TTL <= 0 {
			return fmt.Errorf("hotLookup.ttl must be positive")
		}
		if c.HotLookup.Shards <= 0 || (c.HotLookup.Shards&(c.HotLookup.Shards-1)) != 0 {
			return fmt.Errorf("hotLookup.shards must be a positive power of 2")
		}
	}

	if c.Warmup.Schedule != "" {
		if _, err := cron.ParseStandard(c.Warmup.Schedule); err != nil {
			return fmt.Errorf("warmup.schedule: %w", err)
		}
	}

	for i, p := range c.Policies {
		if p.Endpoint == "" || p.Action == "" {
			return fmt.Errorf("policies[%d]: endpoint and action are required", i)
		}
		if p.Level < 1 || p.Level > 5 {
			return fmt.Errorf("policies[%d]: level %d must be between 1 and 5", i, p.Level)
		}
	}

	switch strings.ToLower(c.Logging.Backend) {
	case "", "slog", "zap":
	default:
		return fmt.Errorf("logging.backend %q must be slog or zap", c.Logging.Backend)
	}

	return nil
}
