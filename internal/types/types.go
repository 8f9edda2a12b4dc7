// Package types provides shared types for the callgate mediation layer.
// This package breaks import cycles between pkg/callgate and the internal packages.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CacheLevel is the TTL class of a cache policy. Lower levels live longer and
// levels 1-3 are mirrored to the persisted tier.
type CacheLevel int

const (
	LevelStatic CacheLevel = iota + 1
	LevelStable
	LevelVolatile
	LevelShort
	LevelNoCache
)

func (l CacheLevel) String() string {
	switch l {
	case LevelStatic:
		return "static"
	case LevelStable:
		return "stable"
	case LevelVolatile:
		return "volatile"
	case LevelShort:
		return "short"
	case LevelNoCache:
		return "no-cache"
	default:
		return "unknown"
	}
}

func (l CacheLevel) Valid() bool {
	return l >= LevelStatic && l <= LevelNoCache
}

// Cacheable reports whether entries of this level are stored at all.
func (l CacheLevel) Cacheable() bool {
	return l >= LevelStatic && l < LevelNoCache
}

// Persisted reports whether entries of this level are mirrored to the persisted tier.
func (l CacheLevel) Persisted() bool {
	return l >= LevelStatic && l <= LevelVolatile
}

// KeyStrategy selects the suffix appended to endpoint:action when deriving a cache key.
type KeyStrategy int

const (
	KeyDefault KeyStrategy = iota
	KeyUser
	KeyBatch
	KeyDate
	KeyBatchDay
)

func (s KeyStrategy) String() string {
	switch s {
	case KeyDefault:
		return "default"
	case KeyUser:
		return "user"
	case KeyBatch:
		return "batch"
	case KeyDate:
		return "date"
	case KeyBatchDay:
		return "batch-day"
	default:
		return "unknown"
	}
}

func ParseKeyStrategy(s string) (KeyStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return KeyDefault, nil
	case "user":
		return KeyUser, nil
	case "batch":
		return KeyBatch, nil
	case "date":
		return KeyDate, nil
	case "batch-day", "batch+day", "batchday":
		return KeyBatchDay, nil
	default:
		return KeyDefault, fmt.Errorf("unknown key strategy %q", s)
	}
}

// UpdateStrategy controls what a successful call does to existing cache entries.
type UpdateStrategy string

const (
	UpdateNone       UpdateStrategy = ""
	UpdateInvalidate UpdateStrategy = "invalidate"
)

// CachePolicy is immutable once looked up from the policy table.
type CachePolicy struct {
	Level          CacheLevel
	CustomTTL      time.Duration
	KeyStrategy    KeyStrategy
	Preload        bool
	UpdateStrategy UpdateStrategy
}

// CacheEntry is owned by the memory tier.
type CacheEntry struct {
	Key          string
	Value        []byte
	CreatedAt    time.Time
	ExpireAt     time.Time
	LastAccessAt time.Time
	AccessCount  int64
	Size         int64
}

// ExpiredAt reports whether the entry is no longer valid at now.
func (e *CacheEntry) ExpiredAt(now time.Time) bool {
	return !now.Before(e.ExpireAt)
}

// Envelope is the shape written to the persisted tier.
type Envelope struct {
	Value    []byte    `json:"value"`
	ExpireAt time.Time `json:"expireAt"`
}

func (e *Envelope) ExpiredAt(now time.Time) bool {
	return !now.Before(e.ExpireAt)
}

// CacheStats are process-wide counters for the tiered cache.
type CacheStats struct {
	TotalItems    int
	TotalSize     int64
	HitCount      int64
	MissCount     int64
	HitRate       float64
	AvgAccessTime time.Duration
	Evictions     int64
}

// Priority orders admission in the scheduler queue. Higher runs first.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 10
)

// NoRetries disables retries for a request; a zero RetryBudget uses the scheduler default.
const NoRetries = -1

// RequestSpec describes one backend call.
type RequestSpec struct {
	Endpoint    string         `json:"endpoint" validate:"required"`
	Action      string         `json:"action" validate:"required"`
	Payload     map[string]any `json:"payload,omitempty"`
	Priority    Priority       `json:"priority" validate:"gte=0"`
	RetryBudget int            `json:"retryBudget" validate:"gte=-1,lte=10"`
	Timeout     time.Duration  `json:"timeout" validate:"gte=0"`
}

// PolicyKey is the endpoint:action pair used for policy lookup and key prefixes.
func (s RequestSpec) PolicyKey() string {
	return s.Endpoint + ":" + s.Action
}

// Response is what the transport returns for a delivered call.
type Response struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Retryable bool            `json:"retryable,omitempty"`
}

// Source names the path that produced a Result.
type Source string

const (
	SourceHotCache      Source = "hot-cache"
	SourceResponseCache Source = "response-cache"
	SourceCache         Source = "cache"
	SourceTransport     Source = "transport"
	SourceFallback      Source = "fallback"
)

// Result is the resolution of a request.
type Result struct {
	Success    bool
	Data       json.RawMessage
	Err        error
	RetryCount int
	Source     Source
}

// Decode unmarshals the result data into dest.
func (r *Result) Decode(dest any) error {
	if !r.Success {
		return r.Err
	}
	return json.Unmarshal(r.Data, dest)
}

// BatchOptions controls chunked batch execution.
type BatchOptions struct {
	ContinueOnError bool
	MaxBatchSize    int
}

// SchedulerStats is a point-in-time view of the scheduler.
type SchedulerStats struct {
	Queued            int
	Running           int
	MaxConcurrent     int
	Completed         int64
	Failed            int64
	Retried           int64
	Cancelled         int64
	ResponseCacheHits int64
	ResponseCacheSize int
}
