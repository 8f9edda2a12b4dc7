package callgate

import (
	"github.com/LavishGent/callgate/internal/cache"
	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/gateway"
	"github.com/LavishGent/callgate/internal/metrics"
	"github.com/LavishGent/callgate/internal/types"
)

type (
	// RequestSpec describes one backend call.
	RequestSpec = types.RequestSpec
	// Response is what a Transport returns for a delivered call.
	Response = types.Response
	// Result is the resolution of a call.
	Result = types.Result
	// Source names the path that produced a Result.
	Source = types.Source
	// Priority orders admission in the scheduler queue.
	Priority = types.Priority
	// BatchOptions controls chunked batch execution.
	BatchOptions = types.BatchOptions
	// CacheLevel selects an entry's lifetime and tiers.
	CacheLevel = types.CacheLevel
	// KeyStrategy selects how cache keys are scoped.
	KeyStrategy = types.KeyStrategy
	// CachePolicy is the caching rule for one endpoint:action.
	CachePolicy = types.CachePolicy

	// Transport delivers calls to the backend.
	Transport = types.Transport
	// TransportFunc adapts a function to Transport.
	TransportFunc = types.TransportFunc
	// Session resolves the current user for user-scoped keys.
	Session = types.Session
	// SessionFunc adapts a function to Session.
	SessionFunc = types.SessionFunc
	// Store is a persisted cache tier.
	Store = types.Store
	// Serializer encodes persisted envelopes.
	Serializer = types.Serializer
	// MetricsRecorder receives cache and request metrics.
	MetricsRecorder = types.MetricsRecorder
	// Logger provides logging operations.
	Logger = types.Logger

	// Manager composes the hot-lookup cache, the scheduler and the tiered cache.
	Manager = gateway.Manager
	// Wrapper falls back to direct transport calls when the Manager fails.
	Wrapper = gateway.Wrapper
	// Invalidator clears cache subsets after state-changing calls.
	Invalidator = cache.Invalidator
	// Configuration is the full configuration tree.
	Configuration = config.Config
	// MetricsSnapshot is a point-in-time view of the in-process metrics.
	MetricsSnapshot = metrics.Snapshot
)

const (
	PriorityLow    = types.PriorityLow
	PriorityNormal = types.PriorityNormal
	PriorityHigh   = types.PriorityHigh

	// NoRetries disables retries for a call.
	NoRetries = types.NoRetries
)

const (
	LevelStatic   = types.LevelStatic
	LevelStable   = types.LevelStable
	LevelVolatile = types.LevelVolatile
	LevelShort    = types.LevelShort
	LevelNoCache  = types.LevelNoCache
)

const (
	SourceHotCache      = types.SourceHotCache
	SourceResponseCache = types.SourceResponseCache
	SourceCache         = types.SourceCache
	SourceTransport     = types.SourceTransport
	SourceFallback      = types.SourceFallback
)
