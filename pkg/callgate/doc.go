// Package callgate mediates calls from application code to a remote RPC
// backend.
//
// callgate bounds how many backend calls are in flight, avoids redundant calls
// through a tiered, policy-driven cache, and survives partial failures with
// retry-with-backoff and a fail-safe direct-call fallback.
//
// # Features
//
//   - Tiered cache: LRU memory tier in front of an optional Redis or SQLite tier
//   - Cache levels 1-5 per endpoint:action, from a day-long static TTL to no caching
//   - Priority scheduler: bounded concurrency, FIFO among equal priorities, CancelAll
//   - Hot lookup: one designated high-frequency call served from its own 10 minute cache
//   - Resilience: linear-backoff retries of transient failures and a circuit breaker
//   - Fail-safe wrapper: any internal fault degrades to a direct transport call
//   - Observability: slog or zap logging, Prometheus and DataDog metrics
//
// # Quick Start
//
// Open a gateway from configuration. The HTTP transport, logger and metrics
// are built from the same config:
//
//	gw, err := callgate.Open(callgate.Config())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gw.Close()
//
//	res, err := gw.Call(ctx, callgate.RequestSpec{Endpoint: "batch", Action: "list"})
//	if err != nil {
//	    return err
//	}
//	var batches []Batch
//	if err := res.Decode(&batches); err != nil {
//	    return err
//	}
//
// # Lower-level construction
//
// Bring your own transport and build the manager or wrapper directly:
//
//	manager, err := callgate.NewFromConfig(cfg, transport,
//	    callgate.WithLogger(logger),
//	    callgate.WithSession(session),
//	)
//
//	safe := callgate.NewSafe(cfg, transport)
//	res, err := safe.SafeCall(ctx, spec, callgate.WithPriority(callgate.PriorityHigh))
//
// # Cache Levels
//
//   - LevelStatic (1): 24 hours, persisted
//   - LevelStable (2): 2 hours, persisted
//   - LevelVolatile (3): 30 minutes, persisted
//   - LevelShort (4): 5 minutes, memory only
//   - LevelNoCache (5): never stored
//
// Levels are assigned per endpoint:action by the policy table: compiled
// defaults plus the policies section of the config file.
//
// # Invalidation
//
// After a state-changing call, clear the caches that depend on it:
//
//	_ = gw.Invalidator().BatchChanged(ctx, batchID)
//	_ = gw.ClearCache(ctx, "finance:")
//
// # Configuration
//
// Load configuration from a JSON, YAML or TOML file, with CALLGATE_ environment
// overrides:
//
//	gw, err := callgate.OpenFile("callgate.yaml")
//
// # Thread Safety
//
// All operations are safe for concurrent use.
package callgate
