package types

import "time"

// HealthStatus represents the overall health state.
type HealthStatus int

const (
	// HealthStatusHealthy indicates all systems operating normally.
	HealthStatusHealthy HealthStatus = iota + 1
	// HealthStatusDegraded indicates partial functionality (e.g., persisted store down).
	HealthStatusDegraded
	// HealthStatusUnhealthy indicates critical failure.
	HealthStatusUnhealthy
)

// String returns the string representation of health status.
func (s HealthStatus) String() string {
	switch s {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusDegraded:
		return "degraded"
	case HealthStatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// HealthMetrics contains overall gateway health information.
type HealthMetrics struct {
	Timestamp           time.Time
	Cache               CacheHealthMetrics
	Store               StoreHealthMetrics
	Scheduler           SchedulerStats
	CircuitBreakerState string
	HotCacheEntries     int
	Status              HealthStatus
}

// CacheHealthMetrics contains memory tier health details.
type CacheHealthMetrics struct {
	Stats           CacheStats
	MaxItems        int
	MaxSizeBytes    int64
	UsagePercentage float64
}

// StoreHealthMetrics contains persisted tier health details.
type StoreHealthMetrics struct {
	Name          string
	Available     bool
	PendingWrites int
	DroppedWrites int64
}
