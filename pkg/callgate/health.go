package callgate

import (
	"github.com/LavishGent/callgate/internal/types"
)

// Re-export health types from internal/types.
type (
	// HealthStatus represents the overall health state.
	HealthStatus = types.HealthStatus

	// HealthMetrics contains overall gateway health information.
	HealthMetrics = types.HealthMetrics

	// CacheHealthMetrics contains memory tier health details.
	CacheHealthMetrics = types.CacheHealthMetrics

	// StoreHealthMetrics contains persisted tier health details.
	StoreHealthMetrics = types.StoreHealthMetrics

	// SchedulerStats contains scheduler queue and throughput counters.
	SchedulerStats = types.SchedulerStats
)

// Re-export health status constants.
const (
	HealthStatusHealthy   = types.HealthStatusHealthy
	HealthStatusDegraded  = types.HealthStatusDegraded
	HealthStatusUnhealthy = types.HealthStatusUnhealthy
)
