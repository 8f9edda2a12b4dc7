package metrics

import "fmt"

// Request outcomes reported by the scheduler and the gateway.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Tag creates a formatted DataDog tag string in "key:value" format.
func Tag(key, value string) string {
	return fmt.Sprintf("%s:%s", key, value)
}

// TierTag creates a cache tier tag (memory/persist/hot).
func TierTag(tier string) string {
	return Tag("tier", tier)
}

// EndpointTag tags a metric with the endpoint:action of a call.
func EndpointTag(endpoint string) string {
	return Tag("endpoint", endpoint)
}

// OutcomeTag creates a request outcome tag (success/failure).
func OutcomeTag(outcome string) string {
	return Tag("outcome", outcome)
}

// StatusTag creates a health status tag.
func StatusTag(status string) string {
	return Tag("status", status)
}

// CircuitStateTag creates a circuit breaker state tag.
func CircuitStateTag(state string) string {
	return Tag("circuit_state", state)
}
