package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// DAG validation errors (never retryable — the graph itself is malformed).
const (
	// ErrCodeCycleDetected indicates the DAG contains a dependency cycle.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"
	// ErrCodeUnknownNode indicates an edge or dependency references a node that does not exist.
	ErrCodeUnknownNode ErrorCode = "UNKNOWN_NODE"
	// ErrCodeDuplicateNode indicates two nodes were registered with the same id.
	ErrCodeDuplicateNode ErrorCode = "DUPLICATE_NODE"
	// ErrCodeInvalidConfig indicates a node or engine was configured with invalid values.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Step execution errors.
const (
	// ErrCodeStepFailed indicates a step's Execute call returned an error.
	ErrCodeStepFailed ErrorCode = "STEP_FAILED"
	// ErrCodeStepTimeout indicates a step did not complete within its timeout budget.
	ErrCodeStepTimeout ErrorCode = "STEP_TIMEOUT"
	// ErrCodeDependencyFailed indicates a node was skipped because an upstream dependency failed.
	ErrCodeDependencyFailed ErrorCode = "DEPENDENCY_FAILED"
	// ErrCodeProviderUnavailable indicates every candidate in a fallback chain was unavailable.
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
)

// Run-level errors.
const (
	// ErrCodeCancelled indicates the run's context was cancelled before the node or run finished.
	ErrCodeCancelled ErrorCode = "CANCELLED"
	// ErrCodePipelineAborted indicates the run was aborted due to a failure-containment policy.
	ErrCodePipelineAborted ErrorCode = "PIPELINE_ABORTED"
	// ErrCodeCacheError indicates the result cache failed to read or write an entry.
	ErrCodeCacheError ErrorCode = "CACHE_ERROR"
	// ErrCodeInternal indicates an unexpected internal failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeStepFailed:          true,
	ErrCodeStepTimeout:         true,
	ErrCodeProviderUnavailable: true,
	ErrCodeCacheError:          true,
	ErrCodeCycleDetected:       false,
	ErrCodeUnknownNode:         false,
	ErrCodeDuplicateNode:       false,
	ErrCodeInvalidConfig:       false,
	ErrCodeDependencyFailed:    false,
	ErrCodeCancelled:           false,
	ErrCodePipelineAborted:     false,
	ErrCodeInternal:            false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
