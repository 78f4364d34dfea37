package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ValidationError reports a malformed DAG: a cycle, a dangling edge, a
// duplicate node id, or an invalid node/engine configuration. Validation
// errors are raised before a run starts and are never retryable.
type ValidationError struct {
	*AppError
	// Nodes lists the node ids implicated in the failure, when known
	// (e.g. the cycle path, or the missing dependency's id).
	Nodes []string
}

// NewValidationError builds a ValidationError for the given code and nodes.
func NewValidationError(code ErrorCode, message string, nodes ...string) *ValidationError {
	return &ValidationError{
		AppError: New(code, message),
		Nodes:    nodes,
	}
}

func (e *ValidationError) Error() string {
	if len(e.Nodes) == 0 {
		return e.AppError.Error()
	}
	return fmt.Sprintf("%s (nodes: %v)", e.AppError.Error(), e.Nodes)
}

func (e *ValidationError) Unwrap() error { return e.AppError }

// StepError wraps the error a step executor returned while running a node.
type StepError struct {
	*AppError
	// NodeID identifies the node whose step returned this error.
	NodeID string
	// Attempt is the 1-based attempt number that produced this error.
	Attempt int
}

// NewStepError builds a StepError, wrapping the step's own error as the cause.
func NewStepError(nodeID string, attempt int, cause error) *StepError {
	return &StepError{
		AppError: New(ErrCodeStepFailed, fmt.Sprintf("step %q failed on attempt %d", nodeID, attempt)).WithCause(cause),
		NodeID:   nodeID,
		Attempt:  attempt,
	}
}

func (e *StepError) Unwrap() error { return e.AppError }

// StepTimeoutError reports that a node did not finish within its configured
// per-node timeout budget.
type StepTimeoutError struct {
	*AppError
	NodeID  string
	Timeout time.Duration
}

// NewStepTimeoutError builds a StepTimeoutError for the given node and budget.
func NewStepTimeoutError(nodeID string, timeout time.Duration) *StepTimeoutError {
	return &StepTimeoutError{
		AppError: New(ErrCodeStepTimeout, fmt.Sprintf("step %q exceeded timeout of %s", nodeID, timeout)),
		NodeID:   nodeID,
		Timeout:  timeout,
	}
}

func (e *StepTimeoutError) Unwrap() error { return e.AppError }

// CancellationError reports that a node or run observed context
// cancellation rather than a step failure.
type CancellationError struct {
	*AppError
	NodeID string
}

// NewCancellationError builds a CancellationError for the given node. NodeID
// is empty when the cancellation is run-wide rather than node-specific.
func NewCancellationError(nodeID string, cause error) *CancellationError {
	msg := "run was cancelled"
	if nodeID != "" {
		msg = fmt.Sprintf("node %q was cancelled", nodeID)
	}
	return &CancellationError{
		AppError: New(ErrCodeCancelled, msg).WithCause(cause),
		NodeID:   nodeID,
	}
}

func (e *CancellationError) Unwrap() error { return e.AppError }

// PipelineAborted reports that a run was stopped by a failure-containment
// policy before all reachable nodes could be scheduled. It carries the node
// id whose failure triggered the abort.
type PipelineAborted struct {
	*AppError
	// FailedNodeID is the node whose failure triggered the abort.
	FailedNodeID string
	// Unscheduled lists node ids that never ran because of the abort.
	Unscheduled []string
}

// NewPipelineAborted builds a PipelineAborted error.
func NewPipelineAborted(failedNodeID string, unscheduled []string, cause error) *PipelineAborted {
	return &PipelineAborted{
		AppError:     New(ErrCodePipelineAborted, fmt.Sprintf("run aborted after node %q failed", failedNodeID)).WithCause(cause),
		FailedNodeID: failedNodeID,
		Unscheduled:  unscheduled,
	}
}

func (e *PipelineAborted) Unwrap() error { return e.AppError }

// As is a re-export of the standard library's errors.As for convenience so
// callers working exclusively with this package need not import "errors"
// directly to unwrap the taxonomy above.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Is is a re-export of the standard library's errors.Is.
func Is(err, target error) bool { return stderrors.Is(err, target) }
