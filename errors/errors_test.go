package errors

import (
	"errors"
	"testing"
	"time"
)

func TestNewSetsRetryable(t *testing.T) {
	err := New(ErrCodeStepFailed, "boom")
	if !err.Retryable {
		t.Errorf("expected ErrCodeStepFailed to be retryable")
	}

	err = New(ErrCodeCycleDetected, "cycle")
	if err.Retryable {
		t.Errorf("expected ErrCodeCycleDetected to not be retryable")
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying failure")
	err := New(ErrCodeStepFailed, "wrapped").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the cause")
	}
}

func TestValidationErrorNodes(t *testing.T) {
	err := NewValidationError(ErrCodeCycleDetected, "cycle detected", "a", "b", "a")
	if len(err.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(err.Nodes))
	}
	if err.Retryable {
		t.Errorf("validation errors must not be retryable")
	}
}

func TestStepErrorWrapsCause(t *testing.T) {
	cause := errors.New("provider timed out")
	err := NewStepError("fetch", 2, cause)

	if err.NodeID != "fetch" || err.Attempt != 2 {
		t.Errorf("unexpected fields: %+v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to unwrap to the cause")
	}

	var asAppErr *AppError
	if !errors.As(err, &asAppErr) {
		t.Errorf("expected errors.As to find *AppError")
	}
}

func TestStepTimeoutError(t *testing.T) {
	err := NewStepTimeoutError("summarize", 5*time.Second)
	if err.Code != ErrCodeStepTimeout {
		t.Errorf("expected ErrCodeStepTimeout, got %s", err.Code)
	}
	if !err.Retryable {
		t.Errorf("expected step timeouts to be retryable")
	}
}

func TestCancellationErrorNodeID(t *testing.T) {
	cause := errors.New("context canceled")
	nodeErr := NewCancellationError("plan", cause)
	if nodeErr.NodeID != "plan" {
		t.Errorf("expected node id plan, got %s", nodeErr.NodeID)
	}

	runErr := NewCancellationError("", cause)
	if runErr.NodeID != "" {
		t.Errorf("expected empty node id for run-wide cancellation")
	}
}

func TestPipelineAbortedCarriesUnscheduled(t *testing.T) {
	err := NewPipelineAborted("step-a", []string{"step-b", "step-c"}, nil)
	if err.FailedNodeID != "step-a" {
		t.Errorf("unexpected failed node id: %s", err.FailedNodeID)
	}
	if len(err.Unscheduled) != 2 {
		t.Errorf("expected 2 unscheduled nodes, got %d", len(err.Unscheduled))
	}
	if err.Retryable {
		t.Errorf("pipeline abort must not be retryable")
	}
}

func TestIsRetryableCode(t *testing.T) {
	cases := map[ErrorCode]bool{
		ErrCodeStepFailed:          true,
		ErrCodeStepTimeout:         true,
		ErrCodeProviderUnavailable: true,
		ErrCodeCycleDetected:       false,
		ErrCodeDependencyFailed:    false,
		ErrCodePipelineAborted:     false,
	}
	for code, want := range cases {
		if got := IsRetryableCode(code); got != want {
			t.Errorf("IsRetryableCode(%s) = %v, want %v", code, got, want)
		}
	}
}
