package dag

import (
	"time"

	"github.com/kbukum/flowcore/step"
)

// FailureStrategy controls how the engine reacts when a node exhausts its
// retries and still fails.
type FailureStrategy int

const (
	// FailureSkipDownstream marks the failed node's descendants as
	// skipped (propagating through the graph) but lets independent
	// branches continue running. This is the default: an unspecified
	// OnFailure never takes down an otherwise-healthy run.
	FailureSkipDownstream FailureStrategy = iota
	// FailureAbort stops scheduling any node that has not yet started and
	// fails the whole run.
	FailureAbort
	// FailureIsolate records the failure on this node only; descendants
	// still run, receiving a zero value where they would have read this
	// node's output. Use for best-effort side-channel nodes (e.g. a
	// logging or metrics step) whose failure should never affect the
	// rest of the run.
	FailureIsolate
)

func (s FailureStrategy) String() string {
	switch s {
	case FailureAbort:
		return "abort"
	case FailureSkipDownstream:
		return "skip_downstream"
	case FailureIsolate:
		return "isolate"
	default:
		return "unknown"
	}
}

// ConditionFunc decides whether a node should run at all. It is evaluated
// once the node becomes ready (all dependencies satisfied or skipped). A
// false result marks the node Skipped and propagates to its dependents
// exactly like a FailureSkipDownstream failure would.
type ConditionFunc func(ctx ConditionContext) bool

// ConditionContext is the minimal view of run state a ConditionFunc needs.
// It is satisfied by *pipelinectx.PipelineContext; declared here instead of
// imported to avoid a dependency from dag on pipelinectx.
type ConditionContext interface {
	Get(key string) (any, bool)
}

// RetryPolicy configures the engine's per-node retry loop (orchestration
// level — distinct from any resilience a step wraps its own call in).
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// Zero or negative means no retries (a single attempt).
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential backoff growth.
	MaxBackoff time.Duration
	// BackoffFactor is the exponential multiplier applied per attempt.
	BackoffFactor float64
}

// Node is one unit of work in the graph. A Node is purely declarative: it
// names the step executor that performs the work, its dependencies, and the
// policies the engine applies around it. Node never runs anything itself.
type Node struct {
	// ID uniquely identifies this node within its DAG.
	ID string
	// Step performs the node's actual work when the engine runs it.
	Step step.StepExecutor
	// DependsOn lists the ids of nodes that must complete (or be skipped)
	// before this node becomes eligible to run.
	DependsOn []string
	// Condition, if set, gates whether the node runs once it is eligible.
	Condition ConditionFunc
	// Retry configures the engine's retry loop for this node. The zero
	// value means a single attempt with no retry.
	Retry RetryPolicy
	// Timeout bounds a single attempt's execution time. Zero means no
	// per-node timeout is applied beyond the run's own context deadline.
	Timeout time.Duration
	// OnFailure controls what happens to the rest of the run when this
	// node exhausts its retries and still fails.
	OnFailure FailureStrategy
	// CacheKey, if non-empty, opts this node into the shared result
	// cache: the engine fingerprints (CacheKey, node id, step input) and
	// reuses a prior result for an identical fingerprint instead of
	// invoking Step.Execute again.
	CacheKey string
}
