// Package result declares the outcome types a pipeline run produces: the
// per-node status/output/error record and the whole-run rollup, plus the
// node state machine both are built on.
package result

import (
	"time"

	"github.com/kbukum/flowcore/usage"
)

// Status is a node's position in its state machine.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// NodeResult is the outcome of one node's execution.
type NodeResult struct {
	NodeID     string
	Status     Status
	Output     any
	Err        error
	Attempts   int
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Usage      *usage.UsageRecord
	FromCache  bool
}

// TraceEntry is one node's chronological slot in a PipelineResult's
// ExecutionTrace, ordered by StartedAt rather than by the unordered
// NodeResults map's iteration order.
type TraceEntry struct {
	NodeID     string
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}

// PipelineResult is the outcome of a whole run.
type PipelineResult struct {
	RunID        string
	Status       Status
	NodeResults  map[string]*NodeResult
	// ExecutionTrace orders every node's outcome by StartedAt, giving a
	// caller the run's chronological shape without having to sort
	// NodeResults itself.
	ExecutionTrace []TraceEntry
	// FinalOutput collects the outputs of the run's terminal nodes — a
	// node with no successors, or whose every successor was skipped —
	// among those that completed successfully. A single terminal output
	// is stored as-is; multiple are stored in node-id order as a []any.
	// Nil when no node completed as a terminal output.
	FinalOutput  any
	UsageSummary usage.UsageSummary
	StartedAt    time.Time
	FinishedAt   time.Time
	Duration     time.Duration
	Err          error
}

// IsSuccess reports whether every node in the result completed or was
// intentionally skipped (no node failed or was cancelled).
func (r *PipelineResult) IsSuccess() bool {
	return r.Status == StatusCompleted
}
