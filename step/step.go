// Package step declares the StepExecutor contract every pipeline node runs
// through, plus the concrete step variants a graph is built from: a single
// agent/tool call, a plain callable, a fan-out/fan-in pair for per-item
// concurrent dispatch, a predicate-driven branch, and a multi-turn
// reasoning step. Each variant follows the same shape the teacher uses to
// bridge a provider.RequestResponse into a graph node, generalized so the
// node no longer owns the call — the step does.
package step

import (
	"context"
	"fmt"

	"github.com/kbukum/flowcore/pipelinectx"
	"github.com/kbukum/flowcore/usage"
)

// Result is what a StepExecutor hands back to the engine: the value to
// store for downstream nodes and, when the step consumed a priced
// resource (an LLM call, typically), the usage it incurred.
type Result struct {
	Output any
	Usage  *usage.UsageRecord
}

// StepExecutor performs one node's work. Implementations must be safe to
// call concurrently with other nodes' steps against the same
// PipelineContext — the context itself synchronizes shared reads/writes,
// but a step must not hold onto ctx or pctx past its own Execute call.
type StepExecutor interface {
	Execute(ctx context.Context, pctx *pipelinectx.PipelineContext) (Result, error)
}

// ZeroWriter is an optional interface a StepExecutor implements when it
// owns an output pipelinectx.Port and wants to publish that port's zero
// value the moment it fails, rather than leaving the port unset. The
// engine calls WriteZero for a node configured with dag.FailureIsolate
// immediately after a terminal failure, before recording the node's
// failed result: spec.md §3 requires that a CONTINUE-strategy node's
// downstream dependents "receive None for this input" instead of being
// blocked, and the only way a downstream Extract closure reading the
// port through pipelinectx.Read can observe that "None" is if something
// actually wrote the zero value — a failed Execute call otherwise never
// reaches its own pipelinectx.Write.
type ZeroWriter interface {
	WriteZero(pctx *pipelinectx.PipelineContext)
}

// Func adapts a plain function into a StepExecutor, the step-level
// equivalent of http.HandlerFunc.
type Func func(ctx context.Context, pctx *pipelinectx.PipelineContext) (Result, error)

// Execute implements StepExecutor.
func (f Func) Execute(ctx context.Context, pctx *pipelinectx.PipelineContext) (Result, error) {
	return f(ctx, pctx)
}

// errf builds a plain error tagged with the step kind that produced it,
// for steps that fail before they can even start a call (e.g. a missing
// upstream input).
func errf(kind, format string, args ...any) error {
	return fmt.Errorf("step %s: %s", kind, fmt.Sprintf(format, args...))
}
