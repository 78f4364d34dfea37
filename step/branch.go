package step

import (
	"context"

	"github.com/kbukum/flowcore/pipelinectx"
)

// Branch names one candidate path a BranchStep may take.
type Branch[I any] struct {
	Name string
	When func(input I) bool
	Then func(ctx context.Context, input I) (any, error)
}

// BranchStep evaluates each Branch's predicate in order and runs the first
// one that matches, recording which branch ran so downstream nodes (and
// event observers) can see the routing decision. If no branch matches and
// Default is set, Default runs instead.
type BranchStep[I any] struct {
	NodeID  string
	Extract func(pctx *pipelinectx.PipelineContext) (I, error)
	Output  pipelinectx.Port[any]
	Taken   pipelinectx.Port[string]
	Cases   []Branch[I]
	Default func(ctx context.Context, input I) (any, error)
}

// Execute implements StepExecutor.
func (s *BranchStep[I]) Execute(ctx context.Context, pctx *pipelinectx.PipelineContext) (Result, error) {
	input, err := s.Extract(pctx)
	if err != nil {
		return Result{}, errf("branch", "extracting input for node %q: %v", s.NodeID, err)
	}

	for _, c := range s.Cases {
		if !c.When(input) {
			continue
		}
		output, err := c.Then(ctx, input)
		if err != nil {
			return Result{}, err
		}
		pipelinectx.Write(pctx, s.Output, output)
		pipelinectx.Write(pctx, s.Taken, c.Name)
		return Result{Output: output}, nil
	}

	if s.Default != nil {
		output, err := s.Default(ctx, input)
		if err != nil {
			return Result{}, err
		}
		pipelinectx.Write(pctx, s.Output, output)
		pipelinectx.Write(pctx, s.Taken, "default")
		return Result{Output: output}, nil
	}

	return Result{}, errf("branch", "node %q: no branch matched and no default is configured", s.NodeID)
}

// WriteZero implements step.ZeroWriter: it publishes nil to Output and ""
// to Taken so a downstream node (or a condition gated on the taken
// branch's label) reading either port after a dag.FailureIsolate failure
// sees a substituted None instead of a missing-key error.
func (s *BranchStep[I]) WriteZero(pctx *pipelinectx.PipelineContext) {
	pipelinectx.Write(pctx, s.Output, any(nil))
	pipelinectx.Write(pctx, s.Taken, "")
}
