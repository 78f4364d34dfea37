package step

import (
	"context"

	"github.com/kbukum/flowcore/pipelinectx"
)

// CallableStep wraps a plain Go function as a StepExecutor, for
// deterministic work (parsing, formatting, local computation) that has no
// external call or usage cost to track.
type CallableStep[I, O any] struct {
	NodeID  string
	Extract func(pctx *pipelinectx.PipelineContext) (I, error)
	Call    func(ctx context.Context, input I) (O, error)
	Output  pipelinectx.Port[O]
}

// Execute implements StepExecutor.
func (s *CallableStep[I, O]) Execute(ctx context.Context, pctx *pipelinectx.PipelineContext) (Result, error) {
	input, err := s.Extract(pctx)
	if err != nil {
		return Result{}, errf("callable", "extracting input for node %q: %v", s.NodeID, err)
	}

	output, err := s.Call(ctx, input)
	if err != nil {
		return Result{}, err
	}

	pipelinectx.Write(pctx, s.Output, output)
	return Result{Output: output}, nil
}

// WriteZero implements step.ZeroWriter: it publishes O's zero value to
// Output so a downstream node reading this port after a
// dag.FailureIsolate failure sees a substituted None instead of a
// missing-key error.
func (s *CallableStep[I, O]) WriteZero(pctx *pipelinectx.PipelineContext) {
	var zero O
	pipelinectx.Write(pctx, s.Output, zero)
}
