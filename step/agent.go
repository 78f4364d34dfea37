package step

import (
	"context"

	"github.com/kbukum/flowcore/pipelinectx"
	"github.com/kbukum/flowcore/provider"
	"github.com/kbukum/flowcore/usage"
)

// AgentStep wraps a provider.RequestResponse[I,O] — typically an LLM or
// tool call — as a StepExecutor. It mirrors the teacher's
// dag.FromProvider bridge, generalized to write a usage.UsageRecord
// alongside the output so the engine's Tracker sees every call's cost.
type AgentStep[I, O any] struct {
	// NodeID names the node this step belongs to, used for usage
	// attribution and fingerprinting.
	NodeID string
	// Model identifies the backing model/provider for cost accounting
	// and cache fingerprinting.
	Model string
	// Service performs the actual call.
	Service provider.RequestResponse[I, O]
	// Extract builds the call's input from the shared context.
	Extract func(pctx *pipelinectx.PipelineContext) (I, error)
	// Output is the port the result is written to, readable by
	// downstream steps via pipelinectx.Read.
	Output pipelinectx.Port[O]
	// Usage computes the usage record for a completed call. Optional —
	// steps that don't consume priced resources (a CallableStep-shaped
	// AgentStep, e.g. a deterministic tool) can leave this nil.
	Usage func(input I, output O) *usage.UsageRecord
}

// Execute implements StepExecutor.
func (s *AgentStep[I, O]) Execute(ctx context.Context, pctx *pipelinectx.PipelineContext) (Result, error) {
	input, err := s.Extract(pctx)
	if err != nil {
		return Result{}, errf("agent", "extracting input for node %q: %v", s.NodeID, err)
	}

	output, err := s.Service.Execute(ctx, input)
	if err != nil {
		return Result{}, err
	}

	pipelinectx.Write(pctx, s.Output, output)

	var rec *usage.UsageRecord
	if s.Usage != nil {
		rec = s.Usage(input, output)
		if rec != nil {
			rec.NodeID = s.NodeID
			if rec.Model == "" {
				rec.Model = s.Model
			}
		}
	}

	return Result{Output: output, Usage: rec}, nil
}

// WriteZero implements step.ZeroWriter: it publishes O's zero value to
// Output so a downstream node reading this port after a
// dag.FailureIsolate failure sees a substituted None instead of a
// missing-key error.
func (s *AgentStep[I, O]) WriteZero(pctx *pipelinectx.PipelineContext) {
	var zero O
	pipelinectx.Write(pctx, s.Output, zero)
}

// FallbackAgentStep tries a priority-ordered list of candidate agents,
// advancing to the next candidate when the current one is unavailable or
// its call fails. It follows provider.PrioritySelector's first-available
// ordering but walks Candidates itself, checking IsAvailable ahead of each
// attempt, rather than calling a selector over a live provider map.
type FallbackAgentStep[I, O any] struct {
	NodeID      string
	Candidates  []AgentCandidate[I, O]
	Extract     func(pctx *pipelinectx.PipelineContext) (I, error)
	Output      pipelinectx.Port[O]
	Usage       func(input I, output O, model string) *usage.UsageRecord
	lastAttempt string
}

// AgentCandidate names one fallback option in priority order.
type AgentCandidate[I, O any] struct {
	Model   string
	Service provider.RequestResponse[I, O]
}

// Execute implements StepExecutor, trying each candidate in order until
// one succeeds or the list is exhausted.
func (s *FallbackAgentStep[I, O]) Execute(ctx context.Context, pctx *pipelinectx.PipelineContext) (Result, error) {
	input, err := s.Extract(pctx)
	if err != nil {
		return Result{}, errf("fallback_agent", "extracting input for node %q: %v", s.NodeID, err)
	}

	var lastErr error
	for _, cand := range s.Candidates {
		if !cand.Service.IsAvailable(ctx) {
			continue
		}

		output, err := cand.Service.Execute(ctx, input)
		if err != nil {
			lastErr = err
			continue
		}

		s.lastAttempt = cand.Model
		pipelinectx.Write(pctx, s.Output, output)

		var rec *usage.UsageRecord
		if s.Usage != nil {
			rec = s.Usage(input, output, cand.Model)
			if rec != nil {
				rec.NodeID = s.NodeID
				if rec.Model == "" {
					rec.Model = cand.Model
				}
			}
		}
		return Result{Output: output, Usage: rec}, nil
	}

	if lastErr != nil {
		return Result{}, errf("fallback_agent", "node %q: every candidate failed, last error: %v", s.NodeID, lastErr)
	}
	return Result{}, errf("fallback_agent", "node %q: no candidate was available", s.NodeID)
}

// LastAttempt returns the model name of the candidate that last produced
// a result, useful for attaching fallback provenance to a node's result.
func (s *FallbackAgentStep[I, O]) LastAttempt() string { return s.lastAttempt }

// WriteZero implements step.ZeroWriter, matching AgentStep's behavior for
// the same reason: every candidate was exhausted, so Output is still
// unwritten.
func (s *FallbackAgentStep[I, O]) WriteZero(pctx *pipelinectx.PipelineContext) {
	var zero O
	pipelinectx.Write(pctx, s.Output, zero)
}
