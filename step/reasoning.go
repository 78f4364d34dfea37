package step

import (
	"context"
	"fmt"

	"github.com/kbukum/flowcore/pipeline"
	"github.com/kbukum/flowcore/pipelinectx"
	"github.com/kbukum/flowcore/usage"
)

// Thought is one turn of a ReasoningStep's trace.
type Thought struct {
	Turn    int
	Content string
	Usage   *usage.UsageRecord
}

// Trace is the full sequence of thoughts a ReasoningStep produced before
// reaching its final output.
type Trace struct {
	Thoughts []Thought
	Final    any
}

// ReasoningStep repeatedly calls Advance, accumulating a trace of
// intermediate thoughts, until Done reports the reasoning has converged or
// MaxTurns is reached. It generalizes AgentStep to a multi-call step: each
// turn may incur its own usage, all of which is summed into the single
// usage.UsageRecord the engine attributes to this node.
//
// The turn loop is driven as a pipeline.Iterator[Thought]: each pull runs
// one Advance call, so the same lazy, pull-based machinery the pipeline
// package uses for streaming data sources drives this streaming reasoning
// loop, rather than a bespoke for-loop.
type ReasoningStep[I any] struct {
	NodeID  string
	Model   string
	Extract func(pctx *pipelinectx.PipelineContext) (I, error)
	// Advance runs one reasoning turn given the input and the thoughts
	// accumulated so far, returning the next thought.
	Advance func(ctx context.Context, input I, history []Thought) (Thought, error)
	// Done reports whether the trace has reached a final answer.
	Done func(history []Thought) (final any, done bool)
	// MaxTurns bounds the number of Advance calls; zero means unbounded
	// (Done must eventually return true).
	MaxTurns int
	Output   pipelinectx.Port[Trace]
}

// reasoningIterator pulls one reasoning turn per Next call, stopping once
// Done reports convergence. It implements pipeline.Iterator[Thought].
type reasoningIterator[I any] struct {
	input    I
	advance  func(ctx context.Context, input I, history []Thought) (Thought, error)
	done     func(history []Thought) (any, bool)
	maxTurns int

	turn     int
	history  []Thought
	final    any
	finished bool
}

func (it *reasoningIterator[I]) Next(ctx context.Context) (Thought, bool, error) {
	if it.finished {
		return Thought{}, false, nil
	}
	if it.maxTurns > 0 && it.turn >= it.maxTurns {
		return Thought{}, false, fmt.Errorf("exceeded %d turns without converging", it.maxTurns)
	}

	it.turn++
	thought, err := it.advance(ctx, it.input, it.history)
	if err != nil {
		return Thought{}, false, err
	}
	thought.Turn = it.turn
	it.history = append(it.history, thought)

	if final, done := it.done(it.history); done {
		it.final = final
		it.finished = true
	}
	return thought, true, nil
}

func (it *reasoningIterator[I]) Close() error { return nil }

// Execute implements StepExecutor.
func (s *ReasoningStep[I]) Execute(ctx context.Context, pctx *pipelinectx.PipelineContext) (Result, error) {
	input, err := s.Extract(pctx)
	if err != nil {
		return Result{}, errf("reasoning", "extracting input for node %q: %v", s.NodeID, err)
	}

	iter := &reasoningIterator[I]{input: input, advance: s.Advance, done: s.Done, maxTurns: s.MaxTurns}
	src := pipeline.FromFunc(func(context.Context) pipeline.Iterator[Thought] { return iter })

	var totalPrompt, totalCompletion, totalTokens int
	var totalCost float64
	tapped := pipeline.Tap(src, func(_ context.Context, t Thought) error {
		if t.Usage != nil {
			totalPrompt += t.Usage.PromptTokens
			totalCompletion += t.Usage.CompletionTokens
			totalTokens += t.Usage.TotalTokens
			totalCost += t.Usage.CostUSD
		}
		return nil
	})

	history, err := pipeline.Collect(ctx, tapped)
	if err != nil {
		return Result{}, err
	}
	if !iter.finished {
		return Result{}, errf("reasoning", "node %q: exceeded %d turns without converging", s.NodeID, s.MaxTurns)
	}

	trace := Trace{Thoughts: history, Final: iter.final}
	pipelinectx.Write(pctx, s.Output, trace)

	var rec *usage.UsageRecord
	if totalTokens > 0 || totalCost > 0 {
		rec = &usage.UsageRecord{
			NodeID:           s.NodeID,
			Model:            s.Model,
			PromptTokens:     totalPrompt,
			CompletionTokens: totalCompletion,
			TotalTokens:      totalTokens,
			CostUSD:          totalCost,
		}
	}
	return Result{Output: trace, Usage: rec}, nil
}

// WriteZero implements step.ZeroWriter: it publishes a zero Trace to
// Output so a downstream node reading this port after a
// dag.FailureIsolate failure (e.g. the turn budget was exceeded without
// converging) sees a substituted None instead of a missing-key error.
func (s *ReasoningStep[I]) WriteZero(pctx *pipelinectx.PipelineContext) {
	pipelinectx.Write(pctx, s.Output, Trace{})
}
