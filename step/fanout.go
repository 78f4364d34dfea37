package step

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/flowcore/pipelinectx"
)

// FanOutStep splits an input slice into items and dispatches each one
// concurrently through Item, writing the ordered results to Output.
// Order of Output always matches order of the input slice regardless of
// which goroutine finishes first — callers downstream (a FanInStep's
// Merge function, typically) depend on positional alignment between the
// fanned-out input and its result.
type FanOutStep[I, O any] struct {
	NodeID string
	// Extract reads the slice of items to fan out over.
	Extract func(pctx *pipelinectx.PipelineContext) ([]I, error)
	// Item processes a single item.
	Item func(ctx context.Context, item I) (O, error)
	// Concurrency caps how many items run at once. Zero or negative
	// means sequential (one at a time).
	Concurrency int
	Output      pipelinectx.Port[[]O]
}

// Execute implements StepExecutor.
func (s *FanOutStep[I, O]) Execute(ctx context.Context, pctx *pipelinectx.PipelineContext) (Result, error) {
	items, err := s.Extract(pctx)
	if err != nil {
		return Result{}, errf("fan_out", "extracting items for node %q: %v", s.NodeID, err)
	}

	concurrency := s.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	out := make([]O, len(items))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(concurrency)

	for i, item := range items {
		grp.Go(func() error {
			result, err := s.Item(gctx, item)
			if err != nil {
				return err
			}
			out[i] = result
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return Result{}, err
	}

	pipelinectx.Write(pctx, s.Output, out)
	return Result{Output: out}, nil
}

// WriteZero implements step.ZeroWriter: it publishes a nil []O to Output
// so a downstream FanInStep's plain pipelinectx.Read on this port sees a
// substituted empty sequence instead of a missing-key error after a
// dag.FailureIsolate failure.
func (s *FanOutStep[I, O]) WriteZero(pctx *pipelinectx.PipelineContext) {
	pipelinectx.Write(pctx, s.Output, []O(nil))
}

// FanInStep merges the ordered results a FanOutStep produced into a single
// value, or — when no Merge function is given — passes the list through
// unchanged.
type FanInStep[O, R any] struct {
	NodeID string
	// From reads the fanned-out results to merge.
	From pipelinectx.Port[[]O]
	// Merge combines the items into one value. Nil means pass-through:
	// R must then be []O.
	Merge  func(items []O) (R, error)
	Output pipelinectx.Port[R]
}

// Execute implements StepExecutor.
func (s *FanInStep[O, R]) Execute(_ context.Context, pctx *pipelinectx.PipelineContext) (Result, error) {
	items, err := pipelinectx.Read(pctx, s.From)
	if err != nil {
		return Result{}, errf("fan_in", "node %q: %v", s.NodeID, err)
	}

	if s.Merge == nil {
		any0, ok := any(items).(R)
		if !ok {
			return Result{}, errf("fan_in", "node %q: no merge function and []O is not assignable to R", s.NodeID)
		}
		pipelinectx.Write(pctx, s.Output, any0)
		return Result{Output: any0}, nil
	}

	merged, err := s.Merge(items)
	if err != nil {
		return Result{}, err
	}

	pipelinectx.Write(pctx, s.Output, merged)
	return Result{Output: merged}, nil
}

// WriteZero implements step.ZeroWriter: it publishes R's zero value to
// Output so a downstream node reading this port after a
// dag.FailureIsolate failure (e.g. Merge itself failing) sees a
// substituted None instead of a missing-key error.
func (s *FanInStep[O, R]) WriteZero(pctx *pipelinectx.PipelineContext) {
	var zero R
	pipelinectx.Write(pctx, s.Output, zero)
}
