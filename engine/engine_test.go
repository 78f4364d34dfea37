package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/flowcore/cache"
	"github.com/kbukum/flowcore/dag"
	"github.com/kbukum/flowcore/pipelinectx"
	"github.com/kbukum/flowcore/result"
	"github.com/kbukum/flowcore/step"
	"github.com/kbukum/flowcore/usage"
)

func intPort(key string) pipelinectx.Port[int] { return pipelinectx.Port[int]{Key: key} }

func writeInt(key string, v int) step.Func {
	return func(ctx context.Context, pctx *pipelinectx.PipelineContext) (step.Result, error) {
		pipelinectx.Write(pctx, intPort(key), v)
		return step.Result{Output: v}, nil
	}
}

func addFrom(outKey string, inKeys ...string) step.Func {
	return func(ctx context.Context, pctx *pipelinectx.PipelineContext) (step.Result, error) {
		sum := 0
		for _, k := range inKeys {
			v, err := pipelinectx.Read(pctx, intPort(k))
			if err != nil {
				return step.Result{}, err
			}
			sum += v
		}
		pipelinectx.Write(pctx, intPort(outKey), sum)
		return step.Result{Output: sum}, nil
	}
}

// TestEngine_LinearSuccess matches spec scenario A: a straight-line chain
// where every node succeeds produces a Completed run and a scalar final
// output from the single terminal node.
func TestEngine_LinearSuccess(t *testing.T) {
	d := dag.New()
	_ = d.AddNode(&dag.Node{ID: "n1", Step: writeInt("n1.out", 1)})
	_ = d.AddNode(&dag.Node{ID: "n2", Step: addFrom("n2.out", "n1.out"), DependsOn: []string{"n1"}})
	_ = d.AddNode(&dag.Node{ID: "n3", Step: addFrom("n3.out", "n2.out"), DependsOn: []string{"n2"}})

	e, err := New("linear", d, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pr, err := e.Run(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pr.Status != result.StatusCompleted {
		t.Fatalf("expected StatusCompleted, got %s (err=%v)", pr.Status, pr.Err)
	}
	for _, id := range []string{"n1", "n2", "n3"} {
		nr := pr.NodeResults[id]
		if nr == nil || nr.Status != result.StatusCompleted {
			t.Fatalf("node %s: expected Completed, got %+v", id, nr)
		}
	}

	final := e.FinalOutput(pr)
	if final != 1 {
		t.Errorf("expected final output 1, got %v", final)
	}
}

// TestEngine_SkipPropagation matches spec scenario B: a failed node with the
// default skip-downstream policy skips its dependents while an unrelated
// branch keeps running to completion.
func TestEngine_SkipPropagation(t *testing.T) {
	failing := step.Func(func(ctx context.Context, pctx *pipelinectx.PipelineContext) (step.Result, error) {
		return step.Result{}, fmt.Errorf("boom")
	})

	d := dag.New()
	_ = d.AddNode(&dag.Node{ID: "n1", Step: failing}) // FailureSkipDownstream by default
	_ = d.AddNode(&dag.Node{ID: "n2", Step: writeInt("n2.out", 2), DependsOn: []string{"n1"}})
	_ = d.AddNode(&dag.Node{ID: "n3", Step: writeInt("n3.out", 3)}) // independent branch

	e, err := New("skip", d, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pr, err := e.Run(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if pr.NodeResults["n1"].Status != result.StatusFailed {
		t.Errorf("expected n1 Failed, got %s", pr.NodeResults["n1"].Status)
	}
	if pr.NodeResults["n2"].Status != result.StatusSkipped {
		t.Errorf("expected n2 Skipped, got %s", pr.NodeResults["n2"].Status)
	}
	if pr.NodeResults["n3"].Status != result.StatusCompleted {
		t.Errorf("expected independent n3 to complete, got %s", pr.NodeResults["n3"].Status)
	}
}

// TestEngine_RetryThenSucceed matches spec scenario C: a node that fails on
// its first attempts and succeeds within its retry budget ends up Completed
// with the attempt count it actually needed.
func TestEngine_RetryThenSucceed(t *testing.T) {
	attempts := 0
	flaky := step.Func(func(ctx context.Context, pctx *pipelinectx.PipelineContext) (step.Result, error) {
		attempts++
		if attempts < 3 {
			return step.Result{}, fmt.Errorf("transient failure")
		}
		return step.Result{Output: "ok"}, nil
	})

	d := dag.New()
	_ = d.AddNode(&dag.Node{
		ID: "n1", Step: flaky,
		Retry: dag.RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Millisecond},
	})

	e, err := New("retry", d, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pr, err := e.Run(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	nr := pr.NodeResults["n1"]
	if nr.Status != result.StatusCompleted {
		t.Fatalf("expected Completed after retries, got %s (err=%v)", nr.Status, nr.Err)
	}
	if nr.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", nr.Attempts)
	}
}

// TestEngine_TimeoutThenFailPipeline matches spec scenario D: a node whose
// every attempt exceeds its per-node timeout exhausts its retry budget,
// fails under FailureAbort, and the run cancels its not-yet-started
// dependents.
func TestEngine_TimeoutThenFailPipeline(t *testing.T) {
	slow := step.Func(func(ctx context.Context, pctx *pipelinectx.PipelineContext) (step.Result, error) {
		select {
		case <-time.After(50 * time.Millisecond):
			return step.Result{Output: "too slow"}, nil
		case <-ctx.Done():
			return step.Result{}, ctx.Err()
		}
	})

	d := dag.New()
	_ = d.AddNode(&dag.Node{
		ID: "n1", Step: slow,
		Timeout:   5 * time.Millisecond,
		Retry:     dag.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond},
		OnFailure: dag.FailureAbort,
	})
	_ = d.AddNode(&dag.Node{ID: "n2", Step: writeInt("n2.out", 1), DependsOn: []string{"n1"}})

	e, err := New("timeout", d, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pr, err := e.Run(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if pr.Status != result.StatusFailed {
		t.Fatalf("expected run Failed, got %s", pr.Status)
	}
	n1 := pr.NodeResults["n1"]
	if n1.Status != result.StatusFailed {
		t.Errorf("expected n1 Failed (timeout budget exhausted), got %s", n1.Status)
	}
	if n1.Attempts != 2 {
		t.Errorf("expected 2 attempts before giving up, got %d", n1.Attempts)
	}
	n2 := pr.NodeResults["n2"]
	if n2.Status != result.StatusCancelled {
		t.Errorf("expected n2 Cancelled after pipeline abort, got %s", n2.Status)
	}
}

// TestEngine_FanOutFanInOrdering matches spec scenario E: fanning a slice
// out to concurrent per-item work and back through a merge must preserve
// input order regardless of completion order.
func TestEngine_FanOutFanInOrdering(t *testing.T) {
	itemsPort := pipelinectx.Port[[]string]{Key: "items"}
	fanOutPort := pipelinectx.Port[[]string]{Key: "fanout.out"}
	mergedPort := pipelinectx.Port[string]{Key: "merged"}

	source := step.Func(func(ctx context.Context, pctx *pipelinectx.PipelineContext) (step.Result, error) {
		items := []string{"a", "b", "c"}
		pipelinectx.Write(pctx, itemsPort, items)
		return step.Result{Output: items}, nil
	})

	fanOut := &step.FanOutStep[string, string]{
		NodeID: "fanout",
		Extract: func(pctx *pipelinectx.PipelineContext) ([]string, error) {
			return pipelinectx.Read(pctx, itemsPort)
		},
		Item: func(ctx context.Context, item string) (string, error) {
			// "c" finishes first to prove ordering isn't completion order.
			if item != "c" {
				time.Sleep(10 * time.Millisecond)
			}
			return strings.ToUpper(item), nil
		},
		Concurrency: 3,
		Output:      fanOutPort,
	}

	fanIn := &step.FanInStep[string, string]{
		From: fanOutPort,
		Merge: func(items []string) (string, error) {
			return strings.Join(items, ","), nil
		},
		Output: mergedPort,
	}

	d := dag.New()
	_ = d.AddNode(&dag.Node{ID: "source", Step: source})
	_ = d.AddNode(&dag.Node{ID: "fanout", Step: fanOut, DependsOn: []string{"source"}})
	_ = d.AddNode(&dag.Node{ID: "fanin", Step: fanIn, DependsOn: []string{"fanout"}})

	e, err := New("fanout", d, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pr, err := e.Run(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pr.Status != result.StatusCompleted {
		t.Fatalf("expected Completed, got %s", pr.Status)
	}

	merged := pr.NodeResults["fanin"].Output
	if merged != "A,B,C" {
		t.Errorf("expected \"A,B,C\" preserving input order, got %v", merged)
	}
}

// TestEngine_CacheHitSkipsRecompute matches spec scenario F adapted to the
// engine level: a second run against a node with the same CacheKey reuses
// the first run's result instead of invoking the step again.
func TestEngine_CacheHitSkipsRecompute(t *testing.T) {
	calls := 0
	counted := step.Func(func(ctx context.Context, pctx *pipelinectx.PipelineContext) (step.Result, error) {
		calls++
		return step.Result{Output: calls}, nil
	})

	d := dag.New()
	_ = d.AddNode(&dag.Node{ID: "n1", Step: counted, CacheKey: "fixed-key"})

	rc := cache.New(0, 0)
	e, err := New("cached", d, Config{Cache: rc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first, err := e.Run(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.NodeResults["n1"].FromCache {
		t.Error("expected first run to be a cache miss")
	}

	second, err := e.Run(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !second.NodeResults["n1"].FromCache {
		t.Error("expected second run with identical input to hit the cache")
	}
	if calls != 1 {
		t.Errorf("expected the step to run exactly once across both runs, got %d calls", calls)
	}
}

// TestEngine_FailureIsolateContinue matches spec.md §3's CONTINUE strategy
// (dag.FailureIsolate here): a node that exhausts its retries under
// FailureIsolate is recorded Failed, but its dependents are neither
// skipped nor blocked — they receive the zero value of the failed node's
// output instead, whether or not the failed step itself knows how to
// publish one.
func TestEngine_FailureIsolateContinue(t *testing.T) {
	// n1 is a *step.CallableStep, which implements step.ZeroWriter: its
	// Output port is published with 0 the moment it fails, so n2's plain
	// pipelinectx.Read succeeds without any special handling on its part.
	n1 := &step.CallableStep[any, int]{
		NodeID: "n1",
		Extract: func(pctx *pipelinectx.PipelineContext) (any, error) { return nil, nil },
		Call: func(ctx context.Context, _ any) (int, error) {
			return 0, fmt.Errorf("boom")
		},
		Output: intPort("n1.out"),
	}
	n2Ran := false
	n2 := step.Func(func(ctx context.Context, pctx *pipelinectx.PipelineContext) (step.Result, error) {
		v, err := pipelinectx.Read(pctx, intPort("n1.out"))
		if err != nil {
			return step.Result{}, err
		}
		n2Ran = true
		return step.Result{Output: v}, nil
	})

	// n3 depends on a plain step.Func, which does not implement
	// step.ZeroWriter; its Extract closure must fall back to
	// pipelinectx.ReadOr to tolerate the missing port itself.
	failingFunc := step.Func(func(ctx context.Context, pctx *pipelinectx.PipelineContext) (step.Result, error) {
		return step.Result{}, fmt.Errorf("boom")
	})
	n3Ran := false
	n3 := step.Func(func(ctx context.Context, pctx *pipelinectx.PipelineContext) (step.Result, error) {
		v := pipelinectx.ReadOr(pctx, intPort("n4.out"), -1)
		n3Ran = true
		return step.Result{Output: v}, nil
	})

	d := dag.New()
	_ = d.AddNode(&dag.Node{ID: "n1", Step: n1, OnFailure: dag.FailureIsolate})
	_ = d.AddNode(&dag.Node{ID: "n2", Step: n2, DependsOn: []string{"n1"}})
	_ = d.AddNode(&dag.Node{ID: "n4", Step: failingFunc, OnFailure: dag.FailureIsolate})
	_ = d.AddNode(&dag.Node{ID: "n3", Step: n3, DependsOn: []string{"n4"}})

	e, err := New("continue", d, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pr, err := e.Run(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if pr.NodeResults["n1"].Status != result.StatusFailed {
		t.Errorf("expected n1 Failed, got %s", pr.NodeResults["n1"].Status)
	}
	if pr.NodeResults["n2"].Status != result.StatusCompleted {
		t.Fatalf("expected n2 Completed despite n1's failure, got %s (err=%v)",
			pr.NodeResults["n2"].Status, pr.NodeResults["n2"].Err)
	}
	if !n2Ran {
		t.Error("expected n2's step to actually run, not be skipped")
	}
	if got := pr.NodeResults["n2"].Output; got != 0 {
		t.Errorf("expected n2 to read n1's zero value (0), got %v", got)
	}

	if pr.NodeResults["n4"].Status != result.StatusFailed {
		t.Errorf("expected n4 Failed, got %s", pr.NodeResults["n4"].Status)
	}
	if pr.NodeResults["n3"].Status != result.StatusCompleted {
		t.Fatalf("expected n3 Completed despite n4's failure, got %s (err=%v)",
			pr.NodeResults["n3"].Status, pr.NodeResults["n3"].Err)
	}
	if !n3Ran {
		t.Error("expected n3's step to actually run, not be skipped")
	}
	if got := pr.NodeResults["n3"].Output; got != -1 {
		t.Errorf("expected n3's ReadOr fallback (-1) since n4 never wrote its port, got %v", got)
	}
}

// TestEngine_UsageRollup matches spec scenario G: usage reported by steps
// rolls up into the run's UsageSummary filtered by correlation id.
func TestEngine_UsageRollup(t *testing.T) {
	priced := step.Func(func(ctx context.Context, pctx *pipelinectx.PipelineContext) (step.Result, error) {
		return step.Result{
			Output: "done",
			Usage: &usage.UsageRecord{
				Model: "gpt-test", PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150, CostUSD: 0.05,
			},
		}, nil
	})

	d := dag.New()
	_ = d.AddNode(&dag.Node{ID: "n1", Step: priced})

	tracker := usage.NewTracker(0)
	e, err := New("usage", d, Config{UsageTracker: tracker})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pr, err := e.Run(context.Background(), nil, "run-usage")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if pr.UsageSummary.RecordCount != 1 {
		t.Fatalf("expected 1 usage record, got %d", pr.UsageSummary.RecordCount)
	}
	if pr.UsageSummary.TotalTokens != 150 {
		t.Errorf("expected 150 total tokens, got %d", pr.UsageSummary.TotalTokens)
	}
	if pr.UsageSummary.TotalCostUSD != 0.05 {
		t.Errorf("expected 0.05 total cost, got %f", pr.UsageSummary.TotalCostUSD)
	}
}
