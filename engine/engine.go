// Package engine implements the pipeline's scheduler: the component that
// turns a validated dag.DAG plus a PipelineContext into a result.PipelineResult
// by dispatching each node exactly once it becomes ready, applying its
// retry/timeout/failure policy, and rolling up usage and events along the
// way. It generalizes the teacher's dag.Engine — a static, level-by-level
// batch executor (BuildLevels + executeLevel + executeNode) — into a
// dynamic ready-set scheduler: a node is dispatched the instant every one
// of its dependencies reaches a terminal state, not at the start of its
// topological layer, so an unrelated slow node never blocks a sibling
// that could already run.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/kbukum/flowcore/cache"
	"github.com/kbukum/flowcore/dag"
	flowerrors "github.com/kbukum/flowcore/errors"
	"github.com/kbukum/flowcore/events"
	"github.com/kbukum/flowcore/logger"
	"github.com/kbukum/flowcore/pipelinectx"
	"github.com/kbukum/flowcore/result"
	"github.com/kbukum/flowcore/step"
	"github.com/kbukum/flowcore/usage"
	"github.com/kbukum/flowcore/util"
	"github.com/kbukum/flowcore/version"
)

// Config configures an Engine. Every field is optional; New fills in
// no-op/zero-cost defaults for anything left unset.
type Config struct {
	// MaxParallel caps how many nodes may run their step concurrently
	// across the whole run. Zero or negative means unbounded, matching
	// the teacher's own MaxParallel<=0 convention.
	MaxParallel int
	// Cache backs nodes that opt in via dag.Node.CacheKey. Nil disables
	// caching even for nodes that set one.
	Cache *cache.ResultCache
	// UsageTracker records every step's reported usage. Nil disables
	// usage tracking; NodeResult.Usage is still populated either way.
	UsageTracker *usage.Tracker
	// Events receives every lifecycle notification. Nil defaults to
	// events.NoOp{}.
	Events events.Handler
	// Logger is used for the engine's own diagnostics (not step output).
	// Nil defaults to the package-global logger.
	Logger *logger.Logger
}

// Engine runs one dag.DAG to completion. An Engine is reusable across runs;
// each Run call gets its own PipelineContext and execution state.
type Engine struct {
	name string
	dag  *dag.DAG
	cfg  Config
}

// New validates d and builds an Engine named name (used only for logging,
// metrics, and event labels). Returns d.Validate()'s error unchanged if the
// graph is malformed.
func New(name string, d *dag.DAG, cfg Config) (*Engine, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetGlobalLogger()
	}
	if cfg.Events == nil {
		cfg.Events = events.NoOp{}
	} else if _, already := cfg.Events.(*events.Multi); !already {
		// Wrap whatever the caller supplied so a panicking or
		// otherwise misbehaving observer can never affect the run,
		// per spec §4.6 — this guarantee must hold regardless of
		// what Handler implementation is passed in, not only for
		// callers who remembered to wrap it themselves.
		cfg.Events = events.NewMulti(cfg.Logger, cfg.Events)
	}
	cfg.Logger.WithComponent("engine").Debug("engine constructed", map[string]interface{}{
		"pipeline": name,
		"nodes":    len(d.Nodes),
		"version":  version.GetShortVersion(),
	})
	return &Engine{name: name, dag: d, cfg: cfg}, nil
}

// Run executes every node in e.dag to completion (or to abort), starting
// from the given input and correlation id. Run always builds a fresh
// context via pipelinectx.New(correlationID) and writes input to
// pipelinectx.InputPort before the first node is dispatched, so any step
// can read its caller's original input the same way it reads an upstream
// node's output. A caller with its own context uses RunWithContext.
func (e *Engine) Run(ctx context.Context, input any, correlationID string) (*result.PipelineResult, error) {
	pctx := pipelinectx.New(correlationID)
	pipelinectx.Write(pctx, pipelinectx.InputPort, input)
	return e.RunWithContext(ctx, pctx)
}

// RunWithContext is Run for a caller that already built (and possibly
// pre-seeded) its own PipelineContext.
func (e *Engine) RunWithContext(ctx context.Context, pctx *pipelinectx.PipelineContext) (*result.PipelineResult, error) {
	started := time.Now()
	total := len(e.dag.Nodes)

	pr := &result.PipelineResult{
		RunID:     pctx.RunID,
		StartedAt: started,
	}

	if total == 0 {
		pr.FinishedAt = time.Now()
		pr.Duration = pr.FinishedAt.Sub(pr.StartedAt)
		pr.Status = result.StatusCompleted
		pr.NodeResults = map[string]*result.NodeResult{}
		return pr, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sem chan struct{}
	if e.cfg.MaxParallel > 0 {
		sem = make(chan struct{}, e.cfg.MaxParallel)
	}

	doneCh := make(chan string, total)
	dispatched := make(map[string]bool, total)
	var aborted atomic.Bool
	var abortedNode string

	ids := util.Keys(e.dag.Nodes)
	sort.Strings(ids)

	isTerminal := func(id string) bool {
		_, ok := pctx.GetNodeResult(id)
		return ok
	}

	dispatchReady := func() {
		if aborted.Load() {
			return
		}
		for _, id := range ids {
			if dispatched[id] || isTerminal(id) {
				continue
			}
			ready := true
			for _, dep := range e.dag.Predecessors(id) {
				if !isTerminal(dep) {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			dispatched[id] = true
			node := e.dag.Nodes[id]
			go e.runNode(runCtx, node, pctx, sem, doneCh)
		}
	}

	// abortRemaining synthesizes a Cancelled result for every node that
	// never started, so the completion count below still reaches total
	// without waiting on a goroutine that will never be spawned.
	abortRemaining := func(failedNode string) {
		var unscheduled []string
		for _, id := range ids {
			if dispatched[id] || isTerminal(id) {
				continue
			}
			unscheduled = append(unscheduled, id)
		}
		abortErr := flowerrors.NewPipelineAborted(failedNode, unscheduled, nil)
		for _, id := range unscheduled {
			dispatched[id] = true
			nr := &result.NodeResult{
				NodeID:     id,
				Status:     result.StatusCancelled,
				Err:        abortErr,
				StartedAt:  time.Now(),
				FinishedAt: time.Now(),
			}
			_ = pctx.SetNodeResult(id, nr)
			doneCh <- id
		}
	}

	dispatchReady()

	for len(pctx.NodeResults()) < total {
		id := <-doneCh
		nr, _ := pctx.GetNodeResult(id)
		if nr.Status == result.StatusFailed && !aborted.Load() {
			if node := e.dag.Nodes[id]; node.OnFailure == dag.FailureAbort {
				aborted.Store(true)
				abortedNode = id
				cancel()
				abortRemaining(id)
			}
		}
		dispatchReady()
	}

	pr.NodeResults = pctx.NodeResults()
	pr.ExecutionTrace = e.buildTrace(pr.NodeResults)
	pr.FinalOutput = e.finalOutput(pr.NodeResults)
	pr.FinishedAt = time.Now()
	pr.Duration = pr.FinishedAt.Sub(pr.StartedAt)

	success := true
	for _, nr := range pr.NodeResults {
		if nr.Status == result.StatusFailed || nr.Status == result.StatusCancelled {
			success = false
			break
		}
	}
	if success {
		pr.Status = result.StatusCompleted
	} else {
		pr.Status = result.StatusFailed
		if abortedNode != "" {
			pr.Err = flowerrors.NewPipelineAborted(abortedNode, nil, nil)
		}
	}

	if e.cfg.UsageTracker != nil {
		pr.UsageSummary = e.cfg.UsageTracker.GetSummaryForCorrelation(pctx.CorrelationID)
	}

	e.cfg.Events.OnPipelineComplete(ctx, e.name, success, pr.Duration.Milliseconds())

	return pr, nil
}

// FinalOutput returns pr.FinalOutput, kept as a method for callers that
// already ran against an older Engine that required invoking it separately
// after Run. RunWithContext now populates the field itself, so new callers
// can read pr.FinalOutput directly without this indirection.
func (e *Engine) FinalOutput(pr *result.PipelineResult) any {
	return pr.FinalOutput
}

// finalOutput collects the outputs of every terminal node — a node with no
// successors, or whose every successor was skipped — among those that
// completed successfully. A single terminal output is returned as-is;
// multiple are returned in node-id order as a []any. A run with no
// successfully completed terminal node returns nil.
func (e *Engine) finalOutput(nodeResults map[string]*result.NodeResult) any {
	var outs []any
	ids := util.Keys(e.dag.Nodes)
	sort.Strings(ids)

	for _, id := range ids {
		nr, ok := nodeResults[id]
		if !ok || nr.Status != result.StatusCompleted {
			continue
		}
		terminal := true
		for _, succ := range e.dag.Successors(id) {
			if sr, ok := nodeResults[succ]; ok && sr.Status != result.StatusSkipped {
				terminal = false
				break
			}
		}
		if terminal {
			outs = append(outs, nr.Output)
		}
	}

	switch len(outs) {
	case 0:
		return nil
	case 1:
		return outs[0]
	default:
		return outs
	}
}

// buildTrace orders nodeResults chronologically by StartedAt, giving
// result.PipelineResult.ExecutionTrace a stable reading order the unordered
// NodeResults map cannot express on its own. Ties (possible for nodes
// dispatched in the same ready-set batch) break on node id.
func (e *Engine) buildTrace(nodeResults map[string]*result.NodeResult) []result.TraceEntry {
	ids := util.Keys(e.dag.Nodes)
	sort.Strings(ids)
	sort.SliceStable(ids, func(i, j int) bool {
		ni, oki := nodeResults[ids[i]]
		nj, okj := nodeResults[ids[j]]
		if !oki || !okj {
			return oki
		}
		return ni.StartedAt.Before(nj.StartedAt)
	})

	trace := make([]result.TraceEntry, 0, len(ids))
	for _, id := range ids {
		nr, ok := nodeResults[id]
		if !ok {
			continue
		}
		trace = append(trace, result.TraceEntry{
			NodeID:     nr.NodeID,
			Status:     nr.Status,
			StartedAt:  nr.StartedAt,
			FinishedAt: nr.FinishedAt,
			Duration:   nr.Duration,
		})
	}
	return trace
}

// runNode executes one node to a terminal NodeResult and reports its id on
// doneCh exactly once, regardless of outcome. A panic inside a step is not
// recovered here and propagates out of the node's goroutine; every other
// outcome — skip, success, retry exhaustion, timeout, cancellation —
// produces exactly one NodeResult.
func (e *Engine) runNode(runCtx context.Context, node *dag.Node, pctx *pipelinectx.PipelineContext, sem chan struct{}, doneCh chan<- string) {
	startedAt := time.Now()
	defer func() { doneCh <- node.ID }()

	if skip, reason := e.shouldSkip(node, pctx); skip {
		nr := &result.NodeResult{
			NodeID: node.ID, Status: result.StatusSkipped,
			StartedAt: startedAt, FinishedAt: time.Now(),
		}
		nr.Duration = nr.FinishedAt.Sub(nr.StartedAt)
		_ = pctx.SetNodeResult(node.ID, nr)
		e.cfg.Events.OnNodeSkip(runCtx, node.ID, e.name, reason)
		return
	}

	if sem != nil {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-runCtx.Done():
			e.recordCancelled(runCtx, node, pctx, startedAt)
			return
		}
	}

	e.cfg.Events.OnNodeStart(runCtx, node.ID, e.name)

	execute := func(ctx context.Context) (step.Result, error) {
		return node.Step.Execute(ctx, pctx)
	}

	var res step.Result
	var attempts int
	var err error
	fromCache := false

	if node.CacheKey != "" && e.cfg.Cache != nil {
		fp, fpErr := e.fingerprint(node, pctx)
		if fpErr != nil {
			e.cfg.Logger.Warn("cache fingerprint failed, bypassing cache", map[string]interface{}{
				"node": node.ID, "error": fpErr.Error(),
			})
			res, attempts, err = e.attemptWithRetry(runCtx, node, execute)
		} else {
			var v any
			v, err = e.cfg.Cache.GetOrCompute(runCtx, fp, func(ctx context.Context) (any, error) {
				r, a, cErr := e.attemptWithRetry(ctx, node, execute)
				attempts = a
				if cErr != nil {
					return nil, cErr
				}
				return r, nil
			})
			// attempts stays 0 when this call never ran the compute
			// closure itself — either a live cached entry or a
			// concurrent caller's in-flight computation answered it.
			fromCache = err == nil && attempts == 0
			if err == nil {
				res = v.(step.Result)
			}
		}
	} else {
		res, attempts, err = e.attemptWithRetry(runCtx, node, execute)
	}

	finishedAt := time.Now()
	duration := finishedAt.Sub(startedAt)

	if err != nil {
		classified := e.classify(node, attempts, err)
		status := result.StatusFailed
		if runCtx.Err() != nil && !e.isNodeOwnTimeout(node, err) {
			status = result.StatusCancelled
		}
		// FailureIsolate ("CONTINUE" in spec.md §3) promises downstream
		// nodes "receive None for this input" rather than being blocked.
		// A failed Execute call never reached its own pipelinectx.Write,
		// so give the step a chance to publish its output port's zero
		// value itself before any downstream node's Extract closure
		// tries to read it.
		if node.OnFailure == dag.FailureIsolate {
			if zw, ok := node.Step.(step.ZeroWriter); ok {
				zw.WriteZero(pctx)
			}
		}
		nr := &result.NodeResult{
			NodeID: node.ID, Status: status, Err: classified, Attempts: attempts,
			StartedAt: startedAt, FinishedAt: finishedAt, Duration: duration,
		}
		_ = pctx.SetNodeResult(node.ID, nr)
		e.cfg.Events.OnNodeError(runCtx, node.ID, e.name, classified.Error())
		return
	}

	if res.Usage != nil && e.cfg.UsageTracker != nil {
		rec := *res.Usage
		rec.NodeID = util.Coalesce(rec.NodeID, node.ID)
		rec.Agent = util.Coalesce(rec.Agent, rec.Model)
		rec.CorrelationID = util.Coalesce(rec.CorrelationID, pctx.CorrelationID)
		if rec.LatencyMS == 0 {
			rec.LatencyMS = duration.Milliseconds()
		}
		e.cfg.UsageTracker.Record(rec)
	}

	nr := &result.NodeResult{
		NodeID: node.ID, Status: result.StatusCompleted, Output: res.Output,
		Attempts: attempts, StartedAt: startedAt, FinishedAt: finishedAt,
		Duration: duration, Usage: res.Usage, FromCache: fromCache,
	}
	_ = pctx.SetNodeResult(node.ID, nr)
	e.cfg.Events.OnNodeComplete(runCtx, node.ID, e.name, duration.Milliseconds())
}

func (e *Engine) recordCancelled(runCtx context.Context, node *dag.Node, pctx *pipelinectx.PipelineContext, startedAt time.Time) {
	nr := &result.NodeResult{
		NodeID: node.ID, Status: result.StatusCancelled,
		Err:       flowerrors.NewCancellationError(node.ID, runCtx.Err()),
		StartedAt: startedAt, FinishedAt: time.Now(),
	}
	nr.Duration = nr.FinishedAt.Sub(nr.StartedAt)
	_ = pctx.SetNodeResult(node.ID, nr)
	e.cfg.Events.OnNodeError(runCtx, node.ID, e.name, nr.Err.Error())
}

// shouldSkip reports whether node must be skipped without running its
// step: either because a direct dependency was itself skipped, or failed
// under a policy that propagates the skip downstream, or because the
// node's own ConditionFunc evaluated to false.
func (e *Engine) shouldSkip(node *dag.Node, pctx *pipelinectx.PipelineContext) (bool, string) {
	for _, dep := range e.dag.Predecessors(node.ID) {
		nr, ok := pctx.GetNodeResult(dep)
		if !ok {
			continue
		}
		if nr.Status == result.StatusSkipped {
			return true, fmt.Sprintf("upstream node %q was skipped", dep)
		}
		if nr.Status == result.StatusFailed || nr.Status == result.StatusCancelled {
			depNode := e.dag.Nodes[dep]
			if depNode != nil && depNode.OnFailure == dag.FailureSkipDownstream {
				return true, fmt.Sprintf("upstream node %q failed with skip_downstream policy", dep)
			}
		}
	}
	if node.Condition != nil && !node.Condition(pctx) {
		return true, "condition evaluated false"
	}
	return false, ""
}

// attemptWithRetry runs fn up to node.Retry.MaxAttempts times (at least
// once), applying node.Timeout as a fresh per-attempt deadline and backing
// off between attempts per node.Retry. It returns the number of attempts
// made and the last error if every attempt failed. Retrying stops early,
// without consuming the remaining budget, the instant the run's own
// context is cancelled — there is no point burning attempts against a run
// that is already being torn down.
func (e *Engine) attemptWithRetry(ctx context.Context, node *dag.Node, fn func(context.Context) (step.Result, error)) (step.Result, int, error) {
	maxAttempts := node.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx := ctx
		var cancelAttempt context.CancelFunc
		if node.Timeout > 0 {
			attemptCtx, cancelAttempt = context.WithTimeout(ctx, node.Timeout)
		}
		res, err := fn(attemptCtx)
		if cancelAttempt != nil {
			cancelAttempt()
		}
		if err == nil {
			return res, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return step.Result{}, attempt, err
		}
		if attempt == maxAttempts {
			break
		}

		if backoff := e.backoff(node.Retry, attempt); backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return step.Result{}, attempt, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return step.Result{}, maxAttempts, lastErr
}

// backoff computes the delay before the next attempt, mirroring
// resilience.calculateBackoff's exponential growth (initial * factor^n,
// capped at MaxBackoff) without that helper's jitter — orchestration-level
// retries benefit from determinism in tests more than from jitter's
// thundering-herd protection, which matters more for the outbound calls a
// step itself makes.
func (e *Engine) backoff(p dag.RetryPolicy, attempt int) time.Duration {
	if p.InitialBackoff <= 0 {
		return 0
	}
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 2.0
	}
	delay := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		delay *= factor
	}
	if p.MaxBackoff > 0 && delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}
	return time.Duration(delay)
}

// isNodeOwnTimeout reports whether err is attributed to this node's own
// per-attempt deadline: it returns true when the node has a Timeout set and
// err wraps context.DeadlineExceeded. It does not inspect the run context;
// the caller checks the run context separately. The answer decides whether
// a timed-out node is recorded as Failed (retry budget exhausted) or
// Cancelled (casualty of someone else's abort).
func (e *Engine) isNodeOwnTimeout(node *dag.Node, err error) bool {
	return node.Timeout > 0 && flowerrors.Is(err, context.DeadlineExceeded)
}

// classify wraps a raw step/attempt error in the taxonomy the rest of the
// system matches on.
func (e *Engine) classify(node *dag.Node, attempts int, err error) error {
	if e.isNodeOwnTimeout(node, err) {
		return flowerrors.NewStepTimeoutError(node.ID, node.Timeout)
	}
	if flowerrors.Is(err, context.Canceled) || flowerrors.Is(err, context.DeadlineExceeded) {
		return flowerrors.NewCancellationError(node.ID, err)
	}
	return flowerrors.NewStepError(node.ID, attempts, err)
}

// fingerprint derives a cache key for node from its CacheKey, its own id
// (per DESIGN.md's cache-scope decision, a cache key is scoped per node,
// not shared globally across nodes that happen to choose the same string),
// and a canonical JSON encoding of the context snapshot visible to the node
// at dispatch time — the closest stand-in available to "the node's actual
// input" now that inputs are threaded through typed Ports a step reads for
// itself rather than gathered generically by the engine.
func (e *Engine) fingerprint(node *dag.Node, pctx *pipelinectx.PipelineContext) (string, error) {
	snapshot := pctx.Snapshot()
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("engine: marshaling context snapshot for node %q: %w", node.ID, err)
	}
	return cache.Fingerprint(node.CacheKey, node.ID, string(encoded)), nil
}
