// Package events declares the pipeline's EventHandler protocol: the set of
// lifecycle notifications the engine emits as nodes and runs transition,
// plus a few ready-made implementations (a no-op base, a fan-out to many
// handlers, and logging/metrics/SSE observers). The shape mirrors the
// teacher's dag.WithLogging/WithMetrics/WithTracing node decorators
// generalized from "wraps one Node" to "observes every node in a run",
// since an EventHandler is a cross-cutting pipeline concern rather than a
// per-node wrapper.
package events

import "context"

// Handler receives best-effort lifecycle notifications from a running
// pipeline. Every method is optional for an implementer that embeds NoOp;
// a failing or panicking Handler must never affect pipeline execution — the
// engine recovers and logs, it does not propagate.
type Handler interface {
	OnNodeStart(ctx context.Context, nodeID, pipelineName string)
	OnNodeComplete(ctx context.Context, nodeID, pipelineName string, latencyMS int64)
	OnNodeError(ctx context.Context, nodeID, pipelineName, errorMessage string)
	OnNodeSkip(ctx context.Context, nodeID, pipelineName, reason string)
	OnPipelineComplete(ctx context.Context, pipelineName string, success bool, durationMS int64)
}

// NoOp implements Handler with empty methods. Embed it in a concrete
// handler to pick and override only the notifications that matter.
type NoOp struct{}

func (NoOp) OnNodeStart(context.Context, string, string)                {}
func (NoOp) OnNodeComplete(context.Context, string, string, int64)      {}
func (NoOp) OnNodeError(context.Context, string, string, string)        {}
func (NoOp) OnNodeSkip(context.Context, string, string, string)         {}
func (NoOp) OnPipelineComplete(context.Context, string, bool, int64)    {}

var _ Handler = NoOp{}
