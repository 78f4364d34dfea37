package events

import (
	"context"
	"time"

	"github.com/kbukum/flowcore/observability"
)

// MetricsHandler records node/pipeline lifecycle events as OpenTelemetry
// instruments, grounded on dag.WithMetrics's RecordOperation/RecordError
// calls but applied to the whole run rather than one wrapped Node.
type MetricsHandler struct {
	NoOp
	metrics *observability.Metrics
}

// NewMetricsHandler builds a MetricsHandler over an existing instrument set.
func NewMetricsHandler(metrics *observability.Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

func (h *MetricsHandler) OnNodeComplete(ctx context.Context, nodeID, pipelineName string, latencyMS int64) {
	h.metrics.RecordOperation(ctx, pipelineName, nodeID, "ok", time.Duration(latencyMS)*time.Millisecond)
}

func (h *MetricsHandler) OnNodeError(ctx context.Context, nodeID, pipelineName, _ string) {
	h.metrics.RecordError(ctx, "node_failed", nodeID)
	h.metrics.RecordOperation(ctx, pipelineName, nodeID, "error", 0)
}

func (h *MetricsHandler) OnPipelineComplete(ctx context.Context, pipelineName string, success bool, durationMS int64) {
	status := "ok"
	if !success {
		status = "error"
	}
	h.metrics.RecordOperation(ctx, pipelineName, "pipeline", status, time.Duration(durationMS)*time.Millisecond)
}

var _ Handler = (*MetricsHandler)(nil)
