package events

import (
	"context"

	"github.com/kbukum/flowcore/logger"
)

// LoggingHandler logs every node and pipeline transition at the same
// level/field conventions as dag.WithLogging in the teacher package:
// debug on success, error on failure.
type LoggingHandler struct {
	NoOp
	log *logger.Logger
}

// NewLoggingHandler builds a LoggingHandler writing through log.
func NewLoggingHandler(log *logger.Logger) *LoggingHandler {
	return &LoggingHandler{log: log.WithComponent("pipeline")}
}

func (h *LoggingHandler) OnNodeStart(_ context.Context, nodeID, pipelineName string) {
	h.log.Debug("node started", map[string]interface{}{
		"node": nodeID, "pipeline": pipelineName,
	})
}

func (h *LoggingHandler) OnNodeComplete(_ context.Context, nodeID, pipelineName string, latencyMS int64) {
	h.log.Debug("node completed", map[string]interface{}{
		"node": nodeID, "pipeline": pipelineName, "latency_ms": latencyMS,
	})
}

func (h *LoggingHandler) OnNodeError(_ context.Context, nodeID, pipelineName, errorMessage string) {
	h.log.Error("node failed", map[string]interface{}{
		"node": nodeID, "pipeline": pipelineName, "error": errorMessage,
	})
}

func (h *LoggingHandler) OnNodeSkip(_ context.Context, nodeID, pipelineName, reason string) {
	h.log.Debug("node skipped", map[string]interface{}{
		"node": nodeID, "pipeline": pipelineName, "reason": reason,
	})
}

func (h *LoggingHandler) OnPipelineComplete(_ context.Context, pipelineName string, success bool, durationMS int64) {
	fields := map[string]interface{}{
		"pipeline": pipelineName, "success": success, "duration_ms": durationMS,
	}
	if success {
		h.log.Info("pipeline completed", fields)
	} else {
		h.log.Warn("pipeline completed with failure", fields)
	}
}

var _ Handler = (*LoggingHandler)(nil)
