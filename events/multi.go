package events

import (
	"context"

	"github.com/kbukum/flowcore/logger"
)

// Multi fans a single notification out to every handler in the slice,
// calling them one after another on the caller's goroutine and recovering
// and logging a panic so that one failing handler does not stop the others
// or the pipeline (spec §4.6). A slow handler delays the handlers after it.
type Multi struct {
	Handlers []Handler
	log      *logger.Logger
}

// NewMulti builds a Multi over the given handlers, logging observer
// failures with log (falling back to the package-global logger if nil).
func NewMulti(log *logger.Logger, handlers ...Handler) *Multi {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Multi{Handlers: handlers, log: log.WithComponent("events")}
}

func (m *Multi) guard(method string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Warn("event handler panicked", map[string]interface{}{
				"method": method,
				"panic":  r,
			})
		}
	}()
	fn()
}

func (m *Multi) OnNodeStart(ctx context.Context, nodeID, pipelineName string) {
	for _, h := range m.Handlers {
		h := h
		m.guard("OnNodeStart", func() { h.OnNodeStart(ctx, nodeID, pipelineName) })
	}
}

func (m *Multi) OnNodeComplete(ctx context.Context, nodeID, pipelineName string, latencyMS int64) {
	for _, h := range m.Handlers {
		h := h
		m.guard("OnNodeComplete", func() { h.OnNodeComplete(ctx, nodeID, pipelineName, latencyMS) })
	}
}

func (m *Multi) OnNodeError(ctx context.Context, nodeID, pipelineName, errorMessage string) {
	for _, h := range m.Handlers {
		h := h
		m.guard("OnNodeError", func() { h.OnNodeError(ctx, nodeID, pipelineName, errorMessage) })
	}
}

func (m *Multi) OnNodeSkip(ctx context.Context, nodeID, pipelineName, reason string) {
	for _, h := range m.Handlers {
		h := h
		m.guard("OnNodeSkip", func() { h.OnNodeSkip(ctx, nodeID, pipelineName, reason) })
	}
}

func (m *Multi) OnPipelineComplete(ctx context.Context, pipelineName string, success bool, durationMS int64) {
	for _, h := range m.Handlers {
		h := h
		m.guard("OnPipelineComplete", func() { h.OnPipelineComplete(ctx, pipelineName, success, durationMS) })
	}
}

var _ Handler = (*Multi)(nil)
