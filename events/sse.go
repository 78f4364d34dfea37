package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kbukum/flowcore/logger"
	"github.com/kbukum/flowcore/sse"
)

// Event is the wire shape every pipeline lifecycle notification is encoded
// as before being broadcast over SSE, giving external observers (the
// Studio UI, a log shipper) one stable JSON envelope regardless of which
// notification produced it.
type Event struct {
	Type         string    `json:"type"`
	PipelineName string    `json:"pipeline_name"`
	NodeID       string    `json:"node_id,omitempty"`
	LatencyMS    int64     `json:"latency_ms,omitempty"`
	DurationMS   int64     `json:"duration_ms,omitempty"`
	Success      *bool     `json:"success,omitempty"`
	Error        string    `json:"error,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

const (
	EventNodeStart        = "node_start"
	EventNodeComplete     = "node_complete"
	EventNodeError        = "node_error"
	EventNodeSkip         = "node_skip"
	EventPipelineComplete = "pipeline_complete"
)

// SSEHandler publishes every lifecycle notification to an sse.Broadcaster
// so a connected client (see sse.ServeSSE) observes a run live, matching
// spec.md §4.6's "streaming event protocol for live observation". Pattern
// is the glob pattern passed to BroadcastToPattern — by default every
// connected client ("*"), narrow it to target only clients subscribed to
// this pipeline's own channel.
type SSEHandler struct {
	NoOp
	Broadcaster sse.Broadcaster
	Pattern     string
	log         *logger.Logger
}

// NewSSEHandler builds an SSEHandler broadcasting to pattern (default "*"
// when empty) over b.
func NewSSEHandler(b sse.Broadcaster, pattern string) *SSEHandler {
	if pattern == "" {
		pattern = "*"
	}
	return &SSEHandler{Broadcaster: b, Pattern: pattern, log: logger.GetGlobalLogger().WithComponent("events.sse")}
}

func (h *SSEHandler) publish(ev Event) {
	ev.Timestamp = time.Now()
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("failed to marshal pipeline event", map[string]interface{}{"error": err.Error()})
		return
	}
	h.Broadcaster.BroadcastToPattern(h.Pattern, data)
}

func (h *SSEHandler) OnNodeStart(_ context.Context, nodeID, pipelineName string) {
	h.publish(Event{Type: EventNodeStart, PipelineName: pipelineName, NodeID: nodeID})
}

func (h *SSEHandler) OnNodeComplete(_ context.Context, nodeID, pipelineName string, latencyMS int64) {
	h.publish(Event{Type: EventNodeComplete, PipelineName: pipelineName, NodeID: nodeID, LatencyMS: latencyMS})
}

func (h *SSEHandler) OnNodeError(_ context.Context, nodeID, pipelineName, errorMessage string) {
	h.publish(Event{Type: EventNodeError, PipelineName: pipelineName, NodeID: nodeID, Error: errorMessage})
}

func (h *SSEHandler) OnNodeSkip(_ context.Context, nodeID, pipelineName, reason string) {
	h.publish(Event{Type: EventNodeSkip, PipelineName: pipelineName, NodeID: nodeID, Reason: reason})
}

func (h *SSEHandler) OnPipelineComplete(_ context.Context, pipelineName string, success bool, durationMS int64) {
	h.publish(Event{Type: EventPipelineComplete, PipelineName: pipelineName, Success: &success, DurationMS: durationMS})
}

var _ Handler = (*SSEHandler)(nil)
