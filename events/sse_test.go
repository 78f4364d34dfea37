package events

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeBroadcaster struct {
	pattern string
	data    []byte
}

func (f *fakeBroadcaster) BroadcastToPattern(pattern string, data []byte) {
	f.pattern = pattern
	f.data = data
}

func TestSSEHandler_OnNodeComplete_PublishesEvent(t *testing.T) {
	b := &fakeBroadcaster{}
	h := NewSSEHandler(b, "run.123")

	h.OnNodeComplete(context.Background(), "n1", "my-pipeline", 42)

	if b.pattern != "run.123" {
		t.Errorf("expected broadcast pattern run.123, got %s", b.pattern)
	}

	var ev Event
	if err := json.Unmarshal(b.data, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.Type != EventNodeComplete {
		t.Errorf("expected type %s, got %s", EventNodeComplete, ev.Type)
	}
	if ev.NodeID != "n1" || ev.PipelineName != "my-pipeline" || ev.LatencyMS != 42 {
		t.Errorf("unexpected event fields: %+v", ev)
	}
}

func TestSSEHandler_DefaultPattern(t *testing.T) {
	h := NewSSEHandler(&fakeBroadcaster{}, "")
	if h.Pattern != "*" {
		t.Errorf("expected default pattern \"*\", got %q", h.Pattern)
	}
}
