package usage

import "testing"

func TestTracker_RecordAndSummary(t *testing.T) {
	tr := NewTracker(0)
	tr.Record(UsageRecord{NodeID: "n1", Agent: "a1", Model: "gpt", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, CostUSD: 0.01, LatencyMS: 100, CorrelationID: "run1"})
	tr.Record(UsageRecord{NodeID: "n2", Agent: "a2", Model: "gpt", PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30, CostUSD: 0.02, LatencyMS: 200, CorrelationID: "run1"})

	summary := tr.GetSummary()
	if summary.RecordCount != 2 {
		t.Errorf("expected 2 records, got %d", summary.RecordCount)
	}
	if summary.TotalTokens != 45 {
		t.Errorf("expected 45 total tokens, got %d", summary.TotalTokens)
	}
	if summary.TotalCostUSD != 0.03 {
		t.Errorf("expected 0.03 total cost, got %f", summary.TotalCostUSD)
	}
	if summary.TotalLatencyMS != 300 {
		t.Errorf("expected 300 total latency, got %d", summary.TotalLatencyMS)
	}
}

func TestTracker_GetSummaryForAgentAndCorrelation(t *testing.T) {
	tr := NewTracker(0)
	tr.Record(UsageRecord{Agent: "a1", CorrelationID: "run1", TotalTokens: 10, CostUSD: 0.1})
	tr.Record(UsageRecord{Agent: "a2", CorrelationID: "run1", TotalTokens: 20, CostUSD: 0.2})
	tr.Record(UsageRecord{Agent: "a1", CorrelationID: "run2", TotalTokens: 30, CostUSD: 0.3})

	byAgent := tr.GetSummaryForAgent("a1")
	if byAgent.RecordCount != 2 || byAgent.TotalTokens != 40 {
		t.Errorf("expected 2 records / 40 tokens for a1, got %+v", byAgent)
	}

	byRun := tr.GetSummaryForCorrelation("run1")
	if byRun.RecordCount != 2 || byRun.TotalTokens != 30 {
		t.Errorf("expected 2 records / 30 tokens for run1, got %+v", byRun)
	}
}

// TestTracker_EvictionPreservesCumulativeCost matches spec scenario G: a
// bounded ring evicts the oldest record, get_summary only reflects what is
// retained, but cumulative cost never drops.
func TestTracker_EvictionPreservesCumulativeCost(t *testing.T) {
	tr := NewTracker(2)
	tr.Record(UsageRecord{NodeID: "n1", CostUSD: 1.0, TotalTokens: 10})
	tr.Record(UsageRecord{NodeID: "n2", CostUSD: 2.0, TotalTokens: 20})
	tr.Record(UsageRecord{NodeID: "n3", CostUSD: 3.0, TotalTokens: 30}) // evicts n1

	records := tr.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 retained records, got %d", len(records))
	}
	if records[0].NodeID != "n2" || records[1].NodeID != "n3" {
		t.Errorf("expected retained records [n2, n3] oldest-first, got %+v", records)
	}

	summary := tr.GetSummary()
	if summary.TotalCostUSD != 5.0 {
		t.Errorf("expected retained-only cost 5.0, got %f", summary.TotalCostUSD)
	}

	if got := tr.CumulativeCostUSD(); got != 6.0 {
		t.Errorf("expected cumulative cost 6.0 surviving eviction, got %f", got)
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(0)
	tr.Record(UsageRecord{CostUSD: 5.0, TotalTokens: 50})
	tr.Reset()

	if len(tr.Records()) != 0 {
		t.Error("expected no retained records after Reset")
	}
	if tr.CumulativeCostUSD() != 0 {
		t.Error("expected cumulative cost reset to 0")
	}
}

func TestPriceConfig_EstimateCostUSD(t *testing.T) {
	cfg := PriceConfig{InputPricePerMillion: 3.0, OutputPricePerMillion: 15.0}
	got := cfg.EstimateCostUSD(1_000_000, 1_000_000)
	want := 18.0
	if got != want {
		t.Errorf("expected cost %f, got %f", want, got)
	}
}
