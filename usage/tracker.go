// Package usage aggregates token and cost usage across a pipeline run. It
// generalizes the cost-estimator shape seen in the retrieval corpus (atomic
// running totals guarded by a read-write mutex, a configurable per-token
// price) into a bounded ring of UsageRecords the engine appends to as steps
// complete, with rollups filterable by agent or correlation id.
package usage

import (
	"sync"
	"time"
)

// UsageRecord captures the usage a single node execution consumed.
type UsageRecord struct {
	NodeID           string
	Agent            string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostUSD          float64
	LatencyMS        int64
	CorrelationID    string
	Timestamp        time.Time
}

// PriceConfig prices a model's prompt and completion tokens per million
// tokens, mirroring the cost-config shape the corpus uses for estimating
// spend before an external call is even made.
type PriceConfig struct {
	InputPricePerMillion  float64
	OutputPricePerMillion float64
}

// EstimateCostUSD returns the dollar cost of the given token counts under cfg.
func (cfg PriceConfig) EstimateCostUSD(promptTokens, completionTokens int) float64 {
	input := float64(promptTokens) / 1_000_000 * cfg.InputPricePerMillion
	output := float64(completionTokens) / 1_000_000 * cfg.OutputPricePerMillion
	return input + output
}

// UsageSummary is a rollup over some set of UsageRecords — either every
// record currently retained by a Tracker, or a filtered subset of it.
type UsageSummary struct {
	RecordCount           int
	TotalPromptTokens     int
	TotalCompletionTokens int
	TotalTokens           int
	TotalCostUSD          float64
	TotalLatencyMS        int64
}

func summarize(records []UsageRecord) UsageSummary {
	var s UsageSummary
	for _, r := range records {
		s.RecordCount++
		s.TotalPromptTokens += r.PromptTokens
		s.TotalCompletionTokens += r.CompletionTokens
		s.TotalTokens += r.TotalTokens
		s.TotalCostUSD += r.CostUSD
		s.TotalLatencyMS += r.LatencyMS
	}
	return s
}

// Tracker is a bounded, append-only ring of UsageRecords. Once the ring is
// full, recording a new entry evicts the oldest (FIFO); an evicted record's
// cost still counts toward cumulativeCostUSD so budget tracking survives
// eviction even though get_summary-style rollups only ever see what is
// currently retained. Safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	history []UsageRecord
	head    int
	size    int
	cap     int

	cumulativeCostUSD float64
}

// NewTracker creates a Tracker retaining at most maxRecords records (0 or
// negative means unbounded history; cumulativeCostUSD then always equals
// get_summary().TotalCostUSD since nothing is ever evicted).
func NewTracker(maxRecords int) *Tracker {
	t := &Tracker{}
	if maxRecords > 0 {
		t.cap = maxRecords
		t.history = make([]UsageRecord, maxRecords)
	}
	return t
}

// Record appends a usage record, evicting the oldest retained record if the
// ring is full. The evicted record's cost remains credited to
// CumulativeCostUSD.
func (t *Tracker) Record(rec UsageRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.cumulativeCostUSD += rec.CostUSD

	if t.cap > 0 {
		idx := (t.head + t.size) % t.cap
		if t.size < t.cap {
			t.size++
		} else {
			// ring is full: overwriting head evicts the oldest record,
			// whose cost has already been folded into cumulativeCostUSD
			// above and is never subtracted back out.
			t.head = (t.head + 1) % t.cap
		}
		t.history[idx] = rec
		return
	}

	t.history = append(t.history, rec)
	t.size++
}

// Records returns every currently retained record, oldest first.
func (t *Tracker) Records() []UsageRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.retainedLocked()
}

// retainedLocked must be called with mu held (read or write).
func (t *Tracker) retainedLocked() []UsageRecord {
	out := make([]UsageRecord, 0, t.size)
	if t.cap > 0 {
		for i := 0; i < t.size; i++ {
			out = append(out, t.history[(t.head+i)%t.cap])
		}
		return out
	}
	return append(out, t.history...)
}

// GetSummary rolls up every currently retained record.
func (t *Tracker) GetSummary() UsageSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return summarize(t.retainedLocked())
}

// GetSummaryForAgent rolls up currently retained records whose Agent
// matches name.
func (t *Tracker) GetSummaryForAgent(name string) UsageSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var filtered []UsageRecord
	for _, r := range t.retainedLocked() {
		if r.Agent == name {
			filtered = append(filtered, r)
		}
	}
	return summarize(filtered)
}

// GetSummaryForCorrelation rolls up currently retained records whose
// CorrelationID matches id. A run whose records have all been evicted from
// the ring rolls up to the zero UsageSummary (RecordCount 0), per the
// contract that retained-only rollups forget evicted records while
// CumulativeCostUSD does not.
func (t *Tracker) GetSummaryForCorrelation(id string) UsageSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var filtered []UsageRecord
	for _, r := range t.retainedLocked() {
		if r.CorrelationID == id {
			filtered = append(filtered, r)
		}
	}
	return summarize(filtered)
}

// CumulativeCostUSD returns the total cost of every record ever recorded
// since the last Reset, including records since evicted from the ring. It
// is monotonically non-decreasing between resets.
func (t *Tracker) CumulativeCostUSD() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cumulativeCostUSD
}

// Reset clears all retained records and the cumulative cost counter.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.head = 0
	t.size = 0
	t.cumulativeCostUSD = 0
	if t.cap > 0 {
		t.history = make([]UsageRecord, t.cap)
	} else {
		t.history = nil
	}
}
