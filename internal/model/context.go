package model

import (
	"sync"
	"time"
)

// ConnectorMetrics is the per-connector observation recorded by the
// orchestrator: latency, cost, candidate count and terminal status.
type ConnectorMetrics struct {
	Connector string
	Phase     Phase
	Status    string // "ok", "error", "cancelled", "budget_gated"
	Latency   time.Duration
	CostUSD   float64
	Count     int
	Reason    string // populated for budget_gated / error
}

// RunError is one entry in the error list surfaced in a run's final report.
type RunError struct {
	Kind    SourceErrorKind
	Source  string
	RuleID  string
	Message string
}

// ExecutionContext is the mutable, single-owner, per-run carrier threaded
// through planning, orchestration, extraction and merge. It is the only
// shared mutable state in a run; callers must honour the field access
// rules documented on each field below.
type ExecutionContext struct {
	Request  Request
	LensHash string

	// candidates is written only via AppendCandidate: a single append-only
	// critical section guarded by candidatesMu, giving multiple concurrent
	// producers a no-lost-update guarantee without a dedicated consumer
	// goroutine.
	candidatesMu sync.Mutex
	candidates   []ExtractedEntity

	// rawIngestions mirrors candidates: one append per successful fetch,
	// captured before the payload is discarded post-extraction, so the
	// caller can persist the audit trail once the run completes.
	rawIngestionsMu sync.Mutex
	rawIngestions   []RawIngestion

	// metrics is keyed by connector name; each key has its own lock
	// acquisition but the map itself is guarded by metricsMu since Go maps
	// are not safe for concurrent writes even under disjoint keys.
	metricsMu sync.Mutex
	metrics   map[string]*ConnectorMetrics

	// errors is append-only under a single lock.
	errorsMu sync.Mutex
	errors   []RunError

	budgetMu        sync.Mutex
	budgetRemaining float64

	cancelled *bool
	cancelMu  *sync.RWMutex
}

// NewExecutionContext creates a fresh per-run context with the given
// starting budget. The budget is taken literally: 0 is a zero allowance,
// not "unlimited", and the orchestrator stops at the next phase boundary
// once the remaining budget drops below zero.
func NewExecutionContext(req Request, lensHash string, budgetUSD float64) *ExecutionContext {
	cancelled := false
	return &ExecutionContext{
		Request:         req,
		LensHash:        lensHash,
		metrics:         make(map[string]*ConnectorMetrics),
		budgetRemaining: budgetUSD,
		cancelled:       &cancelled,
		cancelMu:        &sync.RWMutex{},
	}
}

// AppendCandidate records one extracted entity from a connector's payload.
func (c *ExecutionContext) AppendCandidate(e ExtractedEntity) {
	c.candidatesMu.Lock()
	defer c.candidatesMu.Unlock()
	c.candidates = append(c.candidates, e)
}

// Candidates returns a snapshot copy of all candidates appended so far.
func (c *ExecutionContext) Candidates() []ExtractedEntity {
	c.candidatesMu.Lock()
	defer c.candidatesMu.Unlock()
	out := make([]ExtractedEntity, len(c.candidates))
	copy(out, c.candidates)
	return out
}

// AppendRawIngestion records one successful fetch for later persistence.
func (c *ExecutionContext) AppendRawIngestion(raw RawIngestion) {
	c.rawIngestionsMu.Lock()
	defer c.rawIngestionsMu.Unlock()
	c.rawIngestions = append(c.rawIngestions, raw)
}

// RawIngestions returns a snapshot copy of all raw ingestions recorded so far.
func (c *ExecutionContext) RawIngestions() []RawIngestion {
	c.rawIngestionsMu.Lock()
	defer c.rawIngestionsMu.Unlock()
	out := make([]RawIngestion, len(c.rawIngestions))
	copy(out, c.rawIngestions)
	return out
}

// RecordMetrics upserts the metrics row for a connector under its own
// critical section.
func (c *ExecutionContext) RecordMetrics(m ConnectorMetrics) {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()
	c.metrics[m.Connector] = &m
}

// Metrics returns a snapshot copy of all recorded connector metrics.
func (c *ExecutionContext) Metrics() map[string]ConnectorMetrics {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()
	out := make(map[string]ConnectorMetrics, len(c.metrics))
	for k, v := range c.metrics {
		out[k] = *v
	}
	return out
}

// RecordError appends a run error.
func (c *ExecutionContext) RecordError(e RunError) {
	c.errorsMu.Lock()
	defer c.errorsMu.Unlock()
	c.errors = append(c.errors, e)
}

// Errors returns a snapshot copy of all recorded errors.
func (c *ExecutionContext) Errors() []RunError {
	c.errorsMu.Lock()
	defer c.errorsMu.Unlock()
	out := make([]RunError, len(c.errors))
	copy(out, c.errors)
	return out
}

// SpendBudget deducts cost from the remaining budget and reports whether
// the deduction kept the run within budget (false means the run is now
// over budget, a signal the orchestrator treats as an early-stop
// condition at the next phase boundary).
func (c *ExecutionContext) SpendBudget(costUSD float64) (remaining float64, withinBudget bool) {
	c.budgetMu.Lock()
	defer c.budgetMu.Unlock()
	c.budgetRemaining -= costUSD
	return c.budgetRemaining, c.budgetRemaining >= 0
}

// BudgetRemaining returns the current remaining budget.
func (c *ExecutionContext) BudgetRemaining() float64 {
	c.budgetMu.Lock()
	defer c.budgetMu.Unlock()
	return c.budgetRemaining
}

// Cancel marks the run cancelled. Idempotent.
func (c *ExecutionContext) Cancel() {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	*c.cancelled = true
}

// Cancelled reports whether the run has been cancelled.
func (c *ExecutionContext) Cancelled() bool {
	c.cancelMu.RLock()
	defer c.cancelMu.RUnlock()
	return *c.cancelled
}
