// Package orchestrator runs a planner.Plan: phase-barriered worker pools
// call the connector adapter, run Phase-A extraction on each raw payload,
// and thread cancellation/budget/metrics through a model.ExecutionContext.
// Grounded on pkg/agent/orchestrator/runner.go's SubAgentRunner (buffered
// result channel, guarded execution map, atomic pending counter) and
// pkg/queue/pool.go's WorkerPool (per-phase worker goroutines, graceful
// stop).
package orchestrator

import (
	"context"
	"time"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
)

// PrimitiveExtractor is the Phase-A contract: given a raw payload from a
// named source, return the structural candidate records it contains.
// Implementations must not emit canonical dimensions or modules — those
// belong to Phase B.
type PrimitiveExtractor interface {
	ExtractPrimitives(source string, raw model.RawIngestion) ([]model.ExtractedEntity, error)
}

// Fetcher is the subset of the registry adapter the orchestrator depends
// on, declared locally so this package has no import on internal/registry
// concrete types beyond what it needs to call.
type Fetcher interface {
	Fetch(ctx context.Context, name string, params map[string]string, deadline time.Time) (model.RawIngestion, error)
}

// Config tunes the orchestrator's concurrency and timeouts.
type Config struct {
	// MaxInFlightPerPhase caps concurrent workers within one phase.
	MaxInFlightPerPhase int
	// PhaseTimeout bounds how long one phase may run before its
	// remaining invocations are cancelled.
	PhaseTimeout time.Duration
	// GlobalTimeout bounds the whole run: Run sets the run deadline to
	// its start time plus this value.
	GlobalTimeout time.Duration
}

// DefaultConfig returns the baseline tuning: 4-way per-phase concurrency,
// a 60s phase timeout, and a 300s global timeout.
func DefaultConfig() Config {
	return Config{
		MaxInFlightPerPhase: 4,
		PhaseTimeout:        60 * time.Second,
		GlobalTimeout:       300 * time.Second,
	}
}

// Report is what the orchestrator returns once a run completes: a
// snapshot suitable for building the user-visible run report.
type Report struct {
	Metrics       map[string]model.ConnectorMetrics
	Errors        []model.RunError
	Candidates    []model.ExtractedEntity
	RawIngestions []model.RawIngestion
	Cancelled     bool
}
