package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/planner"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/registry"
)

// Orchestrator runs a plan's invocations phase by phase under a strict
// phase barrier.
type Orchestrator struct {
	fetcher   Fetcher
	registry  *registry.Registry
	extractor PrimitiveExtractor
	cfg       Config
}

// New creates an Orchestrator.
func New(fetcher Fetcher, reg *registry.Registry, extractor PrimitiveExtractor, cfg Config) *Orchestrator {
	return &Orchestrator{fetcher: fetcher, registry: reg, extractor: extractor, cfg: cfg}
}

// Run executes plan against execCtx. It returns once every phase has
// completed, been cancelled, or an early-stop condition fired.
func (o *Orchestrator) Run(ctx context.Context, execCtx *model.ExecutionContext, plan *planner.Plan) Report {
	runDeadline := time.Now().Add(o.cfg.GlobalTimeout)
	runCtx, cancelRun := context.WithDeadline(ctx, runDeadline)
	defer cancelRun()

	for _, dropped := range plan.Dropped {
		execCtx.RecordMetrics(model.ConnectorMetrics{
			Connector: dropped.Connector,
			Status:    "budget_gated",
			Reason:    string(dropped.Reason),
		})
	}

	phases := groupByPhase(plan.Invocations)
	for _, phase := range []model.Phase{model.PhaseDiscovery, model.PhaseEnrichment} {
		invocations := phases[phase]
		if len(invocations) == 0 {
			continue
		}

		if o.shouldStop(execCtx, runDeadline) {
			o.markCancelled(execCtx, invocations)
			break
		}

		o.runPhase(runCtx, execCtx, phase, invocations, runDeadline)

		if execCtx.Cancelled() {
			break
		}
	}

	return Report{
		Metrics:       execCtx.Metrics(),
		Errors:        execCtx.Errors(),
		Candidates:    execCtx.Candidates(),
		RawIngestions: execCtx.RawIngestions(),
		Cancelled:     execCtx.Cancelled(),
	}
}

// runPhase runs one phase's invocations through a bounded worker pool and
// waits for all of them to finish or for the phase timeout to elapse:
// every invocation in phase N completes or is cancelled before phase N+1
// begins.
func (o *Orchestrator) runPhase(
	ctx context.Context,
	execCtx *model.ExecutionContext,
	phase model.Phase,
	invocations []planner.ConnectorInvocation,
	runDeadline time.Time,
) {
	phaseDeadline := time.Now().Add(o.cfg.PhaseTimeout)
	if phaseDeadline.After(runDeadline) {
		phaseDeadline = runDeadline
	}
	phaseCtx, cancelPhase := context.WithDeadline(ctx, phaseDeadline)
	defer cancelPhase()

	work := make(chan planner.ConnectorInvocation, len(invocations))
	for _, inv := range invocations {
		work <- inv
	}
	close(work)

	workers := o.cfg.MaxInFlightPerPhase
	if workers <= 0 || workers > len(invocations) {
		workers = len(invocations)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for inv := range work {
				select {
				case <-phaseCtx.Done():
					o.recordCancelled(execCtx, inv, phase)
					continue
				default:
				}
				o.invoke(phaseCtx, execCtx, inv, phase, runDeadline)

				if execCtx.Cancelled() {
					return
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-phaseCtx.Done():
		<-done // workers observe ctx.Done() at their next loop iteration and exit promptly
	}
}

// invoke performs one connector call, Phase-A extraction, and metrics
// recording. It never panics the worker on a connector failure: failures
// are classified and recorded in execCtx.Errors.
func (o *Orchestrator) invoke(
	ctx context.Context,
	execCtx *model.ExecutionContext,
	inv planner.ConnectorInvocation,
	phase model.Phase,
	runDeadline time.Time,
) {
	start := time.Now()

	deadline := runDeadline
	spec, err := o.registry.Get(inv.Connector)
	if err == nil {
		specDeadline := time.Now().Add(spec.Timeout)
		if specDeadline.Before(deadline) {
			deadline = specDeadline
		}
	}

	raw, err := o.fetcher.Fetch(ctx, inv.Connector, inv.Params, deadline)
	latency := time.Since(start)

	if err != nil {
		kind := model.KindTransient
		if se, ok := err.(*model.SourceError); ok {
			kind = se.Kind
		}
		execCtx.RecordMetrics(model.ConnectorMetrics{
			Connector: inv.Connector, Phase: phase, Status: "error",
			Latency: latency, CostUSD: 0, Count: 0, Reason: string(kind),
		})
		execCtx.RecordError(model.RunError{Kind: kind, Source: inv.Connector, Message: err.Error()})
		return
	}

	execCtx.SpendBudget(inv.CostPerCall)
	execCtx.AppendRawIngestion(raw)

	entities, err := o.extractor.ExtractPrimitives(inv.Connector, raw)
	if err != nil {
		execCtx.RecordMetrics(model.ConnectorMetrics{
			Connector: inv.Connector, Phase: phase, Status: "error",
			Latency: latency, CostUSD: inv.CostPerCall, Count: 0, Reason: string(model.KindMalformed),
		})
		execCtx.RecordError(model.RunError{Kind: model.KindMalformed, Source: inv.Connector, Message: err.Error()})
		return
	}

	for _, e := range entities {
		e.Source = inv.Connector
		execCtx.AppendCandidate(e)
	}

	execCtx.RecordMetrics(model.ConnectorMetrics{
		Connector: inv.Connector, Phase: phase, Status: "ok",
		Latency: latency, CostUSD: inv.CostPerCall, Count: len(entities),
	})
}

func (o *Orchestrator) recordCancelled(execCtx *model.ExecutionContext, inv planner.ConnectorInvocation, phase model.Phase) {
	slog.Debug("connector invocation cancelled", "connector", inv.Connector, "phase", phase)
	execCtx.RecordMetrics(model.ConnectorMetrics{
		Connector: inv.Connector, Phase: phase, Status: "cancelled", Count: 0,
	})
}

func (o *Orchestrator) markCancelled(execCtx *model.ExecutionContext, invocations []planner.ConnectorInvocation) {
	for _, inv := range invocations {
		o.recordCancelled(execCtx, inv, inv.Phase)
	}
}

// shouldStop reports the early-stop conditions checked at each phase
// boundary: budget exhausted, RESOLVE_ONE reached a high-confidence
// match, or the wall-clock deadline elapsed.
func (o *Orchestrator) shouldStop(execCtx *model.ExecutionContext, runDeadline time.Time) bool {
	if time.Now().After(runDeadline) {
		execCtx.Cancel()
		return true
	}
	if execCtx.BudgetRemaining() < 0 {
		execCtx.Cancel()
		return true
	}
	if execCtx.Request.Mode == model.ResolveOne && hasHighConfidenceMatch(execCtx, o.registry) {
		execCtx.Cancel()
		return true
	}
	return false
}

// hasHighConfidenceMatch reports whether any candidate so far was
// contributed by a high-trust connector and carries both a name and
// either coordinates or a contact point — sufficient evidence in
// RESOLVE_ONE mode to stop issuing further enrichment calls.
func hasHighConfidenceMatch(execCtx *model.ExecutionContext, reg *registry.Registry) bool {
	for _, c := range execCtx.Candidates() {
		spec, err := reg.Get(c.Source)
		if err != nil || spec.TrustTier != model.TrustHigh {
			continue
		}
		if c.Primitives.EntityName == "" {
			continue
		}
		hasGeo := c.Primitives.Latitude != nil && c.Primitives.Longitude != nil
		hasContact := c.Primitives.Phone != "" || c.Primitives.WebsiteURL != ""
		if hasGeo || hasContact {
			return true
		}
	}
	return false
}

func groupByPhase(invs []planner.ConnectorInvocation) map[model.Phase][]planner.ConnectorInvocation {
	out := make(map[model.Phase][]planner.ConnectorInvocation)
	for _, inv := range invs {
		out[inv.Phase] = append(out[inv.Phase], inv)
	}
	return out
}
