package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/planner"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubExtractor turns every raw payload into one candidate carrying the
// source name as entity name, enough for orchestration-level assertions
// without depending on internal/extract.
type stubExtractor struct {
	fail map[string]bool
}

func (s stubExtractor) ExtractPrimitives(source string, raw model.RawIngestion) ([]model.ExtractedEntity, error) {
	if s.fail[source] {
		return nil, errors.New("boom")
	}
	return []model.ExtractedEntity{{
		EntityClass: model.ClassPlace,
		Primitives:  model.Primitives{EntityName: source},
	}}, nil
}

func newTestOrchestrator(t *testing.T, connectors map[string]registry.Connector, specs map[string]model.ConnectorSpec, extractor PrimitiveExtractor) (*Orchestrator, *registry.Registry) {
	t.Helper()
	reg := registry.NewRegistry(specs)
	adapter := registry.NewAdapter(reg, connectors)
	return New(adapter, reg, extractor, Config{MaxInFlightPerPhase: 4, PhaseTimeout: 2 * time.Second, GlobalTimeout: 5 * time.Second}), reg
}

func spec(name string, phase model.Phase, trust model.TrustTier) model.ConnectorSpec {
	return model.ConnectorSpec{Name: name, Phase: phase, TrustTier: trust, Timeout: time.Second, DefaultPriority: 10}
}

func TestOrchestrator_SingleSourceSuccess(t *testing.T) {
	mock := registry.NewMockConnector(map[string]registry.MockRecord{
		"q": {Body: map[string]any{"name": "Powerleague"}},
	})
	orc, _ := newTestOrchestrator(t,
		map[string]registry.Connector{"google_places": mock},
		map[string]model.ConnectorSpec{"google_places": spec("google_places", model.PhaseDiscovery, model.TrustHigh)},
		stubExtractor{})

	plan := &planner.Plan{Invocations: []planner.ConnectorInvocation{
		{Connector: "google_places", Phase: model.PhaseDiscovery, Params: map[string]string{"q": "q"}},
	}}
	execCtx := model.NewExecutionContext(model.Request{Mode: model.DiscoverMany}, "hash", 0)

	report := orc.Run(context.Background(), execCtx, plan)
	require.Len(t, report.Candidates, 1)
	assert.Equal(t, "google_places", report.Candidates[0].Source)
	assert.Equal(t, "ok", report.Metrics["google_places"].Status)
	assert.False(t, report.Cancelled)

	require.Len(t, report.RawIngestions, 1)
	assert.Equal(t, "google_places", report.RawIngestions[0].Source)
}

func TestOrchestrator_FailedFetchIsNotRecordedAsRawIngestion(t *testing.T) {
	badConn := registry.ConnectorFunc(func(ctx context.Context, params map[string]string) (registry.RawPayload, error) {
		return registry.RawPayload{}, &model.SourceError{Kind: model.KindTimeout}
	})
	orc, _ := newTestOrchestrator(t,
		map[string]registry.Connector{"osm": badConn},
		map[string]model.ConnectorSpec{"osm": spec("osm", model.PhaseDiscovery, model.TrustLow)},
		stubExtractor{})

	plan := &planner.Plan{Invocations: []planner.ConnectorInvocation{
		{Connector: "osm", Phase: model.PhaseDiscovery},
	}}
	execCtx := model.NewExecutionContext(model.Request{Mode: model.DiscoverMany}, "hash", 0)

	report := orc.Run(context.Background(), execCtx, plan)
	assert.Empty(t, report.RawIngestions)
}

func TestOrchestrator_FailureIsolation(t *testing.T) {
	goodMock := registry.NewMockConnector(map[string]registry.MockRecord{"q": {Body: map[string]any{}}})
	badConn := registry.ConnectorFunc(func(ctx context.Context, params map[string]string) (registry.RawPayload, error) {
		return registry.RawPayload{}, &model.SourceError{Kind: model.KindRateLimited}
	})

	orc, _ := newTestOrchestrator(t,
		map[string]registry.Connector{"google_places": goodMock, "serper": badConn},
		map[string]model.ConnectorSpec{
			"google_places": spec("google_places", model.PhaseDiscovery, model.TrustHigh),
			"serper":         spec("serper", model.PhaseDiscovery, model.TrustMedium),
		},
		stubExtractor{})

	plan := &planner.Plan{Invocations: []planner.ConnectorInvocation{
		{Connector: "google_places", Phase: model.PhaseDiscovery, Params: map[string]string{"q": "q"}},
		{Connector: "serper", Phase: model.PhaseDiscovery},
	}}
	execCtx := model.NewExecutionContext(model.Request{Mode: model.DiscoverMany}, "hash", 0)

	report := orc.Run(context.Background(), execCtx, plan)
	require.Len(t, report.Candidates, 1)
	assert.Equal(t, "google_places", report.Candidates[0].Source)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, model.KindRateLimited, report.Errors[0].Kind)
	assert.Equal(t, "serper", report.Errors[0].Source)
	assert.Equal(t, 0, report.Metrics["serper"].Count)
}

func TestOrchestrator_BudgetGatedDropsRecorded(t *testing.T) {
	orc, _ := newTestOrchestrator(t, nil, nil, stubExtractor{})
	plan := &planner.Plan{
		Dropped: []planner.Dropped{
			{Connector: "serper", Reason: planner.DropBudgetGated},
			{Connector: "google_places", Reason: planner.DropBudgetGated},
		},
	}
	execCtx := model.NewExecutionContext(model.Request{}, "hash", 0)
	report := orc.Run(context.Background(), execCtx, plan)

	assert.Equal(t, "budget_gated", report.Metrics["serper"].Status)
	assert.Equal(t, "budget_gated", report.Metrics["google_places"].Status)
}

func TestOrchestrator_PhaseBarrier(t *testing.T) {
	discoveryMock := registry.NewMockConnector(map[string]registry.MockRecord{"q": {Body: map[string]any{}}})
	enrichMock := registry.NewMockConnector(map[string]registry.MockRecord{"q": {Body: map[string]any{}}})

	orc, _ := newTestOrchestrator(t,
		map[string]registry.Connector{"osm": discoveryMock, "companies_house": enrichMock},
		map[string]model.ConnectorSpec{
			"osm":             spec("osm", model.PhaseDiscovery, model.TrustLow),
			"companies_house": spec("companies_house", model.PhaseEnrichment, model.TrustHigh),
		},
		stubExtractor{})

	plan := &planner.Plan{Invocations: []planner.ConnectorInvocation{
		{Connector: "companies_house", Phase: model.PhaseEnrichment, Params: map[string]string{"q": "q"}},
		{Connector: "osm", Phase: model.PhaseDiscovery, Params: map[string]string{"q": "q"}},
	}}
	execCtx := model.NewExecutionContext(model.Request{Mode: model.DiscoverMany}, "hash", 0)

	report := orc.Run(context.Background(), execCtx, plan)
	assert.Len(t, report.Candidates, 2)
	assert.Equal(t, "ok", report.Metrics["osm"].Status)
	assert.Equal(t, "ok", report.Metrics["companies_house"].Status)
}
