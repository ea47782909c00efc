package planner

import (
	"sort"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/lens"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/registry"
)

// Planner builds deterministic execution plans from a Request, a loaded
// lens contract and the connector registry.
type Planner struct {
	registry *registry.Registry
}

// New creates a Planner over the given connector registry.
func New(reg *registry.Registry) *Planner {
	return &Planner{registry: reg}
}

// Plan produces an ordered, budget-gated execution plan. Given the same
// lens, request and registry, Plan is byte-identical across calls.
func (p *Planner) Plan(req model.Request, contract *lens.Contract) (*Plan, error) {
	features := ExtractFeatures(req.Query, contract.Vocabulary)

	candidates := p.selectCandidates(contract, features)
	candidates = applyModeOrdering(candidates, req.Mode, p.registry)

	sort.SliceStable(candidates, func(i, j int) bool {
		si, _ := p.registry.Get(candidates[i].Connector)
		sj, _ := p.registry.Get(candidates[j].Connector)
		if si.Phase != sj.Phase {
			return phaseRank(si.Phase) < phaseRank(sj.Phase)
		}
		pi := candidates[i].Priority
		pj := candidates[j].Priority
		if pi != pj {
			return pi < pj
		}
		return candidates[i].Connector < candidates[j].Connector
	})

	kept, dropped := p.gateBudget(candidates, req.BudgetUSD)

	return &Plan{Invocations: kept, Dropped: dropped}, nil
}

// selectCandidates schedules every connector whose rule trigger matches
// the extracted features, using the rule-provided parameters.
func (p *Planner) selectCandidates(contract *lens.Contract, features Features) []ConnectorInvocation {
	matched := make(map[string]bool, len(features.MatchedKeywords))
	for _, kw := range features.MatchedKeywords {
		matched[kw] = true
	}

	var out []ConnectorInvocation
	for _, rule := range contract.ConnectorRules {
		if !triggerMatches(rule, matched) {
			continue
		}
		spec, err := p.registry.Get(rule.Connector)
		if err != nil {
			// Gate 3 at lens load time already guarantees every
			// connector_rules key exists in the registry; this branch
			// only guards against a registry shrinking after load.
			continue
		}
		expected := rule.ExpectedCalls
		if expected <= 0 {
			expected = 1
		}
		out = append(out, ConnectorInvocation{
			Connector:     rule.Connector,
			Phase:         spec.Phase,
			Priority:      spec.DefaultPriority,
			Params:        rule.Params,
			ExpectedCalls: expected,
			CostPerCall:   spec.CostPerCallUSD,
		})
	}
	return out
}

// triggerMatches reports whether any of the rule's trigger keywords was
// matched. A rule with no trigger keywords always fires (an
// always-on connector, e.g. a free baseline source).
func triggerMatches(rule lens.ConnectorRule, matched map[string]bool) bool {
	if len(rule.TriggerKeywords) == 0 {
		return true
	}
	for _, kw := range rule.TriggerKeywords {
		if matched[kw] {
			return true
		}
	}
	return false
}

// applyModeOrdering re-prioritises candidates: RESOLVE_ONE favours
// high-trust enrichment connectors first, DISCOVER_MANY favours broad
// discovery first. Priority numbers are shifted (lower wins)
// rather than replaced, so a lens author's relative ordering within a
// phase/trust group is preserved.
func applyModeOrdering(candidates []ConnectorInvocation, mode model.Mode, reg *registry.Registry) []ConnectorInvocation {
	for i := range candidates {
		spec, err := reg.Get(candidates[i].Connector)
		if err != nil {
			continue
		}
		switch mode {
		case model.ResolveOne:
			if spec.Phase == model.PhaseEnrichment && spec.TrustTier == model.TrustHigh {
				candidates[i].Priority -= 1000
			}
		case model.DiscoverMany:
			if spec.Phase == model.PhaseDiscovery {
				candidates[i].Priority -= 1000
			}
		}
	}
	return candidates
}

func phaseRank(p model.Phase) int {
	if p == model.PhaseDiscovery {
		return 0
	}
	return 1
}

// gateBudget sums cost_per_call_usd * expected_calls across candidates
// and drops connectors in descending cost order until the sum is within
// budget. Free connectors are never dropped. A nil budget
// means unlimited.
func (p *Planner) gateBudget(candidates []ConnectorInvocation, budgetUSD *float64) ([]ConnectorInvocation, []Dropped) {
	if budgetUSD == nil {
		return candidates, nil
	}
	budget := *budgetUSD

	kept := append([]ConnectorInvocation(nil), candidates...)
	total := totalCost(kept)

	// Stable order by descending cost, ties broken by connector name so
	// the drop sequence — and therefore the final plan — is deterministic.
	order := append([]ConnectorInvocation(nil), kept...)
	sort.SliceStable(order, func(i, j int) bool {
		ci := order[i].CostPerCall * float64(order[i].ExpectedCalls)
		cj := order[j].CostPerCall * float64(order[j].ExpectedCalls)
		if ci != cj {
			return ci > cj
		}
		return order[i].Connector < order[j].Connector
	})

	var dropped []Dropped
	droppedSet := make(map[string]bool)
	for _, c := range order {
		if total <= budget {
			break
		}
		if c.CostPerCall == 0 {
			continue // free connectors are never dropped
		}
		droppedSet[c.Connector] = true
		total -= c.CostPerCall * float64(c.ExpectedCalls)
		dropped = append(dropped, Dropped{Connector: c.Connector, Reason: DropBudgetGated})
	}

	if len(droppedSet) == 0 {
		return kept, nil
	}

	final := kept[:0]
	for _, c := range kept {
		if !droppedSet[c.Connector] {
			final = append(final, c)
		}
	}

	sort.SliceStable(dropped, func(i, j int) bool { return dropped[i].Connector < dropped[j].Connector })

	return final, dropped
}

func totalCost(candidates []ConnectorInvocation) float64 {
	var total float64
	for _, c := range candidates {
		total += c.CostPerCall * float64(c.ExpectedCalls)
	}
	return total
}
