// Package planner interprets a Request using the lens vocabulary and
// produces a deterministic, ordered execution plan.
package planner

import "github.com/LarjGit/edinburgh-finds-sub004/internal/model"

// ConnectorInvocation is one scheduled call in the plan.
type ConnectorInvocation struct {
	Connector     string
	Phase         model.Phase
	Priority      int
	Params        map[string]string
	ExpectedCalls int
	CostPerCall   float64
}

// DropReason explains why a connector considered by rule-matching was not
// scheduled.
type DropReason string

const (
	DropBudgetGated DropReason = "budget_gated"
)

// Dropped records one connector excluded from the final plan.
type Dropped struct {
	Connector string
	Reason    DropReason
}

// Plan is the planner's full output: the ordered invocations plus a
// record of anything budget-gated out, for the user-visible report.
type Plan struct {
	Invocations []ConnectorInvocation
	Dropped     []Dropped
}

// Features is what the planner extracts from Request.Query using only
// lens.Vocabulary — the engine never hardcodes domain terms itself.
type Features struct {
	MatchedKeywords      []string
	MatchedLocationHints []string
	HasProperNounHint    bool // "category vs specific-entity" classification
}
