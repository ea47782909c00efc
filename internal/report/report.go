// Package report builds the structured, user-visible summary of one
// discovery run: selected connectors, per-connector outcomes, candidates
// found, final entities, persistence outcomes and the enumerated error
// list. It never carries a stack trace into user-visible output.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/orchestrator"
)

// ConnectorOutcome is one row of the per-connector section.
type ConnectorOutcome struct {
	Connector string
	Phase     model.Phase
	Status    string
	LatencyMS int64
	CostUSD   float64
	Count     int
	Reason    string
}

// PersistenceOutcome records whether a finalized entity was written.
type PersistenceOutcome struct {
	Slug  string
	Error string // empty on success
}

// Report is the complete, user-facing account of a run.
type Report struct {
	Query              string
	Mode               model.Mode
	SelectedConnectors []string
	Connectors         []ConnectorOutcome
	CandidatesFound    int
	Entities           []model.Entity
	Persistence        []PersistenceOutcome
	Errors             []model.RunError
	Cancelled          bool
}

// Build assembles a Report from an orchestrator run, the finalized
// entities it produced, and the persistence outcome for each.
func Build(req model.Request, orchReport orchestrator.Report, entities []model.Entity, persistence []PersistenceOutcome) Report {
	connectors := make([]ConnectorOutcome, 0, len(orchReport.Metrics))
	selected := make([]string, 0, len(orchReport.Metrics))
	for name, m := range orchReport.Metrics {
		selected = append(selected, name)
		connectors = append(connectors, ConnectorOutcome{
			Connector: m.Connector,
			Phase:     m.Phase,
			Status:    m.Status,
			LatencyMS: m.Latency.Milliseconds(),
			CostUSD:   m.CostUSD,
			Count:     m.Count,
			Reason:    m.Reason,
		})
	}
	sort.Strings(selected)
	sort.Slice(connectors, func(i, j int) bool { return connectors[i].Connector < connectors[j].Connector })

	return Report{
		Query:              req.Query,
		Mode:               req.Mode,
		SelectedConnectors: selected,
		Connectors:         connectors,
		CandidatesFound:    len(orchReport.Candidates),
		Entities:           entities,
		Persistence:        persistence,
		Errors:             orchReport.Errors,
		Cancelled:          orchReport.Cancelled,
	}
}

// Succeeded reports whether the run produced at least one entity, or was
// explicitly a no-results query (zero candidates, zero errors).
func (r Report) Succeeded() bool {
	if r.Cancelled {
		return false
	}
	if len(r.Entities) > 0 {
		return true
	}
	return r.CandidatesFound == 0 && len(r.Errors) == 0
}

// Format renders the report as plain text for CLI output, grounded on
// the FormatSubAgentResult convention of building the message line by
// line with fmt rather than a template engine.
func (r Report) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "query: %q mode: %s\n", r.Query, r.Mode)
	if r.Cancelled {
		b.WriteString("status: cancelled\n")
	}

	fmt.Fprintf(&b, "\nconnectors (%d selected):\n", len(r.SelectedConnectors))
	for _, c := range r.Connectors {
		reason := ""
		if c.Reason != "" {
			reason = fmt.Sprintf(" reason=%s", c.Reason)
		}
		fmt.Fprintf(&b, "  %-16s phase=%-10s status=%-10s latency=%5dms cost=$%.4f count=%d%s\n",
			c.Connector, c.Phase, c.Status, c.LatencyMS, c.CostUSD, c.Count, reason)
	}

	fmt.Fprintf(&b, "\ncandidates found: %d\n", r.CandidatesFound)

	fmt.Fprintf(&b, "\nentities (%d):\n", len(r.Entities))
	for _, e := range r.Entities {
		fmt.Fprintf(&b, "  %s  %s  class=%s  discovered_by=%s\n",
			e.Slug, e.Primitives.EntityName, e.EntityClass, strings.Join(e.DiscoveredBy, ","))
	}

	if len(r.Persistence) > 0 {
		fmt.Fprintf(&b, "\npersistence (%d):\n", len(r.Persistence))
		for _, p := range r.Persistence {
			if p.Error == "" {
				fmt.Fprintf(&b, "  %s: ok\n", p.Slug)
			} else {
				fmt.Fprintf(&b, "  %s: failed: %s\n", p.Slug, p.Error)
			}
		}
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "\nerrors (%d):\n", len(r.Errors))
		for _, e := range r.Errors {
			rule := ""
			if e.RuleID != "" {
				rule = fmt.Sprintf(" rule=%s", e.RuleID)
			}
			fmt.Fprintf(&b, "  [%s] source=%s%s: %s\n", e.Kind, e.Source, rule, e.Message)
		}
	} else {
		b.WriteString("\nerrors: none\n")
	}

	return b.String()
}
