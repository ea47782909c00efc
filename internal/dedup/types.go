// Package dedup groups ExtractedEntity candidates that refer to the same
// real-world entity, merges each group by a deterministic field-group
// strategy table, and finalizes the result into a slugged, upsert-ready
// Entity.
package dedup

import (
	"math"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
)

// ConnectorInfo resolves a connector name to its registered spec. Satisfied
// by *registry.Registry without an import on that package, matching the
// duck-typed capability interfaces used across this codebase (see
// orchestrator.PrimitiveExtractor).
type ConnectorInfo interface {
	Get(name string) (model.ConnectorSpec, error)
}

// Merger groups, merges and finalizes one run's candidates into entities.
type Merger struct {
	info ConnectorInfo
}

// New creates a Merger backed by a connector info source used for
// trust-tier and default-priority tie-breaking.
func New(info ConnectorInfo) *Merger {
	return &Merger{info: info}
}

func (m *Merger) trustTier(source string) model.TrustTier {
	spec, err := m.info.Get(source)
	if err != nil {
		return model.TrustLow
	}
	return spec.TrustTier
}

func (m *Merger) defaultPriority(source string) int {
	spec, err := m.info.Get(source)
	if err != nil {
		return math.MaxInt // unregistered sources sort last
	}
	return spec.DefaultPriority
}
