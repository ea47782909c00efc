package dedup

import (
	"time"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
)

// Run groups, merges and finalizes one run's candidates into entities
// ready for upsert-by-slug persistence. It is a pure function of its
// inputs plus the connector registry's static trust/priority metadata:
// the same candidates and lens always produce byte-identical output.
func (m *Merger) Run(candidates []model.ExtractedEntity, now time.Time) []model.Entity {
	groups := Group(candidates)
	entities := make([]model.Entity, 0, len(groups))
	for _, group := range groups {
		entity := m.MergeGroup(group)
		entity.Slug = Slug(entity.Primitives.EntityName, entity.Primitives.City)
		entity.UpdatedAt = now
		entities = append(entities, entity)
	}
	return entities
}
