package dedup

import (
	"fmt"
	"sort"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
)

// fieldCandidate is one source's contribution to a single scalar field.
type fieldCandidate struct {
	source string
	value  string
}

// MergeGroup produces one Entity from a dedup group by the field-group
// strategy table: identity/display fields prefer non-null then trust then
// length; geo primitives are taken as a whole point from the single
// highest-trust source (coordinates are never averaged); contact fields
// use a structural quality score before falling back to trust;
// canonical dimension arrays union and sort; modules deep-merge; every
// strategy cascades to the same deterministic tie-breaker.
func (m *Merger) MergeGroup(group []model.ExtractedEntity) model.Entity {
	entity := model.Entity{
		SourceInfo:  make(map[string]model.SourceFieldInfo),
		ExternalIDs: make(map[string]string),
	}

	entity.EntityClass = m.pickEntityClass(group)

	display := []struct {
		field string
		get   func(model.ExtractedEntity) string
		set   func(string)
	}{
		{"entity_name", func(e model.ExtractedEntity) string { return e.Primitives.EntityName }, func(v string) { entity.Primitives.EntityName = v }},
		{"street_address", func(e model.ExtractedEntity) string { return e.Primitives.StreetAddress }, func(v string) { entity.Primitives.StreetAddress = v }},
		{"city", func(e model.ExtractedEntity) string { return e.Primitives.City }, func(v string) { entity.Primitives.City = v }},
		{"postcode", func(e model.ExtractedEntity) string { return e.Primitives.Postcode }, func(v string) { entity.Primitives.Postcode = v }},
		{"country", func(e model.ExtractedEntity) string { return e.Primitives.Country }, func(v string) { entity.Primitives.Country = v }},
	}
	for _, d := range display {
		value, source := m.bestString(candidatesFor(group, d.get), neutralQuality, false)
		d.set(value)
		m.recordSource(&entity, d.field, source)
	}

	contact := []struct {
		field   string
		get     func(model.ExtractedEntity) string
		set     func(string)
		quality func(string) int
	}{
		{"phone", func(e model.ExtractedEntity) string { return e.Primitives.Phone }, func(v string) { entity.Primitives.Phone = v }, phoneQuality},
		{"email", func(e model.ExtractedEntity) string { return e.Primitives.Email }, func(v string) { entity.Primitives.Email = v }, emailQuality},
		{"website_url", func(e model.ExtractedEntity) string { return e.Primitives.WebsiteURL }, func(v string) { entity.Primitives.WebsiteURL = v }, websiteQuality},
	}
	for _, c := range contact {
		value, source := m.bestString(candidatesFor(group, c.get), c.quality, true)
		c.set(value)
		m.recordSource(&entity, c.field, source)
	}

	lat, lng, geoSource := m.pickGeo(group)
	entity.Primitives.Latitude = lat
	entity.Primitives.Longitude = lng
	if geoSource != "" {
		m.recordSource(&entity, "coordinates", geoSource)
	}

	entity.CanonicalActivities = unionSorted(group, func(e model.ExtractedEntity) []string { return e.CanonicalActivities })
	entity.CanonicalRoles = unionSorted(group, func(e model.ExtractedEntity) []string { return e.CanonicalRoles })
	entity.CanonicalPlaceTypes = unionSorted(group, func(e model.ExtractedEntity) []string { return e.CanonicalPlaceTypes })
	entity.CanonicalAccess = unionSorted(group, func(e model.ExtractedEntity) []string { return e.CanonicalAccess })

	entity.Modules = m.mergeModules(group)

	for _, e := range group {
		for k, v := range e.ExternalIDs {
			entity.ExternalIDs[k] = v
		}
	}
	entity.DiscoveredBy = sortedUniqueSources(group)

	return entity
}

func candidatesFor(group []model.ExtractedEntity, get func(model.ExtractedEntity) string) []fieldCandidate {
	out := make([]fieldCandidate, 0, len(group))
	for _, e := range group {
		out = append(out, fieldCandidate{source: e.Source, value: get(e)})
	}
	return out
}

func neutralQuality(string) int { return 0 }

// bestString applies the shared cascade, prefering non-empty values first.
// Identity/display fields rank trust ahead of quality (quality is neutral
// there, so this reduces to "trust, then length"); contact fields rank
// their structural quality score ahead of trust, per the field-group
// strategy table. Both orders fall through to length, default_priority,
// then lexicographic source.
func (m *Merger) bestString(cands []fieldCandidate, quality func(string) int, qualityFirst bool) (string, string) {
	pool := cands
	var nonEmpty []fieldCandidate
	for _, c := range cands {
		if c.value != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	if len(nonEmpty) > 0 {
		pool = nonEmpty
	}
	if len(pool) == 0 {
		return "", ""
	}
	sort.SliceStable(pool, func(i, j int) bool {
		ti, tj := m.trustTier(pool[i].source), m.trustTier(pool[j].source)
		qi, qj := quality(pool[i].value), quality(pool[j].value)
		if qualityFirst {
			if qi != qj {
				return qi > qj
			}
			if ti != tj {
				return ti > tj
			}
		} else {
			if ti != tj {
				return ti > tj
			}
			if qi != qj {
				return qi > qj
			}
		}
		if len(pool[i].value) != len(pool[j].value) {
			return len(pool[i].value) > len(pool[j].value)
		}
		pi, pj := m.defaultPriority(pool[i].source), m.defaultPriority(pool[j].source)
		if pi != pj {
			return pi < pj
		}
		return pool[i].source < pool[j].source
	})
	return pool[0].value, pool[0].source
}

// pickGeo returns one source's coordinate pair as a unit: highest trust,
// tie-broken by decimal-place precision. Coordinates are never averaged.
func (m *Merger) pickGeo(group []model.ExtractedEntity) (*float64, *float64, string) {
	type geoCandidate struct {
		source         string
		lat, lng       float64
		decimalPlaces  int
	}
	var cands []geoCandidate
	for _, e := range group {
		if e.Primitives.Latitude == nil || e.Primitives.Longitude == nil {
			continue
		}
		cands = append(cands, geoCandidate{
			source:        e.Source,
			lat:           *e.Primitives.Latitude,
			lng:           *e.Primitives.Longitude,
			decimalPlaces: decimalPlaces(*e.Primitives.Latitude) + decimalPlaces(*e.Primitives.Longitude),
		})
	}
	if len(cands) == 0 {
		return nil, nil, ""
	}
	sort.SliceStable(cands, func(i, j int) bool {
		ti, tj := m.trustTier(cands[i].source), m.trustTier(cands[j].source)
		if ti != tj {
			return ti > tj
		}
		if cands[i].decimalPlaces != cands[j].decimalPlaces {
			return cands[i].decimalPlaces > cands[j].decimalPlaces
		}
		pi, pj := m.defaultPriority(cands[i].source), m.defaultPriority(cands[j].source)
		if pi != pj {
			return pi < pj
		}
		return cands[i].source < cands[j].source
	})
	winner := cands[0]
	lat, lng := winner.lat, winner.lng
	return &lat, &lng, winner.source
}

func decimalPlaces(f float64) int {
	s := fmt.Sprintf("%g", f)
	for i, r := range s {
		if r == '.' {
			return len(s) - i - 1
		}
	}
	return 0
}

func (m *Merger) recordSource(entity *model.Entity, field, source string) {
	if source == "" {
		return
	}
	entity.SourceInfo[field] = model.SourceFieldInfo{Source: source, Trust: m.trustTier(source)}
}

func unionSorted(group []model.ExtractedEntity, get func(model.ExtractedEntity) []string) []string {
	seen := make(map[string]bool)
	for _, e := range group {
		for _, v := range get(e) {
			seen[v] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func sortedUniqueSources(group []model.ExtractedEntity) []string {
	seen := make(map[string]bool)
	for _, e := range group {
		seen[e.Source] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (m *Merger) pickEntityClass(group []model.ExtractedEntity) model.EntityClass {
	cands := make([]fieldCandidate, 0, len(group))
	for _, e := range group {
		cands = append(cands, fieldCandidate{source: e.Source, value: string(e.EntityClass)})
	}
	value, _ := m.bestString(cands, neutralQuality, false)
	return model.EntityClass(value)
}
