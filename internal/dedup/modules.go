package dedup

import (
	"fmt"
	"sort"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
)

// moduleLeaf is one source's value at some path within a module block,
// carrying enough context to resolve confidence-based tie-breaks.
type moduleLeaf struct {
	source string
	value  any
	entity *model.ExtractedEntity
	module string
}

// mergeModules deep-merges every module block present anywhere in group:
// object keys recurse, scalar arrays union and sort, object arrays are
// winner-take-all (no partial merge without stable element IDs), and any
// remaining scalar or type-mismatched leaf picks a single winner by the
// shared cascade with confidence substituted for quality where declared.
func (m *Merger) mergeModules(group []model.ExtractedEntity) map[string]map[string]any {
	names := make(map[string]bool)
	for _, e := range group {
		for name := range e.Modules {
			names[name] = true
		}
	}
	if len(names) == 0 {
		return nil
	}
	sortedNames := make([]string, 0, len(names))
	for name := range names {
		sortedNames = append(sortedNames, name)
	}
	sort.Strings(sortedNames)

	out := make(map[string]map[string]any, len(sortedNames))
	for _, name := range sortedNames {
		var leaves []moduleLeaf
		for i := range group {
			if block, ok := group[i].Modules[name]; ok {
				leaves = append(leaves, moduleLeaf{source: group[i].Source, value: any(block), entity: &group[i], module: name})
			}
		}
		merged := m.mergeValue("", leaves)
		if block, ok := merged.(map[string]any); ok {
			out[name] = block
		}
	}
	return out
}

func (m *Merger) mergeValue(path string, leaves []moduleLeaf) any {
	var present []moduleLeaf
	for _, l := range leaves {
		if l.value != nil {
			present = append(present, l)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if len(present) == 1 {
		return present[0].value
	}

	if allMaps(present) {
		keys := make(map[string]bool)
		for _, l := range present {
			for k := range l.value.(map[string]any) {
				keys[k] = true
			}
		}
		sortedKeys := make([]string, 0, len(keys))
		for k := range keys {
			sortedKeys = append(sortedKeys, k)
		}
		sort.Strings(sortedKeys)

		result := make(map[string]any, len(sortedKeys))
		for _, k := range sortedKeys {
			var children []moduleLeaf
			for _, l := range present {
				if v, ok := l.value.(map[string]any)[k]; ok {
					children = append(children, moduleLeaf{source: l.source, value: v, entity: l.entity, module: l.module})
				}
			}
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			if merged := m.mergeValue(childPath, children); merged != nil {
				result[k] = merged
			}
		}
		return result
	}

	if allArrays(present) {
		if arraysOfObjects(present) {
			return m.pickLeaf(path, present)
		}
		return unionScalarArray(present)
	}

	// Scalar leaf, or a type mismatch between sources: the cascade picks
	// one source's value wholesale rather than merging incompatible shapes.
	return m.pickLeaf(path, present)
}

func allMaps(leaves []moduleLeaf) bool {
	for _, l := range leaves {
		if _, ok := l.value.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func allArrays(leaves []moduleLeaf) bool {
	for _, l := range leaves {
		if _, ok := l.value.([]any); !ok {
			return false
		}
	}
	return true
}

func arraysOfObjects(leaves []moduleLeaf) bool {
	for _, l := range leaves {
		arr := l.value.([]any)
		if len(arr) == 0 {
			continue
		}
		_, ok := arr[0].(map[string]any)
		return ok
	}
	return false
}

func unionScalarArray(leaves []moduleLeaf) []any {
	seen := make(map[string]any)
	for _, l := range leaves {
		for _, item := range l.value.([]any) {
			seen[fmt.Sprint(item)] = item
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, seen[k])
	}
	return out
}

// pickLeaf picks one winning value wholesale: trust tier, then declared
// confidence at this path if any source carries one, then completeness,
// then default_priority, then lexicographic source name.
func (m *Merger) pickLeaf(path string, leaves []moduleLeaf) any {
	sort.SliceStable(leaves, func(i, j int) bool {
		ti, tj := m.trustTier(leaves[i].source), m.trustTier(leaves[j].source)
		if ti != tj {
			return ti > tj
		}
		ci, cj := leafConfidence(path, leaves[i]), leafConfidence(path, leaves[j])
		if ci != cj {
			return ci > cj
		}
		coi, coj := completenessOf(leaves[i].value), completenessOf(leaves[j].value)
		if coi != coj {
			return coi > coj
		}
		pi, pj := m.defaultPriority(leaves[i].source), m.defaultPriority(leaves[j].source)
		if pi != pj {
			return pi < pj
		}
		return leaves[i].source < leaves[j].source
	})
	return leaves[0].value
}

func leafConfidence(path string, l moduleLeaf) float64 {
	if l.entity == nil || l.entity.ConfidenceByField == nil {
		return 0
	}
	return l.entity.ConfidenceByField[l.module+"."+path]
}

func completenessOf(v any) int {
	switch val := v.(type) {
	case string:
		return len(val)
	case []any:
		return len(val)
	case map[string]any:
		return len(val)
	default:
		return 1
	}
}
