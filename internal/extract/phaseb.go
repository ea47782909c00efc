package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/lens"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
)

// ApplyLens runs Phase B over one already-Phase-A-extracted entity:
// mapping rules populate the canonical dimension arrays, module triggers
// attach modules, and each attached module's field rules populate its
// JSON block. No literal from the lens's vocabulary or canonical values
// appears anywhere in this function's control flow; every branch reads
// only the contract's data.
func (p *Pipeline) ApplyLens(ctx context.Context, contract *lens.Contract, entity *model.ExtractedEntity) error {
	p.applyMappingRules(contract, entity)
	finalizeDimensions(entity)

	attached := attachModules(contract, entity)
	if entity.Modules == nil && len(attached) > 0 {
		entity.Modules = make(map[string]map[string]any)
	}
	for _, name := range attached {
		moduleMap, ok := entity.Modules[name]
		if !ok {
			moduleMap = make(map[string]any)
			entity.Modules[name] = moduleMap
		}
		module := contract.Modules[name]
		p.runDeterministicPass(entity, module, moduleMap)
		if err := p.runLLMPass(ctx, entity, module, moduleMap); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) applyMappingRules(contract *lens.Contract, entity *model.ExtractedEntity) {
	for _, rule := range contract.MappingRules {
		if !rule.Applicability.EntityClassMatches(entity.EntityClass) || !rule.Applicability.SourceMatches(entity.Source) {
			continue
		}
		re, err := p.compiledPattern(rule.Pattern)
		if err != nil {
			// Gate 5 already guarantees every mapping rule pattern compiles
			// at lens load time; this only guards a contract built outside
			// the loader (e.g. directly in tests).
			p.recordFailure(entity.RawIngestionRef, rule.ID, "extraction_rule", err.Error())
			continue
		}
		for _, field := range rule.SourceFields {
			v, ok := entity.RawObservations[field]
			if !ok {
				continue
			}
			if re.MatchString(v) {
				addDimensionValue(entity, rule.Dimension, rule.Value)
				break
			}
		}
	}
}

func addDimensionValue(entity *model.ExtractedEntity, dimension, value string) {
	slice := dimensionSlice(entity, dimension)
	if slice == nil {
		return
	}
	for _, existing := range *slice {
		if existing == value {
			return
		}
	}
	*slice = append(*slice, value)
}

func dimensionSlice(entity *model.ExtractedEntity, dimension string) *[]string {
	switch dimension {
	case "canonical_activities":
		return &entity.CanonicalActivities
	case "canonical_roles":
		return &entity.CanonicalRoles
	case "canonical_place_types":
		return &entity.CanonicalPlaceTypes
	case "canonical_access":
		return &entity.CanonicalAccess
	default:
		return nil
	}
}

// finalizeDimensions sorts every canonical dimension array
// lexicographically before it is used for module triggering or
// persisted; duplicates were already skipped by addDimensionValue.
func finalizeDimensions(entity *model.ExtractedEntity) {
	for _, name := range lens.Dimensions {
		slice := dimensionSlice(entity, name)
		sort.Strings(*slice)
	}
}

// attachModules returns, in a deterministic (sorted) order, the names of
// every module whose trigger fires for entity.
func attachModules(contract *lens.Contract, entity *model.ExtractedEntity) []string {
	seen := make(map[string]bool)
	for _, trig := range contract.ModuleTriggers {
		slice := dimensionSlice(entity, trig.When.Dimension)
		if slice == nil || !anyValueIn(*slice, trig.When.Values) {
			continue
		}
		if !allTriggerConditionsHold(trig.Conditions, entity) {
			continue
		}
		if _, ok := contract.Modules[trig.Module]; !ok {
			continue
		}
		seen[trig.Module] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func anyValueIn(haystack, needles []string) bool {
	set := make(map[string]bool, len(haystack))
	for _, h := range haystack {
		set[h] = true
	}
	for _, n := range needles {
		if set[n] {
			return true
		}
	}
	return false
}

func allTriggerConditionsHold(conditions []lens.ModuleTriggerCondition, entity *model.ExtractedEntity) bool {
	for _, c := range conditions {
		if c.EntityClass != "" && c.EntityClass != string(entity.EntityClass) {
			return false
		}
	}
	return true
}

func (p *Pipeline) runDeterministicPass(entity *model.ExtractedEntity, module lens.Module, moduleMap map[string]any) {
	for _, fr := range module.FieldRules {
		if fr.Extractor == lens.ExtractorLLMStructured {
			continue
		}
		if !fr.Applicability.EntityClassMatches(entity.EntityClass) || !fr.Applicability.SourceMatches(entity.Source) {
			continue
		}
		if _, already := getDottedPath(moduleMap, fr.TargetPath); already {
			continue // first-match-wins per target_path
		}
		if !fieldConditionsHold(fr.Conditions, fr, moduleMap, entity.RawObservations) {
			continue
		}
		value, err := runExtractor(fr, entity.RawObservations)
		if err != nil {
			p.recordFailure(entity.RawIngestionRef, fr.RuleID, "extraction_rule", err.Error())
			continue
		}
		if value == nil {
			continue
		}
		setDottedPath(moduleMap, fr.TargetPath, applyNormalizers(fr.Normalizers, value))
		if fr.Confidence > 0 {
			if entity.ConfidenceByField == nil {
				entity.ConfidenceByField = make(map[string]float64)
			}
			entity.ConfidenceByField[module.Name+"."+fr.TargetPath] = fr.Confidence
		}
	}
}

func fieldConditionsHold(conditions []lens.FieldCondition, fr lens.FieldRule, moduleMap map[string]any, observations map[string]string) bool {
	for _, cond := range conditions {
		switch cond {
		case lens.CondFieldNotPopulated:
			if _, ok := getDottedPath(moduleMap, fr.TargetPath); ok {
				return false
			}
		case lens.CondAnyFieldMissing:
			missing := false
			for _, f := range fr.SourceFields {
				if _, ok := observations[f]; !ok {
					missing = true
					break
				}
			}
			if !missing {
				return false
			}
		case lens.CondSourceHasField:
			has := false
			for _, f := range fr.SourceFields {
				if _, ok := observations[f]; ok {
					has = true
					break
				}
			}
			if !has {
				return false
			}
		case lens.CondValuePresent:
			if _, ok := firstSourceValue(fr, observations); !ok {
				return false
			}
		}
	}
	return true
}

// runLLMPass collects every unresolved llm_structured field rule in
// module, makes at most one combined StructuredExtract call, and writes
// back only the fields that both came back and have supporting evidence
// in their declared source_fields, capping confidence at the rule's
// declared value.
func (p *Pipeline) runLLMPass(ctx context.Context, entity *model.ExtractedEntity, module lens.Module, moduleMap map[string]any) error {
	if p.structured == nil {
		return nil
	}
	var pending []lens.FieldRule
	for _, fr := range module.FieldRules {
		if fr.Extractor != lens.ExtractorLLMStructured {
			continue
		}
		if !fr.Applicability.EntityClassMatches(entity.EntityClass) || !fr.Applicability.SourceMatches(entity.Source) {
			continue
		}
		if _, already := getDottedPath(moduleMap, fr.TargetPath); already {
			continue
		}
		if !fieldConditionsHold(fr.Conditions, fr, moduleMap, entity.RawObservations) {
			continue
		}
		pending = append(pending, fr)
	}
	if len(pending) == 0 {
		return nil
	}

	schema := buildCombinedSchema(pending)
	text := observationsAsText(entity.RawObservations)

	values, err := p.structured.Extract(ctx, schema, text)
	if err != nil {
		for _, fr := range pending {
			p.recordFailure(entity.RawIngestionRef, fr.RuleID, "llm_extraction", err.Error())
		}
		return nil
	}

	for _, fr := range pending {
		v, ok := values[fr.TargetPath]
		if !ok || v == nil {
			continue
		}
		if !hasSourceEvidence(fr, entity.RawObservations) {
			continue
		}
		setDottedPath(moduleMap, fr.TargetPath, applyNormalizers(fr.Normalizers, v))
		if entity.ConfidenceByField == nil {
			entity.ConfidenceByField = make(map[string]float64)
		}
		entity.ConfidenceByField[module.Name+"."+fr.TargetPath] = fr.Confidence
	}
	return nil
}

func hasSourceEvidence(fr lens.FieldRule, observations map[string]string) bool {
	_, ok := firstSourceValue(fr, observations)
	return ok
}

func buildCombinedSchema(rules []lens.FieldRule) map[string]any {
	properties := make(map[string]any, len(rules))
	for _, fr := range rules {
		properties[fr.TargetPath] = map[string]any{"type": "string"}
	}
	return map[string]any{"type": "object", "properties": properties}
}

func observationsAsText(observations map[string]string) string {
	keys := make([]string, 0, len(observations))
	for k := range observations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, observations[k])
	}
	return b.String()
}
