package lens

import (
	"regexp"
)

// gate1Structural checks required sections are present (gate 1).
func gate1Structural(doc *Document) error {
	if doc.ID == "" {
		return &ValidationError{Code: CodeStructuralSchema, Details: "missing id"}
	}
	if len(doc.Vocabulary.Keywords) == 0 && len(doc.Vocabulary.LocationHints) == 0 {
		return newValidationError(CodeStructuralSchema, "vocabulary must declare at least one keyword or location hint")
	}
	if len(doc.CanonicalValues) == 0 {
		return newValidationError(CodeStructuralSchema, "canonical_values registry is empty")
	}
	for i, r := range doc.MappingRules {
		if r.ID == "" {
			return newValidationError(CodeStructuralSchema, "mapping_rules[%d] missing id", i)
		}
		if r.Pattern == "" {
			return newValidationError(CodeStructuralSchema, "mapping_rule %s missing pattern", r.ID)
		}
		if r.Dimension == "" || r.Value == "" {
			return newValidationError(CodeStructuralSchema, "mapping_rule %s missing dimension/value", r.ID)
		}
	}
	for i, m := range doc.Modules {
		if m.Name == "" {
			return newValidationError(CodeStructuralSchema, "modules[%d] missing name", i)
		}
		for j, fr := range m.FieldRules {
			if fr.RuleID == "" {
				return newValidationError(CodeStructuralSchema, "module %s field_rules[%d] missing rule_id", m.Name, j)
			}
			if fr.TargetPath == "" {
				return newValidationError(CodeStructuralSchema, "field rule %s missing target_path", fr.RuleID)
			}
			if !isKnownExtractor(fr.Extractor) {
				return newValidationError(CodeStructuralSchema, "field rule %s has unknown extractor kind %q", fr.RuleID, fr.Extractor)
			}
		}
	}
	if doc.ValidationEntity.EntityClass == "" {
		return newValidationError(CodeStructuralSchema, "validation_entity.entity_class is required for smoke-coverage gate")
	}
	return nil
}

func isKnownExtractor(k ExtractorKind) bool {
	switch k {
	case ExtractorNumericParser, ExtractorRegexCapture, ExtractorJSONPath,
		ExtractorBooleanCoerce, ExtractorCoalesce, ExtractorNormalize,
		ExtractorArrayBuilder, ExtractorStringTemplate, ExtractorLLMStructured:
		return true
	default:
		return false
	}
}

// gate2CanonicalReference checks every mapping_rule.value exists as a key
// in canonical_values, and every module named in module_triggers.
// add_modules (modeled here as ModuleTrigger.Module) exists in modules
// (gate 2).
func gate2CanonicalReference(doc *Document) error {
	for _, r := range doc.MappingRules {
		values, ok := doc.CanonicalValues[r.Dimension]
		if !ok {
			return newValidationError(CodeCanonicalReference, "mapping_rule %s references unknown dimension %q", r.ID, r.Dimension)
		}
		if !contains(values, r.Value) {
			return newValidationError(CodeCanonicalReference, "mapping_rule %s value %q is not a key in canonical_values[%s]", r.ID, r.Value, r.Dimension)
		}
	}

	modules := make(map[string]struct{}, len(doc.Modules))
	for _, m := range doc.Modules {
		modules[m.Name] = struct{}{}
	}
	for _, t := range doc.ModuleTriggers {
		if _, ok := modules[t.Module]; !ok {
			return newValidationError(CodeCanonicalReference, "module_trigger references unknown module %q", t.Module)
		}
	}
	return nil
}

// gate3ConnectorReference checks every connector_rules key exists in the
// registry (gate 3).
func gate3ConnectorReference(doc *Document, known map[string]struct{}) error {
	for _, r := range doc.ConnectorRules {
		if _, ok := known[r.Connector]; !ok {
			return newValidationError(CodeConnectorReference, "connector_rules references unregistered connector %q", r.Connector)
		}
	}
	return nil
}

// gate4UniqueRuleIDs checks rule_id uniqueness across mapping and field
// rules (gate 4).
func gate4UniqueRuleIDs(doc *Document) error {
	seen := make(map[string]string)
	for _, r := range doc.MappingRules {
		if prev, ok := seen[r.ID]; ok {
			return newValidationError(CodeDuplicateRuleID, "rule_id %q reused (%s, mapping_rules)", r.ID, prev)
		}
		seen[r.ID] = "mapping_rules"
	}
	for _, m := range doc.Modules {
		for _, fr := range m.FieldRules {
			if prev, ok := seen[fr.RuleID]; ok {
				return newValidationError(CodeDuplicateRuleID, "rule_id %q reused (%s, module %s)", fr.RuleID, prev, m.Name)
			}
			seen[fr.RuleID] = "module:" + m.Name
		}
	}
	return nil
}

// gate5PatternsCompile compiles every mapping rule pattern once, reused
// during Phase B (gate 5).
func gate5PatternsCompile(doc *Document) (compiledPatterns, error) {
	out := make(compiledPatterns, len(doc.MappingRules))
	for _, r := range doc.MappingRules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, newValidationError(CodePatternCompile, "mapping_rule %s pattern %q: %v", r.ID, r.Pattern, err)
		}
		out[r.ID] = re
	}
	return out, nil
}

// gate6SmokeCoverage runs the lens's own validation_entity fixture through
// the Phase B interpreter and requires it to produce at least one
// non-empty canonical dimension and one non-empty module (gate 6).
// This import-cycle-free self-check re-implements the narrow slice of the
// Phase B algorithm needed (mapping-rule match + module trigger), rather
// than importing internal/extract, since internal/extract's rule executor
// depends on lens.Contract and importing it back here would cycle.
func gate6SmokeCoverage(doc *Document, contract *Contract, patterns compiledPatterns) error {
	obs := doc.ValidationEntity.RawObservations
	class := doc.ValidationEntity.EntityClass

	dimensionHits := map[string][]string{}
	for _, r := range doc.MappingRules {
		if r.Applicability.EntityClass != "" && r.Applicability.EntityClass != class {
			continue
		}
		re := patterns[r.ID]
		for _, field := range r.SourceFields {
			if val, ok := obs[field]; ok && re.MatchString(val) {
				dimensionHits[r.Dimension] = append(dimensionHits[r.Dimension], r.Value)
				break
			}
		}
	}
	if len(dimensionHits) == 0 {
		return newValidationError(CodeSmokeCoverage, "validation_entity produced no canonical dimension values; lens has no working mapping rule")
	}

	moduleFired := false
	for _, t := range doc.ModuleTriggers {
		values := dimensionHits[t.When.Dimension]
		if !anyMatch(values, t.When.Values) {
			continue
		}
		ok := true
		for _, cond := range t.Conditions {
			if cond.EntityClass != "" && cond.EntityClass != class {
				ok = false
				break
			}
		}
		if ok {
			moduleFired = true
			break
		}
	}
	if !moduleFired {
		return newValidationError(CodeSmokeCoverage, "validation_entity did not attach any module; lens has no working module trigger")
	}
	return nil
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func anyMatch(have, want []string) bool {
	for _, w := range want {
		if contains(have, w) {
			return true
		}
	}
	return false
}
