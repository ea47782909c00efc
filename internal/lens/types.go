// Package lens loads, validates and exposes the Lens Contract: the
// externally supplied document that carries all vertical-specific
// semantics (vocabulary, connector routing rules, mapping rules, the
// canonical value registry, and module/field-extraction definitions).
//
// Once loaded, a *Contract is immutable and is shared read-only across
// every goroutine in a run, following the chain/agent/MCP registry
// pattern (pkg/config/chain.go, pkg/config/mcp.go): load once at
// bootstrap, defensively copy on construction, never mutate afterwards.
package lens

import "github.com/LarjGit/edinburgh-finds-sub004/internal/model"

// Vocabulary is the set of terms the planner uses to read a natural
// language query. The engine never branches on the literal contents of
// these terms; they are opaque strings supplied entirely by the lens.
type Vocabulary struct {
	Keywords        []string `yaml:"keywords"`
	LocationHints   []string `yaml:"location_hints"`
	ProperNounHints []string `yaml:"proper_noun_hints"`
}

// ConnectorRule binds a connector to the query features that trigger it
// and the parameters it should be called with.
type ConnectorRule struct {
	Connector       string            `yaml:"connector"`
	TriggerKeywords []string          `yaml:"trigger_keywords"`
	ExpectedCalls   int               `yaml:"expected_calls"`
	Params          map[string]string `yaml:"params"`
}

// Applicability gates a mapping or field rule to an entity class and/or
// source connector.
type Applicability struct {
	EntityClass string `yaml:"entity_class,omitempty"`
	Source      string `yaml:"source,omitempty"`
}

// MappingRule is a Phase B rule that adds a canonical value to a
// dimension array when a compiled pattern matches a raw observation.
type MappingRule struct {
	ID             string        `yaml:"id"`
	Pattern        string        `yaml:"pattern"`
	Dimension      string        `yaml:"dimension"`
	Value          string        `yaml:"value"`
	SourceFields   []string      `yaml:"source_fields"`
	Confidence     float64       `yaml:"confidence"`
	Applicability  Applicability `yaml:"applicability,omitempty"`
}

// ModuleTriggerCondition is one `conditions` entry on a module trigger,
// e.g. {entity_class: place}.
type ModuleTriggerCondition struct {
	EntityClass string `yaml:"entity_class,omitempty"`
}

// ModuleTrigger describes when a module is attached to an entity.
type ModuleTrigger struct {
	Module string `yaml:"module"`
	When   struct {
		Dimension string   `yaml:"dimension"`
		Values    []string `yaml:"values"`
	} `yaml:"when"`
	Conditions []ModuleTriggerCondition `yaml:"conditions,omitempty"`
}

// ExtractorKind is the closed tagged-union of field-rule extractor kinds:
// module field extraction is expressed through a small, fixed set of
// extractor implementations rather than open-ended per-module logic.
type ExtractorKind string

const (
	ExtractorNumericParser  ExtractorKind = "numeric_parser"
	ExtractorRegexCapture   ExtractorKind = "regex_capture"
	ExtractorJSONPath       ExtractorKind = "json_path"
	ExtractorBooleanCoerce  ExtractorKind = "boolean_coercion"
	ExtractorCoalesce       ExtractorKind = "coalesce"
	ExtractorNormalize      ExtractorKind = "normalize"
	ExtractorArrayBuilder   ExtractorKind = "array_builder"
	ExtractorStringTemplate ExtractorKind = "string_template"
	ExtractorLLMStructured  ExtractorKind = "llm_structured"
)

// FieldCondition is one entry in a field rule's `conditions` list.
type FieldCondition string

const (
	CondFieldNotPopulated FieldCondition = "field_not_populated"
	CondAnyFieldMissing   FieldCondition = "any_field_missing"
	CondSourceHasField    FieldCondition = "source_has_field"
	CondValuePresent      FieldCondition = "value_present"
)

// FieldRule is one ordered, declarative instruction for extracting one
// target field of a module using a named extractor kind.
type FieldRule struct {
	RuleID        string            `yaml:"rule_id"`
	TargetPath    string            `yaml:"target_path"`
	SourceFields  []string          `yaml:"source_fields"`
	Extractor     ExtractorKind     `yaml:"extractor"`
	ExtractorArgs map[string]string `yaml:"extractor_args,omitempty"`
	Normalizers   []string          `yaml:"normalizers,omitempty"`
	Confidence    float64           `yaml:"confidence"`
	Applicability Applicability     `yaml:"applicability,omitempty"`
	Conditions    []FieldCondition  `yaml:"conditions,omitempty"`
}

// Module is a namespaced field-extraction unit attached to entities when
// its trigger fires.
type Module struct {
	Name       string      `yaml:"name"`
	FieldRules []FieldRule `yaml:"field_rules"`
}

// ValidationEntityFixture is the smoke-coverage fixture used by gate 6:
// at least one fixture must, end to end, produce a non-empty canonical
// dimension and a non-empty module.
type ValidationEntityFixture struct {
	EntityClass     string            `yaml:"entity_class"`
	RawObservations map[string]string `yaml:"raw_observations"`
}

// Document is the on-disk shape of a lens contract (YAML).
type Document struct {
	ID               string                   `yaml:"id"`
	Vocabulary       Vocabulary               `yaml:"vocabulary"`
	ConnectorRules   []ConnectorRule          `yaml:"connector_rules"`
	MappingRules     []MappingRule            `yaml:"mapping_rules"`
	CanonicalValues  map[string][]string      `yaml:"canonical_values"`
	Modules          []Module                 `yaml:"modules"`
	ModuleTriggers   []ModuleTrigger          `yaml:"module_triggers"`
	ValidationEntity ValidationEntityFixture  `yaml:"validation_entity"`
}

// Contract is the loaded, validated lens. Load returns it as a pointer
// that the planner and Phase B share read-only for the whole run; the
// execution context carries only its Hash.
type Contract struct {
	ID               string
	Hash             string
	Vocabulary       Vocabulary
	ConnectorRules   []ConnectorRule
	MappingRules     []MappingRule
	CanonicalValues  map[string]struct{} // dimension.value -> present
	Modules          map[string]Module
	ModuleTriggers   []ModuleTrigger
}

// IsCanonicalValue reports whether value is a registered key for the
// given dimension in canonical_values.
func (c *Contract) IsCanonicalValue(dimension, value string) bool {
	_, ok := c.CanonicalValues[canonicalKey(dimension, value)]
	return ok
}

func canonicalKey(dimension, value string) string {
	return dimension + "\x00" + value
}

// Dimensions are the four multi-valued canonical arrays the engine knows
// about by name (see the glossary of canonical terms).
var Dimensions = []string{
	"canonical_activities",
	"canonical_roles",
	"canonical_place_types",
	"canonical_access",
}

// ConnectorRuleFor returns the rule for a connector name, if any.
func (c *Contract) ConnectorRuleFor(name string) (ConnectorRule, bool) {
	for _, r := range c.ConnectorRules {
		if r.Connector == name {
			return r, true
		}
	}
	return ConnectorRule{}, false
}

// EntityClassMatches reports whether an Applicability's EntityClass
// (empty means "any") matches the given class.
func (a Applicability) EntityClassMatches(class model.EntityClass) bool {
	return a.EntityClass == "" || a.EntityClass == string(class)
}

// SourceMatches reports whether an Applicability's Source (empty means
// "any") matches the given connector name.
func (a Applicability) SourceMatches(source string) bool {
	return a.Source == "" || a.Source == source
}
