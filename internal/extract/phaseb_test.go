package extract

import (
	"context"
	"testing"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/lens"
	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func padelContract() *lens.Contract {
	return &lens.Contract{
		ID: "padel-football",
		MappingRules: []lens.MappingRule{
			{ID: "map_padel", Pattern: `(?i)padel`, Dimension: "canonical_activities", Value: "padel", SourceFields: []string{"types", "description"}},
			{ID: "map_football", Pattern: `(?i)football|5-a-side`, Dimension: "canonical_activities", Value: "football", SourceFields: []string{"types", "description"}},
		},
		Modules: map[string]lens.Module{
			"sports_facility": {
				Name: "sports_facility",
				FieldRules: []lens.FieldRule{
					{RuleID: "court_count", TargetPath: "court_count", SourceFields: []string{"description"}, Extractor: lens.ExtractorNumericParser, Confidence: 0.9},
					{RuleID: "surface", TargetPath: "surface", SourceFields: []string{"tags"}, Extractor: lens.ExtractorJSONPath, ExtractorArgs: map[string]string{"path": "surface"}, Confidence: 0.8},
					{
						RuleID: "court_count_llm", TargetPath: "court_count", SourceFields: []string{"description"},
						Extractor: lens.ExtractorLLMStructured, Confidence: 0.5,
						Conditions: []lens.FieldCondition{lens.CondFieldNotPopulated},
					},
					{
						RuleID: "amenities_llm", TargetPath: "amenities", SourceFields: []string{"description"},
						Extractor: lens.ExtractorLLMStructured, Confidence: 0.5,
					},
				},
			},
		},
		ModuleTriggers: []lens.ModuleTrigger{
			{
				Module: "sports_facility",
				When: struct {
					Dimension string   `yaml:"dimension"`
					Values    []string `yaml:"values"`
				}{Dimension: "canonical_activities", Values: []string{"padel", "football"}},
			},
		},
	}
}

func TestApplyLens_MappingRulesPopulateDimensionSortedDeduped(t *testing.T) {
	p := New(nil, false)
	entity := &model.ExtractedEntity{
		EntityClass:     model.ClassPlace,
		RawObservations: map[string]string{"types": "sports_complex,football_pitch", "description": "Padel and football courts"},
	}
	err := p.ApplyLens(context.Background(), padelContract(), entity)
	require.NoError(t, err)
	assert.Equal(t, []string{"football", "padel"}, entity.CanonicalActivities)
}

func TestApplyLens_ModuleAttachesWhenTriggerFires(t *testing.T) {
	p := New(nil, false)
	entity := &model.ExtractedEntity{
		EntityClass:     model.ClassPlace,
		RawObservations: map[string]string{"description": "Padel venue with 4 courts"},
	}
	err := p.ApplyLens(context.Background(), padelContract(), entity)
	require.NoError(t, err)
	require.Contains(t, entity.Modules, "sports_facility")
}

func TestApplyLens_ModuleNotAttachedWhenNoDimensionMatches(t *testing.T) {
	p := New(nil, false)
	entity := &model.ExtractedEntity{
		EntityClass:     model.ClassPlace,
		RawObservations: map[string]string{"description": "A quiet bookshop"},
	}
	err := p.ApplyLens(context.Background(), padelContract(), entity)
	require.NoError(t, err)
	assert.NotContains(t, entity.Modules, "sports_facility")
}

func TestApplyLens_DeterministicFieldsPopulateBeforeLLMPass(t *testing.T) {
	p := New(&MockStructuredExtract{}, false)
	entity := &model.ExtractedEntity{
		EntityClass:     model.ClassPlace,
		RawObservations: map[string]string{"description": "Padel venue with 6 courts", "tags": `{"surface":"clay"}`},
	}
	err := p.ApplyLens(context.Background(), padelContract(), entity)
	require.NoError(t, err)

	module := entity.Modules["sports_facility"]
	assert.EqualValues(t, int64(6), module["court_count"])
	assert.Equal(t, "clay", module["surface"])
	assert.Equal(t, 0.9, entity.ConfidenceByField["sports_facility.court_count"])
}

func TestApplyLens_FirstMatchWinsSkipsLLMWhenDeterministicAlreadySet(t *testing.T) {
	mock := &MockStructuredExtract{Responses: map[string]map[string]any{
		"description: Padel venue with 6 courts\n": {"court_count": "99", "amenities": "changing rooms"},
	}}
	p := New(mock, false)
	entity := &model.ExtractedEntity{
		EntityClass:     model.ClassPlace,
		RawObservations: map[string]string{"description": "Padel venue with 6 courts"},
	}
	err := p.ApplyLens(context.Background(), padelContract(), entity)
	require.NoError(t, err)

	module := entity.Modules["sports_facility"]
	assert.EqualValues(t, int64(6), module["court_count"], "deterministic value must not be overwritten by the LLM pass")
	assert.Equal(t, "changing rooms", module["amenities"])
}

func TestApplyLens_LLMFieldRequiresSourceEvidence(t *testing.T) {
	mock := &MockStructuredExtract{Responses: map[string]map[string]any{
		"types: padel\n": {"amenities": "sauna", "court_count": "4"},
	}}
	p := New(mock, false)
	entity := &model.ExtractedEntity{
		EntityClass:     model.ClassPlace,
		RawObservations: map[string]string{"types": "padel"},
	}
	err := p.ApplyLens(context.Background(), padelContract(), entity)
	require.NoError(t, err)

	module := entity.Modules["sports_facility"]
	_, ok := module["amenities"]
	assert.False(t, ok, "amenities has no description field to cite as evidence, so it must stay unset")
}

func TestApplyLens_FailedMappingRulePatternIsRecordedAndSkipped(t *testing.T) {
	p := New(nil, false)
	contract := &lens.Contract{
		MappingRules: []lens.MappingRule{
			{ID: "broken", Pattern: `(`, Dimension: "canonical_activities", Value: "padel", SourceFields: []string{"description"}},
		},
	}
	entity := &model.ExtractedEntity{RawIngestionRef: "abc", RawObservations: map[string]string{"description": "padel"}}
	err := p.ApplyLens(context.Background(), contract, entity)
	require.NoError(t, err)
	require.Len(t, p.Failures(), 1)
	assert.Equal(t, "broken", p.Failures()[0].RuleID)
	assert.Empty(t, entity.CanonicalActivities)
}
