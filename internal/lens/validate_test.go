package lens

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validLensYAML = `
id: test-lens
vocabulary:
  keywords: [football]
connector_rules:
  - connector: google_places
    trigger_keywords: [football]
    params: {q: "test query"}
canonical_values:
  activities: [football]
mapping_rules:
  - id: complex_is_football
    pattern: "sports_complex"
    dimension: activities
    value: football
    source_fields: [types]
    confidence: 0.8
    applicability: {entity_class: place}
modules:
  - name: sports_facility
    field_rules:
      - rule_id: pitch_total
        target_path: pitches.total
        source_fields: [NumPitches]
        extractor: numeric_parser
        confidence: 0.9
module_triggers:
  - module: sports_facility
    when: {dimension: activities, values: [football]}
    conditions:
      - entity_class: place
validation_entity:
  entity_class: place
  raw_observations:
    types: "sports_complex"
    NumPitches: "4"
`

func writeLens(t *testing.T, dir, id, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".yaml"), []byte(body), 0o644))
}

func TestLoad_ValidLensSucceeds(t *testing.T) {
	dir := t.TempDir()
	writeLens(t, dir, "test-lens", validLensYAML)
	loader := NewLoader(dir, []string{"google_places"})

	contract, err := loader.Load("test-lens")

	require.NoError(t, err)
	assert.Equal(t, "test-lens", contract.ID)
	assert.NotEmpty(t, contract.Hash)
	assert.True(t, contract.IsCanonicalValue("activities", "football"))
}

func TestLoad_MissingFileReturnsErrConfigNotFound(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(dir, nil)

	_, err := loader.Load("nonexistent")

	require.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoad_InvalidYAMLReturnsErrInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeLens(t, dir, "broken", "id: [unterminated")
	loader := NewLoader(dir, nil)

	_, err := loader.Load("broken")

	require.ErrorIs(t, err, ErrInvalidYAML)
}

func TestLoad_Gate1RejectsEmptyCanonicalValues(t *testing.T) {
	dir := t.TempDir()
	writeLens(t, dir, "bad", `
id: bad
vocabulary: {keywords: [football]}
canonical_values: {}
validation_entity: {entity_class: place, raw_observations: {}}
`)
	loader := NewLoader(dir, nil)

	_, err := loader.Load("bad")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeStructuralSchema, verr.Code)
}

func TestLoad_Gate2RejectsUnknownCanonicalValue(t *testing.T) {
	dir := t.TempDir()
	body := replaceOnce(validLensYAML, "value: football", "value: basketball")
	writeLens(t, dir, "bad", body)
	loader := NewLoader(dir, []string{"google_places"})

	_, err := loader.Load("bad")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeCanonicalReference, verr.Code)
}

func TestLoad_Gate3RejectsUnregisteredConnector(t *testing.T) {
	dir := t.TempDir()
	writeLens(t, dir, "bad", validLensYAML)
	loader := NewLoader(dir, []string{"serper"}) // google_places never registered

	_, err := loader.Load("bad")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeConnectorReference, verr.Code)
}

func TestLoad_Gate4RejectsDuplicateRuleID(t *testing.T) {
	dir := t.TempDir()
	body := replaceOnce(validLensYAML, "rule_id: pitch_total", "rule_id: complex_is_football")
	writeLens(t, dir, "bad", body)
	loader := NewLoader(dir, []string{"google_places"})

	_, err := loader.Load("bad")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeDuplicateRuleID, verr.Code)
}

func TestLoad_Gate5RejectsBadPattern(t *testing.T) {
	dir := t.TempDir()
	body := replaceOnce(validLensYAML, `pattern: "sports_complex"`, `pattern: "("`)
	writeLens(t, dir, "bad", body)
	loader := NewLoader(dir, []string{"google_places"})

	_, err := loader.Load("bad")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodePatternCompile, verr.Code)
}

func TestLoad_Gate6RejectsFixtureWithNoDimensionHit(t *testing.T) {
	dir := t.TempDir()
	body := replaceOnce(validLensYAML, `types: "sports_complex"`, `types: "restaurant"`)
	writeLens(t, dir, "bad", body)
	loader := NewLoader(dir, []string{"google_places"})

	_, err := loader.Load("bad")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeSmokeCoverage, verr.Code)
}

func TestLoad_ExpandsEnvVarsBeforeParsing(t *testing.T) {
	t.Setenv("TEST_LENS_QUERY", "Powerleague Portobello")
	dir := t.TempDir()
	body := replaceOnce(validLensYAML, `q: "test query"`, `q: "${TEST_LENS_QUERY}"`)
	writeLens(t, dir, "test-lens", body)
	loader := NewLoader(dir, []string{"google_places"})

	contract, err := loader.Load("test-lens")

	require.NoError(t, err)
	rule, ok := contract.ConnectorRuleFor("google_places")
	require.True(t, ok)
	assert.Equal(t, "Powerleague Portobello", rule.Params["q"])
}

func TestLoad_HashStableAcrossCanonicalValueOrdering(t *testing.T) {
	dir := t.TempDir()
	bodyA := replaceOnce(validLensYAML, "canonical_values:\n  activities: [football]",
		"canonical_values:\n  activities: [football, padel]")
	bodyB := replaceOnce(validLensYAML, "canonical_values:\n  activities: [football]",
		"canonical_values:\n  activities: [padel, football]")
	writeLens(t, dir, "a", bodyA)
	writeLens(t, dir, "b", bodyB)
	loader := NewLoader(dir, []string{"google_places"})

	ca, err := loader.Load("a")
	require.NoError(t, err)
	cb, err := loader.Load("b")
	require.NoError(t, err)

	assert.Equal(t, ca.Hash, cb.Hash, "value slice order within a dimension must not affect the hash")
}

func replaceOnce(body, old, new string) string {
	return strings.Replace(body, old, new, 1)
}
