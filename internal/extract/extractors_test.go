package extract

import (
	"testing"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/lens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExtractor_NumericParser(t *testing.T) {
	fr := lens.FieldRule{RuleID: "r1", SourceFields: []string{"price"}, Extractor: lens.ExtractorNumericParser}
	v, err := runExtractor(fr, map[string]string{"price": "£12.50 per session"})
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)
}

func TestRunExtractor_NumericParser_WholeNumberReturnsInt64(t *testing.T) {
	fr := lens.FieldRule{RuleID: "r1", SourceFields: []string{"courts"}, Extractor: lens.ExtractorNumericParser}
	v, err := runExtractor(fr, map[string]string{"courts": "6 courts available"})
	require.NoError(t, err)
	assert.Equal(t, int64(6), v)
}

func TestRunExtractor_RegexCapture(t *testing.T) {
	fr := lens.FieldRule{
		RuleID:        "r2",
		SourceFields:  []string{"description"},
		Extractor:     lens.ExtractorRegexCapture,
		ExtractorArgs: map[string]string{"pattern": `(\d+) courts`},
	}
	v, err := runExtractor(fr, map[string]string{"description": "This venue has 4 courts indoors"})
	require.NoError(t, err)
	assert.Equal(t, "4", v)
}

func TestRunExtractor_JSONPath(t *testing.T) {
	fr := lens.FieldRule{
		RuleID:        "r3",
		SourceFields:  []string{"tags"},
		Extractor:     lens.ExtractorJSONPath,
		ExtractorArgs: map[string]string{"path": "surface"},
	}
	v, err := runExtractor(fr, map[string]string{"tags": `{"surface":"clay","lit":true}`})
	require.NoError(t, err)
	assert.Equal(t, "clay", v)
}

func TestRunExtractor_BooleanCoercion(t *testing.T) {
	fr := lens.FieldRule{RuleID: "r4", SourceFields: []string{"open_now"}, Extractor: lens.ExtractorBooleanCoerce}

	v, err := runExtractor(fr, map[string]string{"open_now": "Yes"})
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = runExtractor(fr, map[string]string{"open_now": "no"})
	require.NoError(t, err)
	assert.Equal(t, false, v)

	_, err = runExtractor(fr, map[string]string{"open_now": "maybe"})
	assert.Error(t, err)
}

func TestRunExtractor_Coalesce_PicksFirstPresentField(t *testing.T) {
	fr := lens.FieldRule{RuleID: "r5", SourceFields: []string{"short_desc", "long_desc"}, Extractor: lens.ExtractorCoalesce}
	v, err := runExtractor(fr, map[string]string{"long_desc": "fallback text"})
	require.NoError(t, err)
	assert.Equal(t, "fallback text", v)
}

func TestRunExtractor_ArrayBuilder_CollectsAllPresentFields(t *testing.T) {
	fr := lens.FieldRule{RuleID: "r6", SourceFields: []string{"photo_1", "photo_2", "photo_3"}, Extractor: lens.ExtractorArrayBuilder}
	v, err := runExtractor(fr, map[string]string{"photo_1": "a.jpg", "photo_3": "c.jpg"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "c.jpg"}, v)
}

func TestRunExtractor_StringTemplate(t *testing.T) {
	fr := lens.FieldRule{
		RuleID:        "r7",
		SourceFields:  []string{"city", "postcode"},
		Extractor:     lens.ExtractorStringTemplate,
		ExtractorArgs: map[string]string{"template": "{{city}}, {{postcode}}"},
	}
	v, err := runExtractor(fr, map[string]string{"city": "Edinburgh", "postcode": "EH1 1AA"})
	require.NoError(t, err)
	assert.Equal(t, "Edinburgh, EH1 1AA", v)
}

func TestRunExtractor_NoEvidenceReturnsNilNotError(t *testing.T) {
	fr := lens.FieldRule{RuleID: "r8", SourceFields: []string{"missing"}, Extractor: lens.ExtractorNumericParser}
	v, err := runExtractor(fr, map[string]string{})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestApplyNormalizers_ChainsInOrder(t *testing.T) {
	v := applyNormalizers([]string{"trim", "lower", "collapse_whitespace"}, "  Clay   Courts  ")
	assert.Equal(t, "clay courts", v)
}
