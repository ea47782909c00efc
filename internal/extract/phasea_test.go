package extract

import (
	"testing"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPrimitives_ClassifiesByStructure(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    model.EntityClass
	}{
		{"coordinates imply place", `{"name":"Powerleague Edinburgh","lat":55.94,"lng":-3.19}`, model.ClassPlace},
		{"start_datetime implies event", `{"name":"5-a-side Night","start_datetime":"2026-08-01T19:00:00Z"}`, model.ClassEvent},
		{"individual flag implies person", `{"name":"Jane Smith","individual":true}`, model.ClassPerson},
		{"company number implies organization", `{"name":"Sports Ltd","company_number":"SC123456"}`, model.ClassOrganization},
		{"no distinguishing field implies thing", `{"name":"Some Record"}`, model.ClassThing},
	}

	p := New(nil, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities, err := p.ExtractPrimitives("test_source", model.RawIngestion{PayloadBlob: []byte(tt.payload)})
			require.NoError(t, err)
			require.Len(t, entities, 1)
			assert.Equal(t, tt.want, entities[0].EntityClass)
		})
	}
}

func TestExtractPrimitives_ArrayPayloadYieldsOneEntityPerRecord(t *testing.T) {
	p := New(nil, false)
	entities, err := p.ExtractPrimitives("osm", model.RawIngestion{
		PayloadBlob: []byte(`[{"name":"A","lat":1,"lng":2},{"name":"B","lat":3,"lng":4}]`),
	})
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "A", entities[0].Primitives.EntityName)
	assert.Equal(t, "B", entities[1].Primitives.EntityName)
}

func TestExtractPrimitives_EmptyPayloadYieldsNoEntities(t *testing.T) {
	p := New(nil, false)
	entities, err := p.ExtractPrimitives("osm", model.RawIngestion{PayloadBlob: []byte(`{}`)})
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestExtractPrimitives_AliasesNormaliseToSchemaExactFields(t *testing.T) {
	p := New(nil, false)
	entities, err := p.ExtractPrimitives("legacy_source", model.RawIngestion{
		PayloadBlob: []byte(`{"name":"Five-a-Side Park","location_lat":55.9,"location_lng":-3.2,"address_city":"Edinburgh","contact_phone":"0131 555 0100"}`),
	})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	prim := entities[0].Primitives
	require.NotNil(t, prim.Latitude)
	assert.InDelta(t, 55.9, *prim.Latitude, 0.001)
	assert.Equal(t, "Edinburgh", prim.City)
	assert.Equal(t, "0131 555 0100", prim.Phone)
}

func TestExtractPrimitives_LegacyFieldsWarnByDefaultFailInStrictMode(t *testing.T) {
	lenient := New(nil, false)
	_, err := lenient.ExtractPrimitives("legacy_source", model.RawIngestion{
		PayloadBlob: []byte(`{"name":"x","location_lat":1,"location_lng":2}`),
	})
	require.NoError(t, err)
	assert.Empty(t, lenient.Failures())

	strict := New(nil, true)
	_, err = strict.ExtractPrimitives("legacy_source", model.RawIngestion{
		PayloadBlob: []byte(`{"name":"x","location_lat":1,"location_lng":2}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, strict.Failures())
	assert.Equal(t, "malformed", strict.Failures()[0].Kind)
}

func TestExtractPrimitives_ExternalIDsCollectedFromIDSuffixedFields(t *testing.T) {
	p := New(nil, false)
	entities, err := p.ExtractPrimitives("companies_house", model.RawIngestion{
		PayloadBlob: []byte(`{"name":"Sports Ltd","id":"ignored","company_number_id":"SC123456"}`),
	})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "SC123456", entities[0].ExternalIDs["company_number"])
}

func TestExtractPrimitives_NestedObjectRoundTripsAsJSON(t *testing.T) {
	p := New(nil, false)
	entities, err := p.ExtractPrimitives("osm", model.RawIngestion{
		PayloadBlob: []byte(`{"name":"Court","tags":{"surface":"clay","lit":true}}`),
	})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	raw, ok := entities[0].RawObservations["tags"]
	require.True(t, ok)
	value, err := decodeJSONValue(raw)
	require.NoError(t, err)
	obj, ok := value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "clay", obj["surface"])
}
