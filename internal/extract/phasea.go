package extract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
)

// legacyPrefixes are field-name patterns a connector should no longer use;
// they are warned on, or hard-errored when strict field validation is on.
var legacyPrefixes = []string{"location_", "contact_", "address_"}

// primitiveAliases maps every accepted spelling of a schema-exact
// primitive to its canonical field name. Connectors are free to use any
// of these; Phase A normalises them before Phase B ever runs.
var primitiveAliases = map[string]string{
	"name":           "entity_name",
	"entity_name":    "entity_name",
	"lat":            "latitude",
	"latitude":       "latitude",
	"location_lat":   "latitude",
	"lng":            "longitude",
	"lon":            "longitude",
	"longitude":      "longitude",
	"location_lng":   "longitude",
	"address":        "street_address",
	"street_address": "street_address",
	"address_street": "street_address",
	"city":           "city",
	"address_city":   "city",
	"postcode":       "postcode",
	"zip":            "postcode",
	"address_zip":    "postcode",
	"country":        "country",
	"address_country": "country",
	"phone":          "phone",
	"contact_phone":  "phone",
	"email":          "email",
	"contact_email":  "email",
	"website":        "website_url",
	"website_url":    "website_url",
	"contact_website": "website_url",
}

// ExtractPrimitives implements orchestrator.PrimitiveExtractor. raw.PayloadBlob
// must be either a single JSON object or a JSON array of objects; each
// object becomes one candidate ExtractedEntity.
func (p *Pipeline) ExtractPrimitives(source string, raw model.RawIngestion) ([]model.ExtractedEntity, error) {
	records, err := decodeRecords(raw.PayloadBlob)
	if err != nil {
		return nil, fmt.Errorf("decoding payload from %s: %w", source, err)
	}

	out := make([]model.ExtractedEntity, 0, len(records))
	for _, rec := range records {
		p.checkLegacyFields(source, rec)
		out = append(out, model.ExtractedEntity{
			Source:          source,
			RawIngestionRef: raw.SHA256,
			EntityClass:     inferEntityClass(rec),
			Primitives:      buildPrimitives(rec),
			RawObservations: flattenObservations(rec),
			ExternalIDs:     extractExternalIDs(rec),
		})
	}
	return out, nil
}

func decodeRecords(body []byte) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "{}" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var recs []map[string]any
		if err := json.Unmarshal(body, &recs); err != nil {
			return nil, err
		}
		return recs, nil
	}
	var rec map[string]any
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, err
	}
	if len(rec) == 0 {
		return nil, nil
	}
	return []map[string]any{rec}, nil
}

// checkLegacyFields warns (or, under strict mode, hard-errors via panic-free
// recorded failure) when a connector still uses a pre-normalisation field
// name pattern.
func (p *Pipeline) checkLegacyFields(source string, rec map[string]any) {
	for key := range rec {
		for _, prefix := range legacyPrefixes {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			if p.strict {
				p.recordFailure("", "legacy_field_name", "malformed",
					fmt.Sprintf("source %s uses legacy field %q with STRICT_FIELD_VALIDATION on", source, key))
				continue
			}
			slog.Warn("connector uses legacy field name", "source", source, "field", key)
		}
	}
}

// inferEntityClass applies the structural classification rules: coordinates
// imply a place, a start_datetime implies an event, an explicit individual
// flag implies a person, otherwise the record is an organization if it
// carries a company/registration identifier, else a thing.
func inferEntityClass(rec map[string]any) model.EntityClass {
	if hasCoordinateFields(rec) {
		return model.ClassPlace
	}
	if _, ok := rec["start_datetime"]; ok {
		return model.ClassEvent
	}
	if v, ok := rec["individual"]; ok {
		if b, ok := v.(bool); ok && b {
			return model.ClassPerson
		}
	}
	for _, key := range []string{"company_number", "registration_number", "companies_house_number"} {
		if _, ok := rec[key]; ok {
			return model.ClassOrganization
		}
	}
	return model.ClassThing
}

func hasCoordinateFields(rec map[string]any) bool {
	lat := firstPresent(rec, "lat", "latitude", "location_lat")
	lng := firstPresent(rec, "lng", "lon", "longitude", "location_lng")
	return lat != nil && lng != nil
}

func firstPresent(rec map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := rec[k]; ok {
			return v
		}
	}
	return nil
}

func buildPrimitives(rec map[string]any) model.Primitives {
	var p model.Primitives
	p.EntityName = stringField(rec, "name", "entity_name")
	p.Latitude = floatField(rec, "lat", "latitude", "location_lat")
	p.Longitude = floatField(rec, "lng", "lon", "longitude", "location_lng")
	p.StreetAddress = stringField(rec, "address", "street_address", "address_street")
	p.City = stringField(rec, "city", "address_city")
	p.Postcode = stringField(rec, "postcode", "zip", "address_zip")
	p.Country = stringField(rec, "country", "address_country")
	p.Phone = stringField(rec, "phone", "contact_phone")
	p.Email = stringField(rec, "email", "contact_email")
	p.WebsiteURL = stringField(rec, "website", "website_url", "contact_website")
	return p
}

func stringField(rec map[string]any, keys ...string) string {
	v := firstPresent(rec, keys...)
	s, _ := v.(string)
	return s
}

func floatField(rec map[string]any, keys ...string) *float64 {
	v := firstPresent(rec, keys...)
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return &f
		}
	}
	return nil
}

// flattenObservations turns a raw JSON record into the flat string map
// Phase B's regex-based mapping rules search. Scalars stringify directly;
// arrays and nested objects are stored as their JSON encoding, so a
// mapping-rule pattern can still match an element inside the array (e.g.
// a "types" list containing "sports_complex"). An array that fails to
// encode falls back to its elements sorted and joined with commas.
func flattenObservations(rec map[string]any) map[string]string {
	out := make(map[string]string, len(rec))
	for k, v := range rec {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		case []any:
			if encoded, err := json.Marshal(val); err == nil {
				out[k] = string(encoded)
				continue
			}
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			sort.Strings(parts)
			out[k] = strings.Join(parts, ",")
		case nil:
			// omit: a present-but-null field carries no observation.
		case map[string]any:
			if encoded, err := json.Marshal(val); err == nil {
				out[k] = string(encoded)
			}
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

// extractExternalIDs pulls any field ending "_id" (other than the generic
// "id") into the external-ID map the deduplicator's tier-1 match uses.
func extractExternalIDs(rec map[string]any) map[string]string {
	ids := make(map[string]string)
	for k, v := range rec {
		if k == "id" || !strings.HasSuffix(k, "_id") {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			ids[strings.TrimSuffix(k, "_id")] = s
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return ids
}
