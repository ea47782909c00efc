package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/lens"
)

var numericPattern = regexp.MustCompile(`[-+]?\d+(\.\d+)?`)

var truthyTokens = map[string]bool{
	"yes": true, "true": true, "1": true, "available": true, "y": true,
}
var falsyTokens = map[string]bool{
	"no": false, "false": false, "0": false, "unavailable": false, "n": false,
}

// normalizers is the fixed set of pure string transforms a field rule may
// chain, applied left to right after the extractor runs.
var normalizers = map[string]func(string) string{
	"trim":                strings.TrimSpace,
	"lower":               strings.ToLower,
	"upper":               strings.ToUpper,
	"collapse_whitespace": collapseWhitespace,
	"title_case":          strings.Title, //nolint:staticcheck // matches the lens's simple ASCII title-casing contract
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// applyNormalizers runs a field rule's normalizer pipeline over a value.
// String values are transformed directly; list values are transformed
// element-wise.
func applyNormalizers(names []string, value any) any {
	switch v := value.(type) {
	case string:
		for _, n := range names {
			if fn, ok := normalizers[n]; ok {
				v = fn(v)
			}
		}
		return v
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			for _, n := range names {
				if fn, ok := normalizers[n]; ok {
					s = fn(s)
				}
			}
			out[i] = s
		}
		return out
	default:
		return value
	}
}

// runExtractor dispatches a field rule's extractor kind to its
// implementation. It returns (nil, nil) when the rule's source fields
// carry no evidence, which the caller treats as "no write" rather than a
// failure.
func runExtractor(fr lens.FieldRule, observations map[string]string) (any, error) {
	switch fr.Extractor {
	case lens.ExtractorNumericParser:
		return extractNumeric(fr, observations)
	case lens.ExtractorRegexCapture:
		return extractRegexCapture(fr, observations)
	case lens.ExtractorJSONPath:
		return extractJSONPath(fr, observations)
	case lens.ExtractorBooleanCoerce:
		return extractBoolean(fr, observations)
	case lens.ExtractorCoalesce:
		return extractCoalesce(fr, observations)
	case lens.ExtractorNormalize:
		return extractCoalesce(fr, observations) // normalizer pipeline does the work
	case lens.ExtractorArrayBuilder:
		return extractArrayBuilder(fr, observations)
	case lens.ExtractorStringTemplate:
		return extractStringTemplate(fr, observations)
	default:
		return nil, fmt.Errorf("unsupported deterministic extractor kind %q", fr.Extractor)
	}
}

func firstSourceValue(fr lens.FieldRule, observations map[string]string) (string, bool) {
	for _, field := range fr.SourceFields {
		if v, ok := observations[field]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func extractNumeric(fr lens.FieldRule, observations map[string]string) (any, error) {
	v, ok := firstSourceValue(fr, observations)
	if !ok {
		return nil, nil
	}
	match := numericPattern.FindString(v)
	if match == "" {
		return nil, fmt.Errorf("no numeric token in %q", v)
	}
	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil, err
	}
	if f == float64(int64(f)) {
		return int64(f), nil
	}
	return f, nil
}

func extractRegexCapture(fr lens.FieldRule, observations map[string]string) (any, error) {
	pattern, ok := fr.ExtractorArgs["pattern"]
	if !ok {
		return nil, fmt.Errorf("regex_capture rule %s missing extractor_args.pattern", fr.RuleID)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regex_capture rule %s: %w", fr.RuleID, err)
	}
	v, ok := firstSourceValue(fr, observations)
	if !ok {
		return nil, nil
	}
	groups := re.FindStringSubmatch(v)
	if groups == nil {
		return nil, nil
	}
	if len(groups) > 1 {
		return groups[1], nil
	}
	return groups[0], nil
}

// extractJSONPath walks a dotted path into an observation field whose
// value was JSON-encoded by flattenObservations (nested objects and
// arrays are preserved as JSON strings so this extractor can re-parse
// them rather than losing structure at Phase A).
func extractJSONPath(fr lens.FieldRule, observations map[string]string) (any, error) {
	rootField, ok := fr.ExtractorArgs["root_field"]
	if !ok {
		rootField = firstSourceFieldName(fr)
	}
	path, ok := fr.ExtractorArgs["path"]
	if !ok {
		return nil, fmt.Errorf("json_path rule %s missing extractor_args.path", fr.RuleID)
	}
	raw, ok := observations[rootField]
	if !ok || raw == "" {
		return nil, nil
	}
	root, err := decodeJSONValue(raw)
	if err != nil {
		return nil, fmt.Errorf("json_path rule %s: %w", fr.RuleID, err)
	}
	return walkJSONPath(root, strings.Split(path, "."))
}

func firstSourceFieldName(fr lens.FieldRule) string {
	if len(fr.SourceFields) > 0 {
		return fr.SourceFields[0]
	}
	return ""
}

func extractBoolean(fr lens.FieldRule, observations map[string]string) (any, error) {
	v, ok := firstSourceValue(fr, observations)
	if !ok {
		return nil, nil
	}
	lowered := strings.ToLower(strings.TrimSpace(v))
	if b, ok := truthyTokens[lowered]; ok {
		return b, nil
	}
	if b, ok := falsyTokens[lowered]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("value %q is not a recognised boolean token", v)
}

func extractCoalesce(fr lens.FieldRule, observations map[string]string) (any, error) {
	v, ok := firstSourceValue(fr, observations)
	if !ok {
		return nil, nil
	}
	return v, nil
}

func extractArrayBuilder(fr lens.FieldRule, observations map[string]string) (any, error) {
	var out []string
	for _, field := range fr.SourceFields {
		if v, ok := observations[field]; ok && v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func extractStringTemplate(fr lens.FieldRule, observations map[string]string) (any, error) {
	template, ok := fr.ExtractorArgs["template"]
	if !ok {
		return nil, fmt.Errorf("string_template rule %s missing extractor_args.template", fr.RuleID)
	}
	result := template
	anyField := false
	for _, field := range fr.SourceFields {
		placeholder := "{{" + field + "}}"
		if !strings.Contains(result, placeholder) {
			continue
		}
		v := observations[field]
		if v != "" {
			anyField = true
		}
		result = strings.ReplaceAll(result, placeholder, v)
	}
	if !anyField {
		return nil, nil
	}
	return strings.TrimSpace(result), nil
}
