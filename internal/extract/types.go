// Package extract implements the two-phase extractor pipeline: Phase A
// turns one raw connector payload into structural candidate records
// (entity class, schema primitives, passthrough raw observations); Phase
// B is a generic interpreter that applies a loaded lens.Contract's
// mapping rules and module field rules to those candidates with no
// domain literals anywhere in this package's code.
package extract

import (
	"context"
	"regexp"
	"sync"
)

// StructuredExtract is the injectable capability backing the
// llm_structured extractor kind: given a JSON schema describing the
// target fields and the source text to read, it returns the values it
// could confidently read from that text. Configured at bootstrap and
// swappable for a deterministic mock in tests, mirroring the injected-LLM-
// client pattern rather than reaching for a package-level
// singleton.
type StructuredExtract interface {
	Extract(ctx context.Context, schema map[string]any, text string) (map[string]any, error)
}

// FailedRule is one extraction-rule failure recorded for a raw ingestion,
// matching the failed_extractions persistence row.
type FailedRule struct {
	RawIngestionRef string
	RuleID          string
	Kind            string
	Message         string
}

// Pipeline runs Phase A then Phase B over one raw ingestion.
type Pipeline struct {
	structured StructuredExtract
	strict     bool

	failuresMu sync.Mutex
	failures   []FailedRule

	patternsMu sync.Mutex
	patterns   map[string]*regexp.Regexp
}

// New creates a Pipeline. strict enables STRICT_FIELD_VALIDATION: legacy
// field names become hard errors instead of warnings.
func New(structured StructuredExtract, strict bool) *Pipeline {
	return &Pipeline{structured: structured, strict: strict, patterns: make(map[string]*regexp.Regexp)}
}

// Failures returns every per-rule failure recorded across calls to
// ExtractPrimitives/ApplyLens so far.
func (p *Pipeline) Failures() []FailedRule {
	p.failuresMu.Lock()
	defer p.failuresMu.Unlock()
	out := make([]FailedRule, len(p.failures))
	copy(out, p.failures)
	return out
}

func (p *Pipeline) recordFailure(ref, ruleID, kind, message string) {
	p.failuresMu.Lock()
	defer p.failuresMu.Unlock()
	p.failures = append(p.failures, FailedRule{RawIngestionRef: ref, RuleID: ruleID, Kind: kind, Message: message})
}

// compiledPattern compiles a mapping rule's regex once and caches it,
// mirroring the compile-once, skip-and-log-on-failure style for regex
// patterns (masking/pattern.go) rather than recompiling per entity.
func (p *Pipeline) compiledPattern(pattern string) (*regexp.Regexp, error) {
	p.patternsMu.Lock()
	defer p.patternsMu.Unlock()
	if re, ok := p.patterns[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	p.patterns[pattern] = re
	return re, nil
}
