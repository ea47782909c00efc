package lens

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Loader reads lens contract documents from a directory of
// "<lens_id>.yaml" files, validating against a connector registry's known
// names. It is constructed once at bootstrap; Load results are immutable.
type Loader struct {
	dir             string
	knownConnectors map[string]struct{}
}

// NewLoader creates a Loader rooted at dir, validating connector_rules
// against the given set of registered connector names (gate 3).
func NewLoader(dir string, knownConnectors []string) *Loader {
	known := make(map[string]struct{}, len(knownConnectors))
	for _, c := range knownConnectors {
		known[c] = struct{}{}
	}
	return &Loader{dir: dir, knownConnectors: known}
}

// Load reads, env-expands, merges, parses and validates the lens with the
// given id. The first validation failure aborts the load (gate 7:
// fail-fast, no silent fallback).
func (l *Loader) Load(lensID string) (*Contract, error) {
	path := filepath.Join(l.dir, lensID+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading lens %s: %w", path, err)
	}

	expanded := expandEnv(raw)

	var doc Document
	if err := yaml.Unmarshal(expanded, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
	}
	if doc.ID == "" {
		doc.ID = lensID
	}

	base := builtinDefaults()
	if err := mergo.Merge(&doc, base); err != nil {
		return nil, fmt.Errorf("merging builtin lens defaults: %w", err)
	}

	if err := gate1Structural(&doc); err != nil {
		return nil, err
	}
	if err := gate2CanonicalReference(&doc); err != nil {
		return nil, err
	}
	if err := gate3ConnectorReference(&doc, l.knownConnectors); err != nil {
		return nil, err
	}
	if err := gate4UniqueRuleIDs(&doc); err != nil {
		return nil, err
	}
	compiled, err := gate5PatternsCompile(&doc)
	if err != nil {
		return nil, err
	}

	contract := buildContract(&doc)

	if err := gate6SmokeCoverage(&doc, contract, compiled); err != nil {
		return nil, err
	}

	hash, err := canonicalHash(&doc)
	if err != nil {
		return nil, fmt.Errorf("hashing lens contract: %w", err)
	}
	contract.Hash = hash

	return contract, nil
}

// expandEnv expands ${VAR}/$VAR references in the raw YAML bytes before
// parsing, matching pkg/config/envexpand.go. Missing variables expand to
// empty string; validation gates below catch resulting empty requireds.
func expandEnv(data []byte) []byte {
	return []byte(os.Expand(string(data), os.Getenv))
}

func buildContract(doc *Document) *Contract {
	canon := make(map[string]struct{})
	for dimension, values := range doc.CanonicalValues {
		for _, v := range values {
			canon[canonicalKey(dimension, v)] = struct{}{}
		}
	}
	modules := make(map[string]Module, len(doc.Modules))
	for _, m := range doc.Modules {
		modules[m.Name] = m
	}
	return &Contract{
		ID:              doc.ID,
		Vocabulary:      doc.Vocabulary,
		ConnectorRules:  doc.ConnectorRules,
		MappingRules:    doc.MappingRules,
		CanonicalValues: canon,
		Modules:         modules,
		ModuleTriggers:  doc.ModuleTriggers,
	}
}

// canonicalHash computes SHA-256 of the document's canonical JSON form:
// struct field order from Document plus map keys sorted, so the hash is
// stable regardless of YAML key ordering on disk.
func canonicalHash(doc *Document) (string, error) {
	canonical, err := canonicalizeDocument(doc)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalizeDocument builds the value that is hashed: a map whose keys
// Go's encoding/json sorts on marshal. canonical_values is
// map[string][]string with user-controlled value ordering, so each value
// slice is copied and sorted explicitly; the hash is then byte-identical
// across loads regardless of source order.
func canonicalizeDocument(doc *Document) (map[string]any, error) {
	canonicalValues := make(map[string][]string, len(doc.CanonicalValues))
	for k, v := range doc.CanonicalValues {
		sorted := append([]string(nil), v...)
		sort.Strings(sorted)
		canonicalValues[k] = sorted
	}

	return map[string]any{
		"id":               doc.ID,
		"vocabulary":       doc.Vocabulary,
		"connector_rules":  doc.ConnectorRules,
		"mapping_rules":    doc.MappingRules,
		"canonical_values": canonicalValues,
		"modules":          doc.Modules,
		"module_triggers":  doc.ModuleTriggers,
	}, nil
}

type compiledPatterns map[string]*regexp.Regexp
