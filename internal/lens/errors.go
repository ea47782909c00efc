package lens

import (
	"errors"
	"fmt"
)

// Sentinel errors for lens loading/validation, grounded on
// pkg/config/errors.go's sentinel + wrapper pattern.
var (
	ErrConfigNotFound  = errors.New("lens contract file not found")
	ErrInvalidYAML     = errors.New("invalid lens contract YAML")
	ErrValidationFailed = errors.New("lens contract validation failed")
)

// ValidationCode enumerates the lens contract's validation gates, in the
// order they run (fail-fast: first failure aborts bootstrap).
type ValidationCode string

const (
	CodeStructuralSchema       ValidationCode = "structural_schema"
	CodeCanonicalReference     ValidationCode = "canonical_reference"
	CodeConnectorReference     ValidationCode = "connector_reference"
	CodeDuplicateRuleID        ValidationCode = "duplicate_rule_id"
	CodePatternCompile         ValidationCode = "pattern_compile"
	CodeSmokeCoverage          ValidationCode = "smoke_coverage"
)

// ValidationError reports which gate failed and why.
type ValidationError struct {
	Code    ValidationCode
	Details string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("lens validation gate %q failed: %s", e.Code, e.Details)
}

func newValidationError(code ValidationCode, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Details: fmt.Sprintf(format, args...)}
}
