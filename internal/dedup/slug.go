package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeName lowercases, strips non-alphanumerics to a single hyphen
// run, and trims leading/trailing hyphens. Used for both slug matching
// (tier 2) and the final slug's name component.
func normalizeName(name string) string {
	lowered := strings.ToLower(name)
	collapsed := nonAlphanumeric.ReplaceAllString(lowered, "-")
	return strings.Trim(collapsed, "-")
}

// Slug is the pure function `slug(name, locality)`: normalised name, an
// optional locality token, and a 4-hex-char stable hash of the raw
// name+locality, truncated to stay within 100 characters. It must remain
// stable across runs for the same inputs (testable property 4).
func Slug(name, locality string) string {
	parts := []string{normalizeName(name)}
	if locality != "" {
		parts = append(parts, normalizeName(locality))
	}
	parts = append(parts, stableHash(name, locality))
	slug := strings.Join(parts, "-")
	if len(slug) > 100 {
		slug = slug[:100]
	}
	return slug
}

func stableHash(name, locality string) string {
	sum := sha256.Sum256([]byte(name + "\x00" + locality))
	return hex.EncodeToString(sum[:])[:4]
}
