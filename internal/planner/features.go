package planner

import (
	"strings"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/lens"
)

// ExtractFeatures reads query against the lens vocabulary only — the
// engine never branches on literal domain terms, it only checks whether
// lens-declared terms appear.
func ExtractFeatures(query string, vocab lens.Vocabulary) Features {
	lowered := strings.ToLower(query)

	var f Features
	for _, kw := range vocab.Keywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			f.MatchedKeywords = append(f.MatchedKeywords, kw)
		}
	}
	for _, hint := range vocab.LocationHints {
		if strings.Contains(lowered, strings.ToLower(hint)) {
			f.MatchedLocationHints = append(f.MatchedLocationHints, hint)
		}
	}
	for _, hint := range vocab.ProperNounHints {
		if strings.Contains(lowered, strings.ToLower(hint)) {
			f.HasProperNounHint = true
			break
		}
	}
	if !f.HasProperNounHint {
		f.HasProperNounHint = hasCapitalizedToken(query)
	}
	return f
}

// hasCapitalizedToken is the structural half of the "category vs
// specific-entity" classification: a query containing a token that looks
// like a proper noun (capitalized, not the first word, not all-caps
// acronym-style) reads as a specific-entity lookup rather than a category
// search. This is a structural heuristic over token shape, not a branch on
// any lens-declared literal.
func hasCapitalizedToken(query string) bool {
	tokens := strings.Fields(query)
	for i, tok := range tokens {
		if i == 0 {
			continue
		}
		if len(tok) == 0 {
			continue
		}
		r := rune(tok[0])
		if r >= 'A' && r <= 'Z' && tok != strings.ToUpper(tok) {
			return true
		}
	}
	return false
}
