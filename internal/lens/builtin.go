package lens

// builtinDefaults supplies the parts of a lens document that are safe to
// default for every vertical (currently: an empty validation fixture is
// rejected at gate 6, so a lens author who forgets the field gets a clear
// validation error rather than a zero-value that silently passes).
// Sparse lens documents are merged against this base with dario.cat/mergo
// before validation runs, the same way user YAML is merged over built-in
// agent/chain/MCP defaults in pkg/config/loader.go.
func builtinDefaults() Document {
	return Document{
		Vocabulary: Vocabulary{
			Keywords:        []string{},
			LocationHints:   []string{},
			ProperNounHints: []string{},
		},
		CanonicalValues: map[string][]string{},
	}
}
