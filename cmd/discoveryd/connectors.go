package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/registry"
)

// fixtureRecord mirrors registry.MockRecord's on-disk JSON shape: a
// connector's fixture file maps a query string to the canned record it
// should return for that query.
type fixtureRecord struct {
	URL  string         `json:"url"`
	Body map[string]any `json:"body"`
}

// loadConnectors builds one registry.MockConnector per configured
// connector name. Real HTTP connectors are out of scope (see the
// registry.Connector doc); a connector with no fixture file on
// disk is still registered and simply returns an empty payload for
// every query, matching MockConnector's documented zero-value behaviour.
func loadConnectors(fixturesDir string, names []string) (map[string]registry.Connector, error) {
	out := make(map[string]registry.Connector, len(names))
	for _, name := range names {
		responses, err := loadFixture(filepath.Join(fixturesDir, name+".json"))
		if err != nil {
			return nil, fmt.Errorf("loading fixture for %s: %w", name, err)
		}
		out[name] = registry.NewMockConnector(responses)
	}
	return out, nil
}

func loadFixture(path string) (map[string]registry.MockRecord, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]registry.MockRecord{}, nil
	}
	if err != nil {
		return nil, err
	}

	var decoded map[string]fixtureRecord
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	out := make(map[string]registry.MockRecord, len(decoded))
	for query, rec := range decoded {
		out[query] = registry.MockRecord{URL: rec.URL, Body: rec.Body}
	}
	return out, nil
}
