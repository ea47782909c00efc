// Package appconfig loads config/app.yaml: the connector registry seed,
// default lens id, and the other bootstrap knobs cmd/discoveryd needs
// before it can build a registry, lens loader and orchestrator. Grounded
// on the pkg/config YAML-plus-env-expand loading style (pkg/config/loader.go),
// scaled down to this module's single file.
package appconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
	"gopkg.in/yaml.v3"
)

// ConnectorYAML is one entry under connectors: in app.yaml.
type ConnectorYAML struct {
	Name            string `yaml:"name"`
	Phase           string `yaml:"phase"`
	CostPerCallUSD  float64 `yaml:"cost_per_call_usd"`
	TrustTier       string `yaml:"trust_tier"`
	DefaultPriority int    `yaml:"default_priority"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	RateLimit       struct {
		PerMinute int `yaml:"per_minute"`
		PerHour   int `yaml:"per_hour"`
	} `yaml:"rate_limit"`
}

// StructuredExtractYAML configures the HTTP structured-extraction
// capability injected into the Phase B pipeline.
type StructuredExtractYAML struct {
	BaseURL       string `yaml:"base_url"`
	APIKeyEnv     string `yaml:"api_key_env"`
	Model         string `yaml:"model"`
	TimeoutSeconds int   `yaml:"timeout_seconds"`
}

// App is the parsed config/app.yaml document.
type App struct {
	DefaultLens            string                 `yaml:"default_lens"`
	LensDir                string                 `yaml:"lens_dir"`
	RawDataDir             string                 `yaml:"raw_data_dir"`
	StrictFieldValidation  bool                   `yaml:"strict_field_validation"`
	Connectors             []ConnectorYAML        `yaml:"connectors"`
	StructuredExtract      StructuredExtractYAML  `yaml:"structured_extract"`
}

// Load reads and parses path, expanding ${VAR} references the same way
// the lens loader does.
func Load(path string) (*App, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading app config %s: %w", path, err)
	}
	expanded := []byte(os.Expand(string(raw), os.Getenv))

	var app App
	if err := yaml.Unmarshal(expanded, &app); err != nil {
		return nil, fmt.Errorf("parsing app config %s: %w", path, err)
	}
	if app.LensDir == "" {
		app.LensDir = "lenses"
	}
	if app.RawDataDir == "" {
		app.RawDataDir = "data/raw"
	}
	return &app, nil
}

// ConnectorSpecs converts the YAML connector entries into model.ConnectorSpec,
// the form the registry wants.
func (a *App) ConnectorSpecs() (map[string]model.ConnectorSpec, error) {
	specs := make(map[string]model.ConnectorSpec, len(a.Connectors))
	for _, c := range a.Connectors {
		tier, ok := model.ParseTrustTier(c.TrustTier)
		if !ok {
			return nil, fmt.Errorf("connector %s: unknown trust_tier %q", c.Name, c.TrustTier)
		}
		phase := model.Phase(c.Phase)
		if phase != model.PhaseDiscovery && phase != model.PhaseEnrichment {
			return nil, fmt.Errorf("connector %s: unknown phase %q", c.Name, c.Phase)
		}
		timeout := time.Duration(c.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		specs[c.Name] = model.ConnectorSpec{
			Name:            c.Name,
			Phase:           phase,
			CostPerCallUSD:  c.CostPerCallUSD,
			TrustTier:       tier,
			DefaultPriority: c.DefaultPriority,
			Timeout:         timeout,
			RateLimit:       model.RateLimit{PerMinute: c.RateLimit.PerMinute, PerHour: c.RateLimit.PerHour},
		}
	}
	return specs, nil
}

// ConnectorNames returns the configured connector names, in file order.
func (a *App) ConnectorNames() []string {
	out := make([]string, 0, len(a.Connectors))
	for _, c := range a.Connectors {
		out = append(out, c.Name)
	}
	return out
}
