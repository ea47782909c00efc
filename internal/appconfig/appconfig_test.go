package appconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
default_lens: sports-facilities
lens_dir: lenses
raw_data_dir: data/raw
strict_field_validation: true

connectors:
  - name: google_places
    phase: discovery
    cost_per_call_usd: 0.017
    trust_tier: high
    default_priority: 10
    timeout_seconds: 8
    rate_limit: {per_minute: 60, per_hour: 1000}
  - name: osm
    phase: discovery
    cost_per_call_usd: 0.0
    trust_tier: low
    default_priority: 30
    rate_limit: {per_minute: 20, per_hour: 300}

structured_extract:
  base_url: "${EXTRACT_BASE_URL}"
  api_key_env: ANTHROPIC_API_KEY
  model: claude-3-5-sonnet
  timeout_seconds: 30
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ParsesAllFields(t *testing.T) {
	path := writeConfig(t, validYAML)

	app, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "sports-facilities", app.DefaultLens)
	assert.Equal(t, "lenses", app.LensDir)
	assert.Equal(t, "data/raw", app.RawDataDir)
	assert.True(t, app.StrictFieldValidation)
	require.Len(t, app.Connectors, 2)
	assert.Equal(t, "google_places", app.Connectors[0].Name)
	assert.Equal(t, 60, app.Connectors[0].RateLimit.PerMinute)
	assert.Equal(t, "claude-3-5-sonnet", app.StructuredExtract.Model)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("EXTRACT_BASE_URL", "https://extract.example/v1")
	path := writeConfig(t, validYAML)

	app, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "https://extract.example/v1", app.StructuredExtract.BaseURL)
}

func TestLoad_DefaultsLensAndRawDataDirWhenAbsent(t *testing.T) {
	path := writeConfig(t, `default_lens: generic`)

	app, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "lenses", app.LensDir)
	assert.Equal(t, "data/raw", app.RawDataDir)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading app config")
}

func TestLoad_InvalidYAMLReturnsError(t *testing.T) {
	path := writeConfig(t, "connectors: [unterminated")

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing app config")
}

func TestConnectorSpecs_ConvertsRowsAndDefaultsTimeout(t *testing.T) {
	path := writeConfig(t, validYAML)
	app, err := Load(path)
	require.NoError(t, err)

	specs, err := app.ConnectorSpecs()

	require.NoError(t, err)
	require.Contains(t, specs, "google_places")
	gp := specs["google_places"]
	assert.Equal(t, model.PhaseDiscovery, gp.Phase)
	assert.Equal(t, model.TrustHigh, gp.TrustTier)
	assert.Equal(t, 8*time.Second, gp.Timeout)

	osm := specs["osm"]
	assert.Equal(t, model.TrustLow, osm.TrustTier)
	assert.Equal(t, 10*time.Second, osm.Timeout, "zero timeout_seconds falls back to the 10s default")
}

func TestConnectorSpecs_UnknownTrustTierErrors(t *testing.T) {
	path := writeConfig(t, `
connectors:
  - name: bogus
    phase: discovery
    trust_tier: platinum
`)
	app, err := Load(path)
	require.NoError(t, err)

	_, err = app.ConnectorSpecs()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown trust_tier")
}

func TestConnectorSpecs_UnknownPhaseErrors(t *testing.T) {
	path := writeConfig(t, `
connectors:
  - name: bogus
    phase: preprocessing
    trust_tier: low
`)
	app, err := Load(path)
	require.NoError(t, err)

	_, err = app.ConnectorSpecs()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown phase")
}

func TestConnectorNames_PreservesFileOrder(t *testing.T) {
	path := writeConfig(t, validYAML)
	app, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"google_places", "osm"}, app.ConnectorNames())
}
