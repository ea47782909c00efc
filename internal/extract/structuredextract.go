package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// HTTPStructuredExtractConfig configures the real StructuredExtract
// implementation, mirroring how LLMProviderConfig carries a base URL,
// an API key environment variable and a model name rather than
// hardcoding a single provider (pkg/config/llm.go).
type HTTPStructuredExtractConfig struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// HTTPStructuredExtract POSTs the model name, the source text and a JSON
// schema as a JSON body to BaseURL+"/v1/structured-extract" and returns
// the "fields" object of the response. Any field the model could not read
// confidently is expected to come back absent, not guessed.
type HTTPStructuredExtract struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewHTTPStructuredExtract builds a StructuredExtract backed by a live
// HTTP call. The API key is read once from the configured environment
// variable at construction time, the same pattern used for provider
// credentials elsewhere in this lineage.
func NewHTTPStructuredExtract(cfg HTTPStructuredExtractConfig) *HTTPStructuredExtract {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPStructuredExtract{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     os.Getenv(cfg.APIKeyEnv),
		model:      cfg.Model,
	}
}

type structuredExtractRequest struct {
	Model          string         `json:"model"`
	Text           string         `json:"text"`
	ResponseSchema map[string]any `json:"response_schema"`
}

type structuredExtractResponse struct {
	Fields map[string]any `json:"fields"`
}

// Extract implements StructuredExtract.
func (c *HTTPStructuredExtract) Extract(ctx context.Context, schema map[string]any, text string) (map[string]any, error) {
	body, err := json.Marshal(structuredExtractRequest{Model: c.model, Text: text, ResponseSchema: schema})
	if err != nil {
		return nil, fmt.Errorf("encode structured extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/structured-extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create structured extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call structured extract endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("structured extract endpoint returned HTTP %d", resp.StatusCode)
	}

	var parsed structuredExtractResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode structured extract response: %w", err)
	}
	return parsed.Fields, nil
}

// MockStructuredExtract is a deterministic StructuredExtract for tests: it
// returns exactly the canned field set configured for a given input text,
// with no network call and no randomness.
type MockStructuredExtract struct {
	Responses map[string]map[string]any
}

// Extract returns the canned response keyed by text, or an empty object
// when no response was configured for that exact text.
func (m *MockStructuredExtract) Extract(_ context.Context, _ map[string]any, text string) (map[string]any, error) {
	if resp, ok := m.Responses[text]; ok {
		return resp, nil
	}
	return map[string]any{}, nil
}
