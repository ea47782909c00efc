package registry

import "context"

// RawPayload is what a Connector.Fetch call returns before adapter-level
// hashing/persistence wraps it into a model.RawIngestion.
type RawPayload struct {
	URL  string
	Body []byte
}

// Connector is the uniform fetch interface every external data source
// implements. The real HTTP connectors (maps, search, registries, open
// data) are external collaborators whose wire details are opaque to this
// module; only the interface and a deterministic mock implementation
// (used in tests and as the template new connectors follow) live here.
type Connector interface {
	// Fetch performs one call against the source. ctx carries the
	// adapter-derived deadline; implementations must respect ctx
	// cancellation at any blocking point.
	Fetch(ctx context.Context, params map[string]string) (RawPayload, error)
}

// ConnectorFunc adapts a plain function to the Connector interface,
// mirroring the standard library's http.HandlerFunc pattern.
type ConnectorFunc func(ctx context.Context, params map[string]string) (RawPayload, error)

// Fetch implements Connector.
func (f ConnectorFunc) Fetch(ctx context.Context, params map[string]string) (RawPayload, error) {
	return f(ctx, params)
}
