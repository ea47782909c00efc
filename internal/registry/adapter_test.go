package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapter_FetchSuccess(t *testing.T) {
	reg := NewRegistry(map[string]model.ConnectorSpec{
		"google_places": testSpec("google_places", 0.017),
	})
	mock := NewMockConnector(map[string]MockRecord{
		"padel edinburgh": {URL: "https://example/places", Body: map[string]any{"name": "Padel Edinburgh"}},
	})
	adapter := NewAdapter(reg, map[string]Connector{"google_places": mock})

	ing, err := adapter.Fetch(context.Background(), "google_places", map[string]string{"q": "padel edinburgh"}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "google_places", ing.Source)
	assert.NotEmpty(t, ing.SHA256)
	assert.Contains(t, string(ing.PayloadBlob), "Padel Edinburgh")
	assert.Len(t, mock.Calls, 1)
}

func TestAdapter_UnknownConnector(t *testing.T) {
	reg := NewRegistry(nil)
	adapter := NewAdapter(reg, nil)
	_, err := adapter.Fetch(context.Background(), "nope", nil, time.Time{})
	require.ErrorIs(t, err, model.ErrUnknownConnector)
}

func TestAdapter_TransientRetriesThenSucceeds(t *testing.T) {
	reg := NewRegistry(map[string]model.ConnectorSpec{
		"serper": testSpec("serper", 0.01),
	})
	calls := 0
	conn := ConnectorFunc(func(ctx context.Context, params map[string]string) (RawPayload, error) {
		calls++
		if calls < 2 {
			return RawPayload{}, &model.SourceError{Kind: model.KindTransient, Cause: errors.New("flaky")}
		}
		return RawPayload{Body: []byte(`{"ok":true}`)}, nil
	})
	adapter := NewAdapter(reg, map[string]Connector{"serper": conn})

	ing, err := adapter.Fetch(context.Background(), "serper", nil, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, string(ing.PayloadBlob), "ok")
}

func TestAdapter_AuthErrorNotRetried(t *testing.T) {
	reg := NewRegistry(map[string]model.ConnectorSpec{
		"serper": testSpec("serper", 0.01),
	})
	calls := 0
	conn := ConnectorFunc(func(ctx context.Context, params map[string]string) (RawPayload, error) {
		calls++
		return RawPayload{}, &model.SourceError{Kind: model.KindAuth, Cause: errors.New("bad key")}
	})
	adapter := NewAdapter(reg, map[string]Connector{"serper": conn})

	_, err := adapter.Fetch(context.Background(), "serper", nil, time.Time{})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "Auth failures must not be retried")

	var se *model.SourceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, model.KindAuth, se.Kind)
	assert.True(t, se.IsFatalToConnector())
}

func TestAdapter_DuplicateContentSkipsPersist(t *testing.T) {
	reg := NewRegistry(map[string]model.ConnectorSpec{
		"osm": testSpec("osm", 0),
	})
	mock := NewMockConnector(map[string]MockRecord{
		"padel": {Body: map[string]any{"name": "Padel"}},
	})
	adapter := NewAdapter(reg, map[string]Connector{"osm": mock})

	first, err := adapter.Fetch(context.Background(), "osm", map[string]string{"q": "padel"}, time.Time{})
	require.NoError(t, err)
	require.NotEmpty(t, first.PayloadBlob)

	second, err := adapter.Fetch(context.Background(), "osm", map[string]string{"q": "padel"}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, first.SHA256, second.SHA256)
	assert.Empty(t, second.PayloadBlob, "duplicate content must not be re-carried for persistence")
}
