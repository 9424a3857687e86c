package worldmorse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/worldmorse/internal/api"
	"github.com/eldtechnologies/worldmorse/internal/models"
	"github.com/eldtechnologies/worldmorse/internal/relay"
	"github.com/eldtechnologies/worldmorse/internal/store"
)

func relayHandler(t *testing.T) http.Handler {
	t.Helper()
	svc := relay.NewService(store.NewMemoryStore(0), zerolog.Nop(), relay.Options{})
	t.Cleanup(svc.Close)
	return api.NewRouter(zerolog.Nop(), svc, api.Options{})
}

func newRelay(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(relayHandler(t))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTrip(t *testing.T) {
	srv := newRelay(t)
	c := NewClient(srv.URL, time.Second)
	ctx := context.Background()

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.True(t, health.OK)

	st, err := c.Register(ctx, " ja1abc ")
	require.NoError(t, err)
	assert.Equal(t, "JA1ABC", st.Callsign)

	to := " jh2xyz "
	msg, err := c.SubmitMessage(ctx, Submission{
		FromCallsign: "ja1abc",
		ToCallsign:   &to,
		Channel:      "7.050",
		Type:         models.TypeCWMorse,
		Payload:      models.Payload{"morse": "-.-. --.-", "textPreview": "CQ"},
	})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "JA1ABC", msg.FromCallsign)
	require.NotNil(t, msg.ToCallsign)
	assert.Equal(t, "JH2XYZ", *msg.ToCallsign)

	msgs, err := c.RecentMessages(ctx, "7.050", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
	assert.Equal(t, "-.-. --.-", msgs[0].Payload.Morse())
	assert.Equal(t, "CQ", msgs[0].Payload.TextPreview())

	// Registration alone does not tune the station to a channel.
	stations, err := c.OnlineStations(ctx, "7.050")
	require.NoError(t, err)
	assert.Empty(t, stations)
}

func TestClientBlankRecipientIsNull(t *testing.T) {
	srv := newRelay(t)
	c := NewClient(srv.URL, time.Second)

	blank := "  "
	msg, err := c.SubmitMessage(context.Background(), Submission{
		FromCallsign: "ja1abc",
		ToCallsign:   &blank,
		Channel:      "7.050",
		Type:         models.TypeCWMorse,
	})
	require.NoError(t, err)
	assert.Nil(t, msg.ToCallsign)
}

func TestClientValidationError(t *testing.T) {
	srv := newRelay(t)
	c := NewClient(srv.URL, time.Second)

	_, err := c.SubmitMessage(context.Background(), Submission{
		FromCallsign: "ja1abc",
		Type:         models.TypeCWMorse,
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, "channel_required"))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	_, err = c.Register(context.Background(), "   ")
	assert.True(t, IsCode(err, "callsign_required"))
}

func TestClientNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).OnlineStations(context.Background(), "7.050")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "Bad Gateway", apiErr.Code)
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws?callsign=JA1ABC&channel=7.050"},
		{"https://relay.example.com/", "wss://relay.example.com/ws?callsign=JA1ABC&channel=7.050"},
		{"https://relay.example.com/morse", "wss://relay.example.com/morse/ws?callsign=JA1ABC&channel=7.050"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := NewClient(tt.base, 0).WebSocketURL(" ja1abc", "7.050")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("", 0)
	assert.Equal(t, DefaultURL, c.BaseURL)
	assert.Equal(t, 5*time.Second, c.HTTPClient.Timeout)
}
