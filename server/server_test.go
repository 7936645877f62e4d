package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/streambot/credentials"
	"github.com/onnwee/streambot/eventsub"
)

type fakeSession struct {
	state eventsub.State
	sid   string
	subID string
}

func (f fakeSession) State() eventsub.State  { return f.state }
func (f fakeSession) SessionID() string      { return f.sid }
func (f fakeSession) SubscriptionID() string { return f.subID }

type fakeCreds struct{}

func (fakeCreds) Snapshot() credentials.Credentials {
	return credentials.Credentials{BotUserID: "100", BotUsername: "streambot", ChannelUserID: "200"}
}

func TestHealthzWithoutDatabase(t *testing.T) {
	mux := NewMux(&Handlers{Session: fakeSession{state: eventsub.StateSubscribed}})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyzReflectsSessionState(t *testing.T) {
	cases := []struct {
		name  string
		state eventsub.State
		want  int
	}{
		{"subscribed", eventsub.StateSubscribed, http.StatusOK},
		{"awaiting_welcome", eventsub.StateAwaitingWelcome, http.StatusServiceUnavailable},
		{"disconnected", eventsub.StateDisconnected, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := NewMux(&Handlers{Session: fakeSession{state: tc.state}})
			srv := httptest.NewServer(mux)
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/readyz")
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestStatusReportsSessionAndChannel(t *testing.T) {
	h := &Handlers{
		Session: fakeSession{state: eventsub.StateSubscribed, sid: "sess-1", subID: "sub-1"},
		Creds:   fakeCreds{},
	}
	srv := httptest.NewServer(NewMux(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "subscribed", body.SessionState)
	assert.Equal(t, "sess-1", body.SessionID)
	assert.Equal(t, "sub-1", body.SubscriptionID)
	assert.Equal(t, "200", body.Channel)
	assert.Nil(t, body.LastActivity)
}

func TestCorrelationHeaderRoundTrip(t *testing.T) {
	srv := httptest.NewServer(NewMux(&Handlers{Session: fakeSession{}}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Correlation-ID", "corr-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "corr-123", resp.Header.Get("X-Correlation-ID"))

	// Absent header gets generated.
	resp2, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.NotEmpty(t, resp2.Header.Get("X-Correlation-ID"))
}

func TestMetricsEndpointExposed(t *testing.T) {
	srv := httptest.NewServer(NewMux(&Handlers{Session: fakeSession{}}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
