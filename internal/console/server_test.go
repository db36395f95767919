package console

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"teleautogram/internal/config"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	c := newTestConsole(t, &config.Config{OpenAIAPIKey: "sk-proj-1234567890"})
	srv := NewServer("127.0.0.1:0", c, zap.NewNop())
	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestServerAuthState(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/auth")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestServerLoginCodeValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/login/code", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerLoginCodeWithoutSession(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/login/code", "application/json", strings.NewReader(`{"code":"12345"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServerSendValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/send", "application/json", strings.NewReader(`{"peer_id":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerMessagesRejectsBadSender(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/messages?sender=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerConfigRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/config", "application/json",
		strings.NewReader(`{"AUTO_RESPONSE_MESSAGE":"brb"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cfg map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	assert.Equal(t, "brb", cfg["AUTO_RESPONSE_MESSAGE"])
	assert.Equal(t, "sk-p****7890", cfg["OPENAI_API_KEY"])
}

func TestServerMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/auth", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
