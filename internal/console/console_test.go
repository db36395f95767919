package console

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"teleautogram/internal/authflow"
	"teleautogram/internal/config"
	"teleautogram/internal/ratelimit"
)

func newTestConsole(t *testing.T, base *config.Config) *Console {
	t.Helper()
	if base.DataDir == "" {
		base.DataDir = t.TempDir()
	}
	provider := config.NewProvider(base, zap.NewNop())
	bridge := NewBridge(time.Second)
	drain(t, bridge)
	return New(bridge, nil, nil, base, provider, ratelimit.New(), zap.NewNop())
}

func TestNotRunningWithoutBotSide(t *testing.T) {
	c := newTestConsole(t, &config.Config{})

	err := c.SubmitLoginCode("client", "12345")
	assert.ErrorIs(t, err, ErrNotRunning)

	err = c.SendManual("client", 42, "hello")
	assert.ErrorIs(t, err, ErrNotRunning)

	_, err = c.Messages("client", nil)
	assert.ErrorIs(t, err, ErrNotRunning)

	state, err := c.AuthState("client")
	require.NoError(t, err)
	assert.Equal(t, authflow.StatusDisconnected, state.Status)
}

func TestAuthEndpointsRateLimited(t *testing.T) {
	c := newTestConsole(t, &config.Config{})

	for i := 0; i < ratelimit.AuthLimit; i++ {
		err := c.SubmitLoginCode("client-a", "12345")
		assert.ErrorIs(t, err, ErrNotRunning, "request %d should pass the limiter", i+1)
	}
	err := c.SubmitLoginCode("client-a", "12345")
	assert.ErrorIs(t, err, ErrRateLimited)

	// An exhausted code budget does not affect another client.
	err = c.SubmitLoginCode("client-b", "12345")
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestCodeAndPasswordShareAuthBudget(t *testing.T) {
	c := newTestConsole(t, &config.Config{})

	for i := 0; i < ratelimit.AuthLimit; i++ {
		_ = c.SubmitLoginCode("client", "12345")
	}
	err := c.SubmitLoginPassword("client", "hunter2")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestGeneralEndpointsRateLimited(t *testing.T) {
	c := newTestConsole(t, &config.Config{})

	for i := 0; i < ratelimit.GeneralLimit; i++ {
		_, err := c.AuthState("client")
		require.NoError(t, err)
	}
	_, err := c.AuthState("client")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestGetConfigMasksSecrets(t *testing.T) {
	base := &config.Config{
		APIHash:      "abcdefgh-secret-hash",
		OpenAIAPIKey: "sk-proj-1234567890",
		Phone:        "+15550001111",
	}
	c := newTestConsole(t, base)

	out, err := c.GetConfig("client")
	require.NoError(t, err)

	assert.Equal(t, "abcd****hash", out["API_HASH"])
	assert.Equal(t, "sk-p****7890", out["OPENAI_API_KEY"])
	assert.Equal(t, "+15550001111", out["PHONE"])
	assert.Equal(t, false, out["is_configured"])
}

func TestGetConfigOverlayWinsOverEnvironment(t *testing.T) {
	base := &config.Config{AutoResponseMessage: "from env"}
	c := newTestConsole(t, base)
	require.NoError(t, c.provider.SaveOverlay(map[string]any{"AUTO_RESPONSE_MESSAGE": "from overlay"}))

	out, err := c.GetConfig("client")
	require.NoError(t, err)
	assert.Equal(t, "from overlay", out["AUTO_RESPONSE_MESSAGE"])
}

func TestSaveConfigPreservesMaskedSecret(t *testing.T) {
	c := newTestConsole(t, &config.Config{})
	require.NoError(t, c.provider.SaveOverlay(map[string]any{
		"OPENAI_API_KEY": "sk-proj-1234567890",
	}))

	// Operator edits the message and resubmits the masked key untouched.
	err := c.SaveConfig("client", map[string]any{
		"OPENAI_API_KEY":        "sk-p****7890",
		"AUTO_RESPONSE_MESSAGE": "brb",
	})
	require.NoError(t, err)

	overlay, err := c.provider.Overlay()
	require.NoError(t, err)
	assert.Equal(t, "sk-proj-1234567890", overlay["OPENAI_API_KEY"])
	assert.Equal(t, "brb", overlay["AUTO_RESPONSE_MESSAGE"])
}

func TestSaveConfigAcceptsNewSecret(t *testing.T) {
	c := newTestConsole(t, &config.Config{})
	require.NoError(t, c.provider.SaveOverlay(map[string]any{
		"OPENAI_API_KEY": "sk-proj-1234567890",
	}))

	err := c.SaveConfig("client", map[string]any{"OPENAI_API_KEY": "sk-proj-new-key-000"})
	require.NoError(t, err)

	overlay, err := c.provider.Overlay()
	require.NoError(t, err)
	assert.Equal(t, "sk-proj-new-key-000", overlay["OPENAI_API_KEY"])
}

func TestSaveConfigDropsMaskedSecretWithNoStoredValue(t *testing.T) {
	c := newTestConsole(t, &config.Config{})

	err := c.SaveConfig("client", map[string]any{
		"OPENAI_API_KEY": "sk-p****7890",
		"is_configured":  true,
	})
	require.NoError(t, err)

	overlay, err := c.provider.Overlay()
	require.NoError(t, err)
	assert.NotContains(t, overlay, "OPENAI_API_KEY")
	assert.NotContains(t, overlay, "is_configured")
}
