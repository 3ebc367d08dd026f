package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.test/")
	t.Setenv("API_TOKEN", "token")
	t.Setenv("CHAT_SOCKET_URL", "wss://chat.example.test/support")
	t.Setenv("UI_JWT_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test", cfg.APIBaseURL)
	assert.Equal(t, 3*time.Second, cfg.RetryDelay)
	assert.Equal(t, 60*time.Second, cfg.RecencyWindow)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, "console.audit", cfg.AMQPExchange)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SOCKET_RETRY_DELAY", "500ms")
	t.Setenv("RECONCILE_WINDOW", "not-a-duration")
	t.Setenv("UI_ALLOWED_ORIGINS", "http://a.test, http://b.test ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 60*time.Second, cfg.RecencyWindow)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
}

func TestLoadReportsMissing(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("API_TOKEN", "")
	t.Setenv("CHAT_SOCKET_URL", "")
	t.Setenv("UI_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_BASE_URL")
	assert.Contains(t, err.Error(), "UI_JWT_SECRET")
}
