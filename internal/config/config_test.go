package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "DEMO_MODE", "ORCHESTRATOR_TOKEN", "PROVIDER", "RELAY_BASE_URL",
		"PROVIDER_TIMEOUT", "DEFAULT_MARKUP_PERCENT", "DEFAULT_TIMEZONE", "WEBHOOK_BASE_URL",
		"SERVER_PORT", "S3_BUCKET", "WEBHOOK_SECRET",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_DemoModeWithoutDatabase(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEMO_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.DemoMode)
	assert.True(t, cfg.InMemory())
	assert.Equal(t, ProviderSandbox, cfg.Provider)
	assert.Equal(t, 15*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, ":8080", cfg.ServerAddr())
	assert.False(t, cfg.S3.Enabled())
}

func TestLoad_Live(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/switchboard")
	t.Setenv("ORCHESTRATOR_TOKEN", "secret")
	t.Setenv("PROVIDER_TIMEOUT", "30")
	t.Setenv("WEBHOOK_BASE_URL", "https://hooks.example.com/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.InMemory())
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "https://hooks.example.com", cfg.WebhookBaseURL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"no database outside demo", map[string]string{"ORCHESTRATOR_TOKEN": "s"}, "DATABASE_URL"},
		{"no orchestrator token", map[string]string{"DATABASE_URL": "postgres://x"}, "ORCHESTRATOR_TOKEN"},
		{"relay without url", map[string]string{"DEMO_MODE": "true", "PROVIDER": "relay"}, "RELAY_BASE_URL"},
		{"unknown provider", map[string]string{"DEMO_MODE": "true", "PROVIDER": "carrier-pigeon"}, "unknown PROVIDER"},
		{"negative markup", map[string]string{"DEMO_MODE": "true", "DEFAULT_MARKUP_PERCENT": "-5"}, "DEFAULT_MARKUP_PERCENT"},
		{"bad timezone", map[string]string{"DEMO_MODE": "true", "DEFAULT_TIMEZONE": "Mars/Olympus"}, "DEFAULT_TIMEZONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
