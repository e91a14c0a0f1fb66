package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("UPSTREAM_URL", "https://images.example.com/")
	t.Setenv("UPSTREAM_API_KEY", "sk-upstream")
}

func TestNew_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout)
	assert.Equal(t, OpenAccessKey, cfg.MasterKey)
	assert.True(t, cfg.OpenAccess())
	assert.Equal(t, "https://images.example.com", cfg.Upstream.BaseURL, "trailing slash is trimmed")
	assert.Equal(t, "/api/gen-image", cfg.Upstream.GeneratePath)
	assert.Equal(t, "replicate", cfg.Upstream.Provider)
	assert.Equal(t, HistoryBackendFile, cfg.History.Backend)
	assert.Equal(t, 1000, cfg.History.Capacity)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestNew_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_MASTER_KEY", "secret")
	t.Setenv("HISTORY_BACKEND", "REDIS")
	t.Setenv("HISTORY_TTL", "1h")
	t.Setenv("HISTORY_CAPACITY", "not-a-number")
	t.Setenv("CORS_ALLOWED_METHODS", "GET, POST")
	t.Setenv("REQUEST_TIMEOUT", "5s")

	cfg, err := New()
	require.NoError(t, err)

	assert.False(t, cfg.OpenAccess())
	assert.Equal(t, HistoryBackendRedis, cfg.History.Backend)
	assert.Equal(t, time.Hour, cfg.History.TTL)
	assert.Equal(t, 1000, cfg.History.Capacity, "invalid ints fall back to the default")
	assert.Equal(t, []string{"GET", "POST"}, cfg.CORSAllowedMethods)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestNew_RequiredSettings(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing upstream url", map[string]string{"UPSTREAM_URL": "", "UPSTREAM_API_KEY": "k"}, "UPSTREAM_URL"},
		{"missing upstream key", map[string]string{"UPSTREAM_URL": "http://x", "UPSTREAM_API_KEY": ""}, "UPSTREAM_API_KEY"},
		{"unknown backend", map[string]string{"UPSTREAM_URL": "http://x", "UPSTREAM_API_KEY": "k", "HISTORY_BACKEND": "s3"}, "HISTORY_BACKEND"},
		{"zero capacity", map[string]string{"UPSTREAM_URL": "http://x", "UPSTREAM_API_KEY": "k", "HISTORY_CAPACITY": "0"}, "HISTORY_CAPACITY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := New()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CFG_TEST_STR", "value")
	t.Setenv("CFG_TEST_BOOL", "true")
	t.Setenv("CFG_TEST_BAD_BOOL", "maybe")

	assert.Equal(t, "value", EnvOrDefault("CFG_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", EnvOrDefault("CFG_TEST_UNSET", "fallback"))
	assert.True(t, EnvBoolOrDefault("CFG_TEST_BOOL", false))
	assert.True(t, EnvBoolOrDefault("CFG_TEST_BAD_BOOL", true))
	assert.Equal(t, []string{"a", "b"}, getEnvStringSlice("CFG_TEST_UNSET", []string{"a", "b"}))
}

func TestHistoryFromEnv_NoUpstreamNeeded(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "")
	t.Setenv("UPSTREAM_API_KEY", "")
	t.Setenv("HISTORY_BACKEND", "SQLite")
	t.Setenv("HISTORY_SQLITE_PATH", "/tmp/h.db")

	h := HistoryFromEnv()
	require.NoError(t, h.Validate())
	assert.Equal(t, HistoryBackendSQLite, h.Backend)
	assert.Equal(t, "/tmp/h.db", h.SQLitePath)
	assert.Equal(t, DefaultConfig().History.Capacity, h.Capacity)

	h.Capacity = -1
	assert.Error(t, h.Validate())
}
