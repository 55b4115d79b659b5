package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "CORS_ALLOWED_ORIGINS", "GEMINI_API_KEY", "VITE_GEMINI_API_KEY", "GOOGLE_API_KEY",
	"GEMINI_MODEL", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "REDIS_ADDR", "POSTGRES_DSN",
	"CACHE_TTL", "CACHE_CAPACITY", "HEALTH_CHECK_INTERVAL", "DEFAULT_RATE_LIMIT_TPM",
	"OTEL_EXPORTER_TYPE", "OTEL_EXPORTER_ENDPOINT", "LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv registers every key with t.Setenv so it is restored afterwards,
// then unsets it so Load sees the defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	for _, k := range envKeys {
		unsetenv(t, k)
	}
}

func unsetenv(t *testing.T, key string) {
	t.Helper()
	require.NoError(t, os.Unsetenv(key))
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "gemini-1.5-flash", cfg.GeminiModel)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 100, cfg.CacheCapacity)
	assert.Equal(t, 30*time.Minute, cfg.HealthCheckInterval)
	assert.Equal(t, int64(100000), cfg.DefaultRateLimitTPM)
	assert.Equal(t, "none", cfg.OTELExporterType)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.PostgresDSN)
	assert.Empty(t, cfg.GeminiAPIKey)
}

func TestLoad_GeminiKeyPriority(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_API_KEY", "google")
	t.Setenv("VITE_GEMINI_API_KEY", "vite")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "vite", cfg.GeminiAPIKey)

	t.Setenv("GEMINI_API_KEY", "primary")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.GeminiAPIKey)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("CACHE_CAPACITY", "500")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://hub.example.com, https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 500, cfg.CacheCapacity)
	assert.Equal(t, []string{"https://hub.example.com", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"DEFAULT_RATE_LIMIT_TPM", "lots"},
		{"CACHE_CAPACITY", "0"},
		{"CACHE_CAPACITY", "x"},
		{"CACHE_TTL", "soon"},
		{"HEALTH_CHECK_INTERVAL", "10ms"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
