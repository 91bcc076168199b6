package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/api/v1", cfg.API.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.API.Timeout())
	assert.Equal(t, "memory", cfg.Session.Type)
	assert.Equal(t, 3, cfg.Banner.ValidationSeconds)
	assert.Equal(t, 5, cfg.Banner.SuccessSeconds)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: http://gen.internal:9000/api/v1
  timeout_seconds: 30
session:
  type: redis
`), 0o644))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://gen.internal:9000/api/v1", cfg.API.BaseURL)
	assert.Equal(t, 30, cfg.API.TimeoutSeconds)
	assert.Equal(t, "redis", cfg.Session.Type)
	assert.Equal(t, "cache:6379", cfg.Session.RedisAddr)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("API_BASE_URL=http://from-dotenv:8000/api/v1\n"), 0o644))
	t.Setenv("CONFIG_PATH", "")
	// godotenv never overrides variables that are already set
	os.Unsetenv("API_BASE_URL")
	t.Cleanup(func() { os.Unsetenv("API_BASE_URL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://from-dotenv:8000/api/v1", cfg.API.BaseURL)
}

func TestLoad_InvalidEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("API_TIMEOUT_SECONDS", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad base url", func(c *Config) { c.API.BaseURL = "not a url" }},
		{"zero timeout", func(c *Config) { c.API.TimeoutSeconds = 0 }},
		{"unknown store", func(c *Config) { c.Session.Type = "sqlite" }},
		{"empty cookie", func(c *Config) { c.Session.CookieName = "" }},
		{"no concurrency", func(c *Config) { c.Limiter.MaxConcurrent = 0 }},
		{"write timeout too short", func(c *Config) { c.Server.WriteTimeoutSeconds = 60 }},
		{"write timeout ignores limiter wait", func(c *Config) { c.Server.WriteTimeoutSeconds = 61 }},
		{"negative limiter wait", func(c *Config) { c.Limiter.WaitSeconds = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, defaultConfig().Validate())

	cfg := defaultConfig()
	cfg.Server.WriteTimeoutSeconds = cfg.API.TimeoutSeconds + cfg.Limiter.WaitSeconds + 1
	assert.NoError(t, cfg.Validate())
}
