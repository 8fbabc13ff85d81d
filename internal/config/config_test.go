package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
  session_ttl: 5m
backend:
  url: https://research.example.com
auth:
  url: https://proj.supabase.co
  anon_key: anon
fetcher:
  timeout: 10s
  concurrency: 2
  allow_private: true
mcp:
  tools:
    search_name: search
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 5*time.Minute, cfg.Server.SessionTTL)
	assert.Equal(t, "https://research.example.com", cfg.Backend.URL)
	assert.Equal(t, "anon", cfg.Auth.AnonKey)
	assert.Equal(t, 10*time.Second, cfg.Fetcher.Timeout)
	assert.Equal(t, 2, cfg.Fetcher.Concurrency)
	assert.Equal(t, DefaultConfig.Fetcher.MaxText, cfg.Fetcher.MaxText)
	assert.True(t, cfg.Fetcher.AllowPrivate)
	assert.False(t, DefaultConfig.Fetcher.AllowPrivate)
	assert.Equal(t, "search", cfg.MCP.Tools.SearchName)
	assert.Equal(t, "fetch_article", cfg.MCP.Tools.FetchName)
	assert.Equal(t, path, cfg.Source())
	assert.NotEmpty(t, cfg.Auth.SessionFile)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeConfig(t, "server: [not, a, map"))
	assert.Error(t, err)
}

func TestValidateFixesInvalidValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 70000
backend:
  url: "  "
proxy:
  enabled: true
  url: ""
mcp:
  tools:
    search_name: same
    fetch_name: same
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig.Server.Port, cfg.Server.Port)
	assert.Equal(t, DefaultConfig.Backend.URL, cfg.Backend.URL)
	assert.Equal(t, DefaultConfig.Proxy.URL, cfg.ProxyURL())
	assert.Equal(t, "research_search", cfg.MCP.Tools.SearchName)
	assert.Equal(t, "fetch_article", cfg.MCP.Tools.FetchName)
	assert.Len(t, cfg.Warnings(), 4)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvBackendURL, "http://backend:9000")
	t.Setenv(EnvToken, "env-token")
	t.Setenv(EnvPort, "9999")
	t.Setenv(EnvBrowser, "true")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := LoadFromFile(writeConfig(t, "backend:\n  url: http://file:1\n"))
	require.NoError(t, err)

	assert.Equal(t, "http://backend:9000", cfg.Backend.URL)
	assert.Equal(t, "env-token", cfg.Auth.Token)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.True(t, cfg.Browser.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "0.0.0.0:9999", cfg.Addr())
}

func TestLoadUsesConfigFileEnv(t *testing.T) {
	path := writeConfig(t, "backend:\n  url: http://from-env-file:1\n")
	t.Setenv(EnvConfigFile, path)
	t.Chdir(t.TempDir())

	cfg := Load()
	assert.Equal(t, "http://from-env-file:1", cfg.Backend.URL)
	assert.Equal(t, path, cfg.Source())
}

func TestProxyDisabled(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, "proxy:\n  enabled: false\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.ProxyURL())
}
