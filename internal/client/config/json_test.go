package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"server_base_url":       "https://pm.example.com/api",
		"online_check_interval": "10s",
		"request_timeout":       5,
		"cache_enabled":         false,
		"prefer_cache_first":    true,
		"inline_threshold":      1000,
		"bulk_backend":          "s3",
		"s3_bucket":             "propsync-cache",
		"s3_base_endpoint":      "http://127.0.0.1:9000",
		"s3_timeout":            "750ms",
	})

	t.Run("loads from flags", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		var cfg Config
		cfg.LoadDefaults()
		parseJson(&cfg)

		assert.Equal(t, "https://pm.example.com/api", cfg.ServerBaseURL)
		assert.Equal(t, 10*time.Second, cfg.OnlineCheckInterval)
		assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
		assert.False(t, cfg.CacheEnabled)
		assert.True(t, cfg.PreferCacheFirst)
		assert.Equal(t, 1000, cfg.InlineThreshold)
		assert.Equal(t, BulkBackendS3, cfg.BulkBackend)
		assert.Equal(t, "propsync-cache", cfg.S3Bucket)
		assert.Equal(t, "http://127.0.0.1:9000", cfg.S3BaseEndpoint)
		assert.Equal(t, 750*time.Millisecond, cfg.S3Timeout)

		// Keys missing from the file keep their defaults.
		assert.Equal(t, 2*time.Minute, cfg.UploadTimeout)
		assert.Equal(t, 2048, cfg.SecureMaxValueSize)
		assert.Equal(t, "us-east-1", cfg.S3Region)
	})

	t.Run("short flag", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "https://pm.example.com/api", cfg.ServerBaseURL)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			ServerBaseURL:       "http://defaults/api",
			OnlineCheckInterval: 42 * time.Second,
		}
		parseJson(cfg)

		assert.Equal(t, "http://defaults/api", cfg.ServerBaseURL)
		assert.Equal(t, 42*time.Second, cfg.OnlineCheckInterval)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})

	t.Run("missing file → panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", filepath.Join(dir, "absent.json")}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}

func TestLoadConfig_FlagsOverrideJSON(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, "", "", map[string]any{
		"server_base_url":       "https://from-json/api",
		"online_check_interval": "20s",
	})
	os.Args = []string{"testbin", "-c", path, "-a", "https://from-flag/api"}

	cfg := LoadConfig()
	assert.Equal(t, "https://from-flag/api", cfg.ServerBaseURL)
	assert.Equal(t, 20*time.Second, cfg.OnlineCheckInterval)
}
