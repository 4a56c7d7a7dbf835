package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	logger := zap.NewNop().Sugar()

	t.Run("defaults without a file", func(t *testing.T) {
		config, err := LoadConfig("", logger)
		require.NoError(t, err)
		assert.Equal(t, 8080, config.Port)
		assert.Equal(t, 1500, config.DailyCallLimit)
		assert.Equal(t, 3, config.MaxRetries)
		assert.Equal(t, "gemini-2.0-flash", config.PreferredModel)
		assert.Equal(t, time.Hour, config.CacheTTLDuration())
		assert.False(t, config.RunHealthCheck)
		assert.Equal(t, 30, config.AskRateLimitPerMin)

		backoffConfig := config.Backoff()
		assert.Equal(t, time.Second, backoffConfig.BaseBackoff)
		assert.Equal(t, 30*time.Second, backoffConfig.MaxBackoff)
		assert.Equal(t, 1.8, backoffConfig.Multiplier)
		assert.Equal(t, 500*time.Millisecond, backoffConfig.IntervalFloor)
		assert.Equal(t, 3*time.Second, backoffConfig.IntervalCeiling)
	})

	t.Run("yaml overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
port: 9090
daily_call_limit: 50
preferred_model: gemini-2.5-flash
fallback_models: [gemini-2.0-flash]
cache_ttl: 10m
timezone: Asia/Kolkata
`)
		config, err := LoadConfig(path, logger)
		require.NoError(t, err)
		assert.Equal(t, 9090, config.Port)
		assert.Equal(t, 50, config.DailyCallLimit)
		assert.Equal(t, "gemini-2.5-flash", config.PreferredModel)
		assert.Equal(t, []string{"gemini-2.0-flash"}, config.FallbackModels)
		assert.Equal(t, 10*time.Minute, config.CacheTTLDuration())

		location, err := config.Location()
		require.NoError(t, err)
		assert.Equal(t, "Asia/Kolkata", location.String())
	})

	t.Run("environment overrides yaml", func(t *testing.T) {
		path := writeConfig(t, "port: 9090\ngemini_api_key: from-file\n")
		t.Setenv("PORT", "7070")
		t.Setenv("GEMINI_API_KEY", "from-env")
		t.Setenv("RUN_GEMINI_HEALTH_CHECK", "true")
		t.Setenv("FALLBACK_MODELS", "a, b,,c")

		config, err := LoadConfig(path, logger)
		require.NoError(t, err)
		assert.Equal(t, 7070, config.Port)
		assert.Equal(t, "from-env", config.GeminiApiKey)
		assert.True(t, config.RunHealthCheck)
		assert.Equal(t, []string{"a", "b", "c"}, config.FallbackModels)
	})

	t.Run("remote config with token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte("max_retries: 5\n"))
		}))
		defer server.Close()
		t.Setenv("CONFIG_SOURCE", server.URL)
		t.Setenv("CONFIG_TOKEN", "secret")

		config, err := LoadConfig("ignored.yaml", logger)
		require.NoError(t, err)
		assert.Equal(t, 5, config.MaxRetries)
	})

	t.Run("remote config error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()
		t.Setenv("CONFIG_SOURCE", server.URL)

		_, err := LoadConfig("", logger)
		assert.ErrorContains(t, err, "HTTP 401")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), logger)
		assert.ErrorContains(t, err, "failed to get config data")
	})

	t.Run("broken yaml", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "port: [\n"), logger)
		assert.ErrorContains(t, err, "failed to parse config")
	})

	t.Run("malformed environment value", func(t *testing.T) {
		t.Setenv("DAILY_CALL_LIMIT", "plenty")

		_, err := LoadConfig("", logger)
		assert.ErrorContains(t, err, "DAILY_CALL_LIMIT")
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "cache_ttl: soon\nmax_retries: 0\n"), logger)
		assert.ErrorContains(t, err, "cache_ttl")
		assert.ErrorContains(t, err, "max_retries")
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:              8080,
			MinCallInterval:   "500ms",
			MaxCallInterval:   "3s",
			BaseBackoff:       "1s",
			MaxBackoff:        "30s",
			BackoffMultiplier: 1.8,
			NetworkRetryStep:  "1s",
			MaxRetries:        3,
			DailyCallLimit:    1500,
			CacheTTL:          "1h",
			CacheMaxEntries:   10,
			PreferredModel:    "gemini-2.0-flash",
		}
	}

	t.Run("valid", func(t *testing.T) {
		config := valid()
		assert.NoError(t, config.Validate())
	})

	tests := []struct {
		name     string
		mutate   func(*Config)
		expected string
	}{
		{"interval bounds swapped", func(c *Config) { c.MaxCallInterval = "100ms" }, "max_call_interval"},
		{"backoff bounds swapped", func(c *Config) { c.MaxBackoff = "10ms" }, "max_backoff"},
		{"negative duration", func(c *Config) { c.NetworkRetryStep = "-1s" }, "network_retry_step"},
		{"multiplier below one", func(c *Config) { c.BackoffMultiplier = 0.5 }, "backoff_multiplier"},
		{"no daily limit", func(c *Config) { c.DailyCallLimit = 0 }, "daily_call_limit"},
		{"no cache capacity", func(c *Config) { c.CacheMaxEntries = 0 }, "cache_max_entries"},
		{"port out of range", func(c *Config) { c.Port = 70000 }, "port"},
		{"negative ask rate limit", func(c *Config) { c.AskRateLimitPerMin = -1 }, "ask_rate_limit_per_min"},
		{"no models", func(c *Config) { c.PreferredModel = " " }, "model"},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(&config)
			assert.ErrorContains(t, config.Validate(), tt.expected)
		})
	}
}
