package config

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pashuarogyam/vetai/backoff"
	"github.com/pashuarogyam/vetai/utils/env"
)

// Config represents the full application configuration
type Config struct {
	// API key to access the Gemini API.
	GeminiApiKey string `yaml:"gemini_api_key"`

	// API key to access the vetai service. The user should provide this key in the Authorization header with the Bearer scheme.
	// Empty disables authentication.
	VetaiApiKey string `yaml:"api_key"`

	// Valkey (open-source version of Redis) endpoint to share the response cache and the quota state.
	// E.g., localhost:6379. Empty keeps both in memory.
	ValkeyEndpoint string `yaml:"valkey_endpoint"`

	// Port to listen for incoming requests.
	Port int `yaml:"port"`

	// Bounds of the adaptive spacing between two provider calls. E.g., 500ms
	MinCallInterval string `yaml:"min_call_interval"`
	MaxCallInterval string `yaml:"max_call_interval"`

	// Exponential backoff after rate-limit failures. E.g., 1s, 30s
	BaseBackoff       string  `yaml:"base_backoff"`
	MaxBackoff        string  `yaml:"max_backoff"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`

	// Network failures wait (attempt+1) times this before the next pass. E.g., 1s
	NetworkRetryStep string `yaml:"network_retry_step"`

	// Number of passes over the model list.
	MaxRetries int `yaml:"max_retries"`

	// Ceiling of successful provider calls per local day.
	DailyCallLimit int `yaml:"daily_call_limit"`

	// Time zone defining the local day. E.g., Asia/Kolkata. Empty means the host's zone.
	Timezone string `yaml:"timezone"`

	// How long answers stay cached. E.g., 1h
	CacheTTL string `yaml:"cache_ttl"`

	// Capacity of the in-memory cache. Ignored with Valkey.
	CacheMaxEntries int `yaml:"cache_max_entries"`

	// Model tried first, then the fallbacks in order.
	PreferredModel string   `yaml:"preferred_model"`
	FallbackModels []string `yaml:"fallback_models"`

	// Questions accepted per client IP and minute on /v1/ask. 0 disables the limit.
	AskRateLimitPerMin int `yaml:"ask_rate_limit_per_min"`

	// Whether to probe the preferred model at startup. The probe spends one call of the daily quota.
	RunHealthCheck bool `yaml:"run_health_check"`

	// OTLP/HTTP endpoint for traces and OTLP/gRPC endpoint for metrics. E.g., localhost:4318
	// Empty disables the exporter.
	OtlpEndpoint        string `yaml:"otlp_endpoint"`
	OtlpMetricsEndpoint string `yaml:"otlp_metrics_endpoint"`
}

// LoadConfig loads the configuration from the specified path
func LoadConfig(path string, logger *zap.SugaredLogger) (*Config, error) {
	// Setting default values
	config := Config{
		Port:               8080,
		MinCallInterval:    "500ms",
		MaxCallInterval:    "3s",
		BaseBackoff:        "1s",
		MaxBackoff:         "30s",
		BackoffMultiplier:  1.8,
		NetworkRetryStep:   "1s",
		MaxRetries:         3,
		DailyCallLimit:     1500,
		CacheTTL:           "1h",
		CacheMaxEntries:    1000,
		AskRateLimitPerMin: 30,
		PreferredModel:     "gemini-2.0-flash",
		FallbackModels:     []string{"gemini-1.5-flash", "gemini-1.5-flash-8b"},
	}

	var overrides env.Reader

	// Checks if config is specified via environment variable.
	configSource := overrides.String("CONFIG_SOURCE", path)
	configToken := overrides.String("CONFIG_TOKEN", "")
	if configSource != "" {
		configData, err := func(configSource string, configToken string) ([]byte, error) {
			// Handle URL or local path
			if strings.HasPrefix(configSource, "http://") || strings.HasPrefix(configSource, "https://") {
				logger.Infow("Fetching remote config", "url", configSource)
				return fetchRemoteConfig(configSource, configToken)
			}
			logger.Infow("Loading local config", "path", configSource)
			return os.ReadFile(configSource)
		}(configSource, configToken)

		if err != nil {
			return nil, fmt.Errorf("failed to get config data: %v", err)
		}

		// Overrides config with the YAML data.
		if err := yaml.Unmarshal(configData, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %v", err)
		}
	}

	// Overrides config with environment variables.
	// Therefore, the values from the environment variables precede the values from the YAML file.
	config.GeminiApiKey = overrides.String("GEMINI_API_KEY", config.GeminiApiKey)
	config.VetaiApiKey = overrides.String("VETAI_API_KEY", config.VetaiApiKey)
	config.ValkeyEndpoint = overrides.String("VALKEY_ENDPOINT", config.ValkeyEndpoint)
	config.Port = overrides.Int("PORT", config.Port)
	config.MaxRetries = overrides.Int("MAX_RETRIES", config.MaxRetries)
	config.DailyCallLimit = overrides.Int("DAILY_CALL_LIMIT", config.DailyCallLimit)
	config.Timezone = overrides.String("TIMEZONE", config.Timezone)
	config.PreferredModel = overrides.String("PREFERRED_MODEL", config.PreferredModel)
	config.FallbackModels = overrides.List("FALLBACK_MODELS", config.FallbackModels)
	config.AskRateLimitPerMin = overrides.Int("ASK_RATE_LIMIT_PER_MIN", config.AskRateLimitPerMin)
	config.RunHealthCheck = overrides.Bool("RUN_GEMINI_HEALTH_CHECK", config.RunHealthCheck)
	config.OtlpEndpoint = overrides.String("OTLP_ENDPOINT", config.OtlpEndpoint)
	config.OtlpMetricsEndpoint = overrides.String("OTLP_METRICS_ENDPOINT", config.OtlpMetricsEndpoint)
	if err := overrides.Err(); err != nil {
		return nil, fmt.Errorf("invalid config: %v", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %v", err)
	}
	return &config, nil
}

// Validate checks that every value is usable. Durations must parse and all
// counts must be positive.
func (c *Config) Validate() error {
	var errs []error
	durations := map[string]string{
		"min_call_interval":  c.MinCallInterval,
		"max_call_interval":  c.MaxCallInterval,
		"base_backoff":       c.BaseBackoff,
		"max_backoff":        c.MaxBackoff,
		"network_retry_step": c.NetworkRetryStep,
		"cache_ttl":          c.CacheTTL,
	}
	for name, value := range durations {
		duration, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %v", name, err))
			continue
		}
		if duration < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if len(errs) == 0 {
		if minInterval, maxInterval := mustDuration(c.MinCallInterval), mustDuration(c.MaxCallInterval); maxInterval < minInterval {
			errs = append(errs, fmt.Errorf("max_call_interval (%s) is below min_call_interval (%s)", maxInterval, minInterval))
		}
		if base, ceiling := mustDuration(c.BaseBackoff), mustDuration(c.MaxBackoff); ceiling < base {
			errs = append(errs, fmt.Errorf("max_backoff (%s) is below base_backoff (%s)", ceiling, base))
		}
	}

	if c.BackoffMultiplier < 1 {
		errs = append(errs, fmt.Errorf("backoff_multiplier must be at least 1, got %v", c.BackoffMultiplier))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max_retries must be positive, got %d", c.MaxRetries))
	}
	if c.DailyCallLimit < 1 {
		errs = append(errs, fmt.Errorf("daily_call_limit must be positive, got %d", c.DailyCallLimit))
	}
	if c.CacheMaxEntries < 1 {
		errs = append(errs, fmt.Errorf("cache_max_entries must be positive, got %d", c.CacheMaxEntries))
	}
	if c.AskRateLimitPerMin < 0 {
		errs = append(errs, fmt.Errorf("ask_rate_limit_per_min must not be negative, got %d", c.AskRateLimitPerMin))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if strings.TrimSpace(c.PreferredModel) == "" && len(c.FallbackModels) == 0 {
		errs = append(errs, errors.New("at least one model must be configured"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %v", err))
	}
	return errors.Join(errs...)
}

// Location returns the time zone that defines the local day.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Backoff returns the backoff settings. The config must be valid.
func (c *Config) Backoff() backoff.Config {
	backoffConfig := backoff.DefaultConfig()
	backoffConfig.BaseBackoff = mustDuration(c.BaseBackoff)
	backoffConfig.MaxBackoff = mustDuration(c.MaxBackoff)
	backoffConfig.Multiplier = c.BackoffMultiplier
	backoffConfig.IntervalFloor = mustDuration(c.MinCallInterval)
	backoffConfig.IntervalCeiling = mustDuration(c.MaxCallInterval)
	return backoffConfig
}

func (c *Config) CacheTTLDuration() time.Duration {
	return mustDuration(c.CacheTTL)
}

func (c *Config) NetworkRetryStepDuration() time.Duration {
	return mustDuration(c.NetworkRetryStep)
}

// Only called on validated values.
func mustDuration(value string) time.Duration {
	duration, _ := time.ParseDuration(value)
	return duration
}

func fetchRemoteConfig(url string, token string) ([]byte, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch config: HTTP %d", response.StatusCode)
	}
	// Config files are small; anything bigger is not a config file.
	return io.ReadAll(io.LimitReader(response.Body, 1<<20))
}
