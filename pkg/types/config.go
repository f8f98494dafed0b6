// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by clients that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "cafe-collector/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// RequestsPerMinute caps the request rate against the remote API (default 10).
	RequestsPerMinute float64 `json:"requests_per_minute" yaml:"requests_per_minute" mapstructure:"requests_per_minute"`

	// Endpoint replaces the API URL, e.g. to go through a proxy or a
	// compatible server. Empty uses the public endpoint.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" mapstructure:"endpoint"`
}

// RetryConfig holds the backoff policy applied to every remote call.
type RetryConfig struct {
	// MaxAttempts is the total number of calls, including the first (default 5).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// BaseDelay is the delay before the first retry; it doubles each attempt (default 1s).
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`

	// MaxDelay caps a single backoff wait (default 60s).
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`

	// Jitter is the upper bound of the random delay added to each wait (default BaseDelay).
	Jitter time.Duration `json:"jitter" yaml:"jitter" mapstructure:"jitter"`
}

// LLMProvider identifies the text generation API.
type LLMProvider string

const (
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
)

// LLMConfig holds settings for the text generation client.
type LLMConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Provider selects the API: openai or anthropic.
	Provider LLMProvider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the model identifier (e.g. "gpt-5-mini-2025-08-07").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Temperature is the sampling temperature (default 0.4).
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	// MaxTokens bounds the reply length (default 4000).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeocodeConfig holds settings for the geocoding client.
type GeocodeConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// APIKey is the Google Maps API key. An empty key disables geocoding.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// CacheBackend selects the cache store implementation.
type CacheBackend string

const (
	CacheSQLite CacheBackend = "sqlite"
	CacheRedis  CacheBackend = "redis"
)

// CacheConfig holds settings for the cache store.
type CacheConfig struct {
	// Backend is sqlite (default) or redis.
	Backend CacheBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Dir is the directory holding cache.db and the checkpoint (default ".cache").
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// RedisAddr is the Redis address when Backend is redis (e.g. "localhost:6379").
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`

	// RedisPrefix namespaces keys in a shared Redis (default "cafe-collector").
	RedisPrefix string `json:"redis_prefix,omitempty" yaml:"redis_prefix,omitempty" mapstructure:"redis_prefix"`

	// APIResponseTTL is the lifetime of cached LLM replies (default 24h).
	APIResponseTTL time.Duration `json:"api_response_ttl" yaml:"api_response_ttl" mapstructure:"api_response_ttl"`

	// ProcessedTTL is the lifetime of processed entities (default 7 days).
	ProcessedTTL time.Duration `json:"processed_ttl" yaml:"processed_ttl" mapstructure:"processed_ttl"`

	// GeocodingTTL is the lifetime of geocoding results (default 30 days).
	GeocodingTTL time.Duration `json:"geocoding_ttl" yaml:"geocoding_ttl" mapstructure:"geocoding_ttl"`
}

// ExportConfig holds settings for the Contentful and spreadsheet exports.
type ExportConfig struct {
	// OutputDir is where exports and pipeline snapshots are written (default "output").
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// SpaceID is the Contentful space; when set it is written to each entry's sys.space.
	SpaceID string `json:"space_id,omitempty" yaml:"space_id,omitempty" mapstructure:"space_id"`

	// Locale wraps every field value (default "en-US").
	Locale string `json:"locale" yaml:"locale" mapstructure:"locale"`

	// AuthorName is written to every review (default "Chris Jordan").
	AuthorName string `json:"author_name" yaml:"author_name" mapstructure:"author_name"`
}

// Config groups the settings of every component.
type Config struct {
	LLM     LLMConfig     `json:"llm" yaml:"llm" mapstructure:"llm"`
	Geocode GeocodeConfig `json:"geocode" yaml:"geocode" mapstructure:"geocode"`
	Retry   RetryConfig   `json:"retry" yaml:"retry" mapstructure:"retry"`
	Cache   CacheConfig   `json:"cache" yaml:"cache" mapstructure:"cache"`
	Export  ExportConfig  `json:"export" yaml:"export" mapstructure:"export"`
}

// DefaultConfig returns the configuration used when no file or flag overrides a value.
func DefaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			HTTPConfig: HTTPConfig{
				Timeout:           90 * time.Second,
				UserAgent:         "cafe-collector/0.1",
				RequestsPerMinute: 10,
			},
			Provider:    ProviderOpenAI,
			Model:       "gpt-5-mini-2025-08-07",
			Temperature: 0.4,
			MaxTokens:   4000,
		},
		Geocode: GeocodeConfig{
			HTTPConfig: HTTPConfig{
				Timeout:           30 * time.Second,
				UserAgent:         "cafe-collector/0.1",
				RequestsPerMinute: 10,
			},
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   time.Second,
			MaxDelay:    time.Minute,
			Jitter:      time.Second,
		},
		Cache: CacheConfig{
			Backend:        CacheSQLite,
			Dir:            ".cache",
			RedisPrefix:    "cafe-collector",
			APIResponseTTL: 24 * time.Hour,
			ProcessedTTL:   7 * 24 * time.Hour,
			GeocodingTTL:   30 * 24 * time.Hour,
		},
		Export: ExportConfig{
			OutputDir:  "output",
			Locale:     "en-US",
			AuthorName: "Chris Jordan",
		},
	}
}
