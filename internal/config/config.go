// Package config provides configuration management for the citation
// exploration service.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// GraphAPI contains citation graph API client settings.
	GraphAPI GraphAPIConfig `mapstructure:"graph_api"`
	// Enrichment contains enrichment API client settings.
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	// Cache contains negative-result cache settings.
	Cache CacheConfig `mapstructure:"cache"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading a request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing a response. SSE
	// progress streams are exempt via http.ResponseController.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// GraphAPIConfig holds citation graph API client settings.
type GraphAPIConfig struct {
	// APIKey is the graph API key (loaded from CITEGRAPH_GRAPH_API_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// MinInterval is the spacing between consecutive calls.
	MinInterval time.Duration `mapstructure:"min_interval"`
	// MaxRetries is the retry budget for rate-limited calls.
	MaxRetries int `mapstructure:"max_retries"`
	// PageSize is the per-request page size for citation listings.
	PageSize int `mapstructure:"page_size"`
	// SearchRetryCeiling is the wall-clock budget for search retries.
	SearchRetryCeiling time.Duration `mapstructure:"search_retry_ceiling"`
	// SearchMaxDelay caps the delay between search retries.
	SearchMaxDelay time.Duration `mapstructure:"search_max_delay"`
	// FirstDegreeLimit caps citations loaded for the selected paper.
	FirstDegreeLimit int `mapstructure:"first_degree_limit"`
	// SecondDegreeLimit caps citations loaded per first-degree paper.
	SecondDegreeLimit int `mapstructure:"second_degree_limit"`
}

// EnrichmentConfig holds enrichment API client settings. The API key is
// supplied per request by the caller and deliberately has no config field.
type EnrichmentConfig struct {
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// AbstractModel is the model used for abstract lookups.
	AbstractModel string `mapstructure:"abstract_model"`
	// TopicsModel is the model used for topic generation and assignment.
	TopicsModel string `mapstructure:"topics_model"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the number of additional attempts per fetch.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryMinDelay and RetryMaxDelay bound the randomized retry wait.
	RetryMinDelay time.Duration `mapstructure:"retry_min_delay"`
	RetryMaxDelay time.Duration `mapstructure:"retry_max_delay"`
	// TaskDelay is the fixed spacing between enrichment tasks.
	TaskDelay time.Duration `mapstructure:"task_delay"`
}

// CacheConfig holds negative-result cache settings.
type CacheConfig struct {
	// Path is the badger directory for the cache.
	Path string `mapstructure:"path"`
	// InMemory keeps the cache off disk (testing only).
	InMemory bool `mapstructure:"in_memory"`
	// ExpirationDays is how long a negative result is trusted.
	ExpirationDays int `mapstructure:"expiration_days"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CITEGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/citation-compass")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The graph API key is loaded exclusively from the environment; the
	// mapstructure:"-" tag keeps it out of config files.
	cfg.GraphAPI.APIKey = v.GetString("graph_api.api_key")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "citegraph")

	// Graph API defaults
	v.SetDefault("graph_api.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("graph_api.timeout", "30s")
	v.SetDefault("graph_api.min_interval", "1s")
	v.SetDefault("graph_api.max_retries", 3)
	v.SetDefault("graph_api.page_size", 100)
	v.SetDefault("graph_api.search_retry_ceiling", "30s")
	v.SetDefault("graph_api.search_max_delay", "5s")
	v.SetDefault("graph_api.first_degree_limit", 300)
	v.SetDefault("graph_api.second_degree_limit", 100)

	// Enrichment defaults
	v.SetDefault("enrichment.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("enrichment.abstract_model", "gemini-2.0-flash")
	v.SetDefault("enrichment.topics_model", "gemini-2.5-flash-preview-05-20")
	v.SetDefault("enrichment.timeout", "60s")
	v.SetDefault("enrichment.max_retries", 2)
	v.SetDefault("enrichment.retry_min_delay", "2s")
	v.SetDefault("enrichment.retry_max_delay", "5s")
	v.SetDefault("enrichment.task_delay", "4s")

	// Cache defaults
	v.SetDefault("cache.path", "data/negcache")
	v.SetDefault("cache.in_memory", false)
	v.SetDefault("cache.expiration_days", 30)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.GraphAPI.BaseURL == "" {
		return fmt.Errorf("graph API base URL is required")
	}
	if c.GraphAPI.MinInterval <= 0 {
		return fmt.Errorf("graph API min_interval must be positive")
	}
	if c.GraphAPI.PageSize <= 0 {
		return fmt.Errorf("graph API page_size must be positive")
	}
	if c.GraphAPI.FirstDegreeLimit <= 0 || c.GraphAPI.SecondDegreeLimit <= 0 {
		return fmt.Errorf("graph API citation limits must be positive")
	}

	if c.Enrichment.BaseURL == "" {
		return fmt.Errorf("enrichment base URL is required")
	}
	if c.Enrichment.TaskDelay <= 0 {
		return fmt.Errorf("enrichment task_delay must be positive")
	}
	if c.Enrichment.RetryMaxDelay < c.Enrichment.RetryMinDelay {
		return fmt.Errorf("enrichment retry_max_delay must be >= retry_min_delay")
	}

	if !c.Cache.InMemory && c.Cache.Path == "" {
		return fmt.Errorf("cache path is required for a persistent cache")
	}
	if c.Cache.ExpirationDays <= 0 {
		return fmt.Errorf("cache expiration_days must be positive")
	}

	return nil
}
