package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.HTTPAddress())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "citegraph", cfg.Metrics.Namespace)

	assert.Equal(t, "https://api.semanticscholar.org/graph/v1", cfg.GraphAPI.BaseURL)
	assert.Equal(t, time.Second, cfg.GraphAPI.MinInterval)
	assert.Equal(t, 100, cfg.GraphAPI.PageSize)
	assert.Equal(t, 30*time.Second, cfg.GraphAPI.SearchRetryCeiling)

	assert.Equal(t, "gemini-2.0-flash", cfg.Enrichment.AbstractModel)
	assert.Equal(t, 4*time.Second, cfg.Enrichment.TaskDelay)
	assert.Equal(t, 2, cfg.Enrichment.MaxRetries)

	assert.Equal(t, 30, cfg.Cache.ExpirationDays)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CITEGRAPH_SERVER_HTTP_PORT", "9999")
	t.Setenv("CITEGRAPH_LOGGING_LEVEL", "debug")
	t.Setenv("CITEGRAPH_ENRICHMENT_TASK_DELAY", "250ms")
	t.Setenv("CITEGRAPH_GRAPH_API_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 250*time.Millisecond, cfg.Enrichment.TaskDelay)
	assert.Equal(t, "secret", cfg.GraphAPI.APIKey)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	t.Run("bad port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.HTTPPort = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := valid()
		cfg.Logging.Level = "loud"
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing graph base URL", func(t *testing.T) {
		cfg := valid()
		cfg.GraphAPI.BaseURL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero task delay", func(t *testing.T) {
		cfg := valid()
		cfg.Enrichment.TaskDelay = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("inverted retry delays", func(t *testing.T) {
		cfg := valid()
		cfg.Enrichment.RetryMinDelay = 5 * time.Second
		cfg.Enrichment.RetryMaxDelay = time.Second
		assert.Error(t, cfg.Validate())
	})

	t.Run("persistent cache without path", func(t *testing.T) {
		cfg := valid()
		cfg.Cache.Path = ""
		assert.Error(t, cfg.Validate())
	})
}
