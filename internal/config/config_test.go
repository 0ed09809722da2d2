package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 26, cfg.Categorize.ChunkSize)
	assert.Equal(t, 0.7, cfg.Categorize.ConfidenceThreshold)
	assert.Equal(t, "6900", cfg.Categorize.DefaultAccountCode)
	assert.Equal(t, "1000", cfg.Journal.CashAccountCode)
	assert.Equal(t, 0.01, cfg.Journal.BalanceTolerance)
	assert.Equal(t, PolicyInclusive, cfg.Journal.Policy)
	assert.False(t, cfg.StrictJournal())
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookkeeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
categorize:
  chunkSize: 10
  chunkTimeout: 5s
  maxConcurrency: 3
journal:
  policy: strict
oracle:
  provider: anthropic
storage:
  backend: bolt
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Categorize.ChunkSize)
	assert.Equal(t, 5*time.Second, cfg.Categorize.ChunkTimeout)
	assert.Equal(t, 3, cfg.Categorize.MaxConcurrency)
	assert.True(t, cfg.StrictJournal())
	assert.Equal(t, DefaultAnthropicModel, cfg.Oracle.Model)
	assert.Equal(t, BackendBolt, cfg.Storage.Backend)
	// untouched keys keep their defaults
	assert.Equal(t, 0.7, cfg.Categorize.ConfidenceThreshold)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"BOOKKEEPER_CHUNK_SIZE":           "13",
		"BOOKKEEPER_CONFIDENCE_THRESHOLD": "0.8",
		"BOOKKEEPER_CHUNK_TIMEOUT":        "30s",
		"GEMINI_API_KEY":                  "secret",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))

	assert.Equal(t, 13, cfg.Categorize.ChunkSize)
	assert.Equal(t, 0.8, cfg.Categorize.ConfidenceThreshold)
	assert.Equal(t, 30*time.Second, cfg.Categorize.ChunkTimeout)
	assert.Equal(t, "secret", cfg.Oracle.APIKey)
}

func TestApplyEnv_BadNumber(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "BOOKKEEPER_CHUNK_SIZE" {
			return "many", true
		}
		return "", false
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOOKKEEPER_CHUNK_SIZE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Categorize.ChunkSize = 0 }},
		{"threshold above one", func(c *Config) { c.Categorize.ConfidenceThreshold = 1.5 }},
		{"empty default account", func(c *Config) { c.Categorize.DefaultAccountCode = " " }},
		{"negative tolerance", func(c *Config) { c.Journal.BalanceTolerance = -1 }},
		{"unknown policy", func(c *Config) { c.Journal.Policy = "lenient" }},
		{"unknown provider", func(c *Config) { c.Oracle.Provider = "magic" }},
		{"bigquery without project", func(c *Config) { c.Storage.Backend = BackendBigQuery }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
