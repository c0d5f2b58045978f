package config

import (
	"os"
	"path/filepath"
	"testing"

	"market-sentinel/src/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// -----------------------------------------------------------------------------

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, ModePolling, c.Ingestion.Mode)
	assert.Equal(t, 50, c.Ingestion.HistoryWindow)
	assert.Equal(t, 10, c.Detector.MinHistory)
	assert.Equal(t, 50, c.Alerts.BufferSize)
}

func TestNewConfig_YAMLOverridesDefaults(t *testing.T) {
	path := writeYAML(t, `
port: 6060
ingestion:
  symbols: [tsla, " nvda ", TSLA, ""]
  interval_seconds: 15
detector:
  price_spike_zscore: 3.0
`)
	c, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 6060, c.Port)
	assert.Equal(t, []string{"TSLA", "NVDA"}, c.Ingestion.Symbols)
	assert.Equal(t, 15, c.Ingestion.IntervalSeconds)
	assert.Equal(t, 3.0, c.Detector.PriceSpikeZScore)
	// Untouched keys keep their defaults
	assert.Equal(t, 3.0, c.Detector.VolumeSurgeMultiplier)
	assert.Equal(t, "data/ticks.db", c.Storage.DBPath)
}

func TestNewConfig_MissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestNewConfig_BadYAML(t *testing.T) {
	_, err := NewConfig(writeYAML(t, "ingestion: [not, a, map"))
	assert.Error(t, err)
}

func TestStreamingRequiresCredentials(t *testing.T) {
	t.Setenv(EnvAlpacaKey, "")
	t.Setenv(EnvAlpacaSecret, "")

	_, err := NewConfig(writeYAML(t, "ingestion:\n  mode: streaming\n"))
	require.Error(t, err)
	assert.True(t, helpers.IsConfigError(err))

	t.Setenv(EnvAlpacaKey, "key")
	t.Setenv(EnvAlpacaSecret, "secret")
	c, err := NewConfig(writeYAML(t, "ingestion:\n  mode: STREAMING\n"))
	require.NoError(t, err)
	assert.Equal(t, ModeStreaming, c.Ingestion.Mode)
	assert.Equal(t, "key", c.Stream.APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))

	// A directory exists but cannot be parsed
	assert.Error(t, LoadDotEnv(dir))

	t.Setenv(EnvAlpacaSecret, "from-env")
	path := filepath.Join(dir, "creds.env")
	require.NoError(t, os.WriteFile(path, []byte(EnvAlpacaKey+"=from-file\n"+EnvAlpacaSecret+"=ignored\n"), 0600))
	t.Setenv(EnvAlpacaKey, "")
	require.NoError(t, os.Unsetenv(EnvAlpacaKey))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv(EnvAlpacaKey))
	assert.Equal(t, "from-env", os.Getenv(EnvAlpacaSecret))
}

func TestNewConfigWith_OverrideRunsBeforeValidation(t *testing.T) {
	c, err := NewConfigWith("", func(c *Config) {
		c.Ingestion.Symbols = []string{"spy"}
		c.Ingestion.MaxIterations = 2
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY"}, c.Ingestion.Symbols)
	assert.Equal(t, 2, c.Ingestion.MaxIterations)

	_, err = NewConfigWith("", func(c *Config) { c.Ingestion.Mode = "carrier-pigeon" })
	assert.True(t, helpers.IsConfigError(err))
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty name", func(c *Config) { c.Name = "" }},
		{"bad port", func(c *Config) { c.Port = 70000 }},
		{"no db path", func(c *Config) { c.Storage.DBPath = "" }},
		{"no symbols", func(c *Config) { c.Ingestion.Symbols = []string{" "} }},
		{"zero interval", func(c *Config) { c.Ingestion.IntervalSeconds = 0 }},
		{"negative iterations", func(c *Config) { c.Ingestion.MaxIterations = -1 }},
		{"negative threshold", func(c *Config) { c.Detector.VwapDeviationPct = -0.1 }},
		{"min history zero", func(c *Config) { c.Detector.MinHistory = 0 }},
		{"min history above window", func(c *Config) { c.Detector.MinHistory = 60 }},
		{"zero buffer", func(c *Config) { c.Alerts.BufferSize = 0 }},
		{"zero rate", func(c *Config) { c.Network.RequestsPerSecond = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, helpers.IsConfigError(err))
		})
	}
}

func TestSave_StripsCredentials(t *testing.T) {
	c := Default()
	c.Stream.APIKey = "key"
	c.Stream.APISecret = "hunter2"
	c.Ingestion.Symbols = []string{"QQQ"}

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, c.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")

	loaded, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"QQQ"}, loaded.Ingestion.Symbols)
	// Caller's copy is untouched
	assert.Equal(t, "key", c.Stream.APIKey)
}
