package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"market-sentinel/src/helpers"
	"market-sentinel/src/logger"
	"market-sentinel/src/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ModePolling   = "polling"
	ModeStreaming = "streaming"

	EnvAlpacaKey    = "ALPACA_API_KEY"
	EnvAlpacaSecret = "ALPACA_SECRET_KEY"

	DotEnvFile = ".env"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// Default returns a configuration populated with the pipeline defaults.
func Default() *Config {
	return &Config{MConfig: &models.MConfig{
		Name:     "market-sentinel",
		Host:     "127.0.0.1",
		Port:     5050,
		LogLevel: "INFO",
		LogFile:  "logs/pipeline.log",
		Storage:  models.MStorageConfig{DBPath: "data/ticks.db"},
		Network: models.MNetworkConfig{
			RequestTimeout:    10,
			MaxRetries:        2,
			RequestsPerSecond: 5,
		},
		Ingestion: models.MIngestionConfig{
			Mode:            ModePolling,
			Symbols:         []string{"AAPL", "MSFT", "SPY"},
			IntervalSeconds: 60,
			HistoryWindow:   50,
		},
		Detector: models.MDetectorConfig{
			PriceSpikeZScore:          2.5,
			VolumeSurgeMultiplier:     3.0,
			VolatilityBurstMultiplier: 2.5,
			VwapDeviationPct:          0.5,
			MinHistory:                10,
		},
		Alerts: models.MAlertsConfig{
			Console:    true,
			FilePath:   "logs/alerts.log",
			BufferSize: 50,
		},
		Stream: models.MStreamConfig{
			URL:                   "wss://stream.data.alpaca.markets/v2/iex",
			ReconnectDelaySeconds: 5,
		},
	}}
}

// -----------------------------------------------------------------------------

// NewConfig builds the configuration: defaults, then the YAML file (if a path
// is given), then credentials from the environment / .env file.
func NewConfig(configPath string) (*Config, error) {
	return NewConfigWith(configPath, nil)
}

// -----------------------------------------------------------------------------

// NewConfigWith is NewConfig with a hook that runs after loading and before
// validation, used for command line overrides.
func NewConfigWith(configPath string, override func(*Config)) (*Config, error) {
	config := Default()

	if configPath != "" {
		// 1. Read the YAML file content
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
		}

		// 2. Unmarshal over the defaults
		if err := yaml.Unmarshal(data, config.MConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
		}
	}

	// 3. Credentials never live in YAML checked into a repo
	if err := LoadDotEnv(DotEnvFile); err != nil {
		logger.NewLogger("Config").Warning("Ignoring %s: %v", DotEnvFile, err)
	}
	config.ApplyEnv()

	if override != nil {
		override(config)
	}

	// 4. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// LoadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// -----------------------------------------------------------------------------

// ApplyEnv overrides stream credentials from the environment when set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAlpacaKey); v != "" {
		c.Stream.APIKey = v
	}
	if v := os.Getenv(EnvAlpacaSecret); v != "" {
		c.Stream.APISecret = v
	}
}

// -----------------------------------------------------------------------------

// Normalize upper-cases symbols and drops blanks and duplicates.
func (c *Config) Normalize() {
	seen := make(map[string]struct{}, len(c.Ingestion.Symbols))
	symbols := make([]string, 0, len(c.Ingestion.Symbols))
	for _, s := range c.Ingestion.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		symbols = append(symbols, s)
	}
	c.Ingestion.Symbols = symbols
	c.Ingestion.Mode = strings.ToLower(strings.TrimSpace(c.Ingestion.Mode))
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	c.Normalize()

	if c.Name == "" {
		return helpers.NewConfigError("application name cannot be empty")
	}
	if c.Port < 0 || c.Port > 65535 {
		return helpers.NewConfigError("invalid server port number: %d", c.Port)
	}

	// Storage
	if c.Storage.DBPath == "" {
		return helpers.NewConfigError("database path cannot be empty")
	}

	// Network
	if c.Network.RequestTimeout <= 0 {
		return helpers.NewConfigError("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return helpers.NewConfigError("max retries cannot be negative")
	}
	if c.Network.RequestsPerSecond <= 0 {
		return helpers.NewConfigError("requests per second must be greater than 0")
	}

	// Ingestion
	switch c.Ingestion.Mode {
	case ModePolling, ModeStreaming:
	default:
		return helpers.NewConfigError("unknown ingestion mode %q (want %s or %s)", c.Ingestion.Mode, ModePolling, ModeStreaming)
	}
	if len(c.Ingestion.Symbols) == 0 {
		return helpers.NewConfigError("at least one symbol must be configured")
	}
	if c.Ingestion.IntervalSeconds <= 0 {
		return helpers.NewConfigError("polling interval must be greater than 0")
	}
	if c.Ingestion.MaxIterations < 0 {
		return helpers.NewConfigError("max iterations cannot be negative")
	}
	if c.Ingestion.HistoryWindow <= 0 {
		return helpers.NewConfigError("history window must be greater than 0")
	}

	// Detector
	d := c.Detector
	if d.PriceSpikeZScore < 0 || d.VolumeSurgeMultiplier < 0 || d.VolatilityBurstMultiplier < 0 || d.VwapDeviationPct < 0 {
		return helpers.NewConfigError("detector thresholds cannot be negative")
	}
	if d.MinHistory < 1 {
		return helpers.NewConfigError("min history must be at least 1")
	}
	if d.MinHistory > c.Ingestion.HistoryWindow {
		return helpers.NewConfigError("min history (%d) exceeds history window (%d)", d.MinHistory, c.Ingestion.HistoryWindow)
	}

	// Alerts
	if c.Alerts.BufferSize <= 0 {
		return helpers.NewConfigError("alert buffer size must be greater than 0")
	}

	// Stream credentials are checked here and again when the stream is built
	if c.Ingestion.Mode == ModeStreaming {
		if c.Stream.URL == "" {
			return helpers.NewConfigError("stream url cannot be empty")
		}
		if c.Stream.APIKey == "" || c.Stream.APISecret == "" {
			return helpers.NewConfigError("streaming mode requires %s and %s", EnvAlpacaKey, EnvAlpacaSecret)
		}
		if c.Stream.ReconnectDelaySeconds <= 0 {
			return helpers.NewConfigError("reconnect delay must be greater than 0")
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// Credentials are environment-only
	out := *c.MConfig
	out.Stream.APIKey = ""
	out.Stream.APISecret = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
