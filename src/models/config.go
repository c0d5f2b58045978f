package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	LogLevel  string           `yaml:"log_level"`
	LogFile   string           `yaml:"log_file"`
	Storage   MStorageConfig   `yaml:"storage"`
	Network   MNetworkConfig   `yaml:"network"`
	Ingestion MIngestionConfig `yaml:"ingestion"`
	Detector  MDetectorConfig  `yaml:"detector"`
	Alerts    MAlertsConfig    `yaml:"alerts"`
	Stream    MStreamConfig    `yaml:"stream"`
}

type MStorageConfig struct {
	DBPath string `yaml:"db_path"`
}

type MNetworkConfig struct {
	Proxies           []string `yaml:"proxies"`
	RequestTimeout    int      `yaml:"timeout"`
	MaxRetries        int      `yaml:"retries"`
	RequestsPerSecond int      `yaml:"requests_per_second"`
	UserAgent         string   `yaml:"user_agent"`
}

type MIngestionConfig struct {
	Mode            string   `yaml:"mode"` // "polling" or "streaming"
	Symbols         []string `yaml:"symbols"`
	IntervalSeconds int      `yaml:"interval_seconds"`
	MaxIterations   int      `yaml:"max_iterations"` // 0 = run forever
	HistoryWindow   int      `yaml:"history_window"`
	MarketHoursOnly bool     `yaml:"market_hours_only"`
}

type MDetectorConfig struct {
	PriceSpikeZScore          float64 `yaml:"price_spike_zscore"`
	VolumeSurgeMultiplier     float64 `yaml:"volume_surge_multiplier"`
	VolatilityBurstMultiplier float64 `yaml:"volatility_burst_multiplier"`
	VwapDeviationPct          float64 `yaml:"vwap_deviation_pct"`
	MinHistory                int     `yaml:"min_history"`
}

type MAlertsConfig struct {
	Console    bool   `yaml:"console"`
	FilePath   string `yaml:"file_path"`
	WebhookURL string `yaml:"webhook_url"`
	BufferSize int    `yaml:"buffer_size"`
}

type MStreamConfig struct {
	URL                   string `yaml:"url"`
	APIKey                string `yaml:"api_key"`
	APISecret             string `yaml:"api_secret"`
	ReconnectDelaySeconds int    `yaml:"reconnect_delay_seconds"`
}
