package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"market-sentinel/src/alerts"
	"market-sentinel/src/analysis"
	"market-sentinel/src/config"
	"market-sentinel/src/data_source/alpaca"
	"market-sentinel/src/data_source/yahoo"
	"market-sentinel/src/interfaces"
	"market-sentinel/src/logger"
	"market-sentinel/src/models"
	"market-sentinel/src/network"
	"market-sentinel/src/pipeline"
	"market-sentinel/src/storage"
	"market-sentinel/src/utils"
)

// -----------------------------------------------------------------------------

// cliFlags holds command line overrides. Zero values (and -1 for
// Iterations) leave the config untouched.
type cliFlags struct {
	Symbols    string
	Interval   int
	Iterations int
	Mode       string
	LogLevel   string
}

func applyFlags(c *config.Config, f cliFlags) {
	if f.Symbols != "" {
		c.Ingestion.Symbols = strings.Split(f.Symbols, ",")
	}
	if f.Interval > 0 {
		c.Ingestion.IntervalSeconds = f.Interval
	}
	if f.Iterations >= 0 {
		c.Ingestion.MaxIterations = f.Iterations
	}
	if f.Mode != "" {
		c.Ingestion.Mode = f.Mode
	}
	if f.LogLevel != "" {
		c.LogLevel = strings.ToUpper(f.LogLevel)
	}
}

// -----------------------------------------------------------------------------

// setupStore opens the SQLite tick store and creates the schema
func setupStore(cfg *models.MConfig) (*storage.SQLiteTickStore, error) {
	store := storage.NewSQLiteTickStore(cfg.Storage.DBPath, logger.NewLogger("TickStore"))
	if err := store.Initialize(); err != nil {
		return nil, err
	}
	return store, nil
}

// -----------------------------------------------------------------------------

func setupDetector(cfg *models.MConfig) (*analysis.SignalDetector, error) {
	return analysis.NewSignalDetector(analysis.FromModel(cfg.Detector), logger.NewLogger("SignalDetector"))
}

// -----------------------------------------------------------------------------

// setupDispatcher builds the alert channels in delivery order: console, file,
// webhook, then the in-memory buffer and the live feed.
func setupDispatcher(cfg *models.MConfig, signals *utils.SignalBuffer, exchanger interfaces.IDataExchanger, console io.Writer) *alerts.Dispatcher {
	dispatcher := alerts.NewDispatcher(logger.NewLogger("AlertDispatcher"))

	if cfg.Alerts.Console && console != nil {
		dispatcher.AddChannel(alerts.NewConsoleChannel(console))
	}
	if cfg.Alerts.FilePath != "" {
		dispatcher.AddChannel(alerts.NewFileChannel(cfg.Alerts.FilePath))
	}
	if cfg.Alerts.WebhookURL != "" {
		timeout := time.Duration(cfg.Network.RequestTimeout) * time.Second
		dispatcher.AddChannel(alerts.NewWebhookChannel(cfg.Alerts.WebhookURL, timeout, logger.NewLogger("WebhookChannel")))
	}
	if signals != nil {
		dispatcher.AddChannel(alerts.NewBufferChannel(signals))
	}
	if exchanger != nil {
		dispatcher.AddChannel(alerts.NewBroadcastChannel(exchanger))
	}
	return dispatcher
}

// -----------------------------------------------------------------------------

// setupIngestor builds the ingestor for the configured mode
func setupIngestor(cfg *models.MConfig) (interfaces.IIngestor, error) {
	switch cfg.Ingestion.Mode {
	case config.ModeStreaming:
		return alpaca.NewStream(alpaca.StreamConfig{
			URL:            cfg.Stream.URL,
			APIKey:         cfg.Stream.APIKey,
			APISecret:      cfg.Stream.APISecret,
			Symbols:        cfg.Ingestion.Symbols,
			ReconnectDelay: time.Duration(cfg.Stream.ReconnectDelaySeconds) * time.Second,
		}, logger.NewLogger("AlpacaStream"))

	case config.ModePolling:
		netMgr := network.NewNetworkManager(cfg.Network, logger.NewLogger("NetworkManager"))

		var scheduler *utils.MarketScheduler
		if cfg.Ingestion.MarketHoursOnly {
			scheduler = utils.NewMarketScheduler(cfg.Ingestion.Symbols, logger.NewLogger("MarketScheduler"))
		}

		source := yahoo.NewYahooFinanceSource(netMgr, scheduler, logger.NewLogger("YahooFinance"))
		return pipeline.NewPollingIngestor(
			source,
			cfg.Ingestion.Symbols,
			time.Duration(cfg.Ingestion.IntervalSeconds)*time.Second,
			cfg.Ingestion.MaxIterations,
			logger.NewLogger("PollingIngestor"),
		)

	default:
		return nil, fmt.Errorf("unknown ingestion mode %q", cfg.Ingestion.Mode)
	}
}
