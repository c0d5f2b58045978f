package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market-sentinel/src/config"
	"market-sentinel/src/logger"
	"market-sentinel/src/pipeline"
	"market-sentinel/src/server"
	"market-sentinel/src/utils"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "", "path to YAML config file (built-in defaults when empty)")
	symbols := flag.String("symbols", "", "comma-separated symbols, overrides config")
	interval := flag.Int("interval", 0, "poll interval in seconds, overrides config")
	iterations := flag.Int("iterations", -1, "number of polling sweeps, 0 runs forever, overrides config")
	mode := flag.String("mode", "", "ingestion mode: polling or streaming")
	logLevel := flag.String("log-level", "", "DEBUG, INFO, WARNING or ERROR")
	flag.Parse()

	// Load config, then apply flags
	conf, err := config.NewConfigWith(*configPath, func(c *config.Config) {
		applyFlags(c, cliFlags{
			Symbols:    *symbols,
			Interval:   *interval,
			Iterations: *iterations,
			Mode:       *mode,
			LogLevel:   *logLevel,
		})
	})
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	if err := logger.Init(logger.Options{Level: conf.LogLevel, OutputFile: conf.LogFile}); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	appLogger := logger.NewLogger(conf.Name)
	appLogger.Info("Starting %s | mode=%s | symbols=%v", conf.Name, conf.Ingestion.Mode, conf.Ingestion.Symbols)

	// Setup components
	store, err := setupStore(conf.MConfig)
	if err != nil {
		appLogger.Critical("Failed to open tick store: %v", err)
	}

	detector, err := setupDetector(conf.MConfig)
	if err != nil {
		appLogger.Critical("Invalid detector config: %v", err)
	}

	signals := utils.NewSignalBuffer(conf.Alerts.BufferSize)
	srv := server.NewAPIServer(conf.MConfig, store, signals, logger.NewLogger("APIServer"))
	dispatcher := setupDispatcher(conf.MConfig, signals, srv, os.Stdout)

	ingestor, err := setupIngestor(conf.MConfig)
	if err != nil {
		appLogger.Critical("Failed to build ingestor: %v", err)
	}

	p, err := pipeline.New(ingestor, store, detector, dispatcher, logger.NewLogger("Pipeline"))
	if err != nil {
		appLogger.Critical("Failed to build pipeline: %v", err)
	}
	p.HistoryWindow = conf.Ingestion.HistoryWindow
	p.Exchanger = srv

	// Start servers
	startServers(srv, appLogger)

	// Lifecycle management
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Start(ctx); err != nil {
		appLogger.Critical("Failed to start pipeline: %v", err)
	}

	select {
	case <-ctx.Done():
		appLogger.Info("Shutdown signal received, finishing in-flight work...")
		p.Stop()
	case <-p.Done():
	}
	p.Wait()

	stopServers(srv, appLogger)

	processed, fired := p.Stats()
	appLogger.Info("Shutdown complete: %d ticks processed, %d signals fired", processed, fired)
}
