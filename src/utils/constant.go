package utils

import "time"

// -----------------------------------------------------------------------------

// Pipeline defaults, used when configuration leaves a value unset.
const (
	DefaultHistoryWindow    = 50
	DefaultSignalBufferSize = 50
	DefaultPollInterval     = 60 * time.Second
	DefaultReconnectDelay   = 5 * time.Second

	// Consumer queue between ingestor and pipeline
	TickQueueSize = 256
)
