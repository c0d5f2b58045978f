package interfaces

import (
	"context"
	"market-sentinel/src/models"
	"sync"
)

// -----------------------------------------------------------------------------
// ITickSource fetches the latest tick for one symbol on demand (pull mode).
// -----------------------------------------------------------------------------

type ITickSource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// Fetch returns the latest tick, or nil when no data is available
	// (e.g. market closed). Transport failures are returned, not swallowed.
	Fetch(ctx context.Context, symbol string) (*models.MTick, error)
}

// -----------------------------------------------------------------------------
// IIngestor produces ticks on its own goroutine (polling or streaming).
// -----------------------------------------------------------------------------

type IIngestor interface {

	// Name returns the unique identifier of the ingestor
	Name() string

	// -----------------------------------------------------------------------------

	// Start begins producing ticks
	// ctx: controls the lifecycle (cancellation stops the ingestor)
	// outputChan: channel to push ticks to; sends are never dropped
	// wg: WaitGroup to signal when the ingestor has fully stopped
	Start(ctx context.Context, outputChan chan<- models.MTick, wg *sync.WaitGroup) error

	// -----------------------------------------------------------------------------

	// Stop terminates the ingestor without waiting for it to drain.
	Stop() error
}
