package interfaces

import "market-sentinel/src/models"

// -----------------------------------------------------------------------------
// IDataExchanger pushes live updates to external listeners.
// -----------------------------------------------------------------------------

type IDataExchanger interface {
	// -----------------------------------------------------------------------------
	// Broadcast queues an update for all listeners. It must not block.
	Broadcast(update models.MLiveUpdate)

	// -----------------------------------------------------------------------------
	// Start the server
	Start() error

	// -----------------------------------------------------------------------------
	// Stop the server gracefully
	Stop() error
}
