package interfaces

import (
	"market-sentinel/src/models"
	"time"
)

// -----------------------------------------------------------------------------
// ITickStore defines the contract for tick persistence.
// -----------------------------------------------------------------------------

type ITickStore interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the schema. Calling it again is a no-op.
	Initialize() error

	// -----------------------------------------------------------------------------

	// Insert appends one tick and commits before returning.
	Insert(tick models.MTick) error

	// -----------------------------------------------------------------------------

	// GetRecent returns up to n most recent ticks for symbol, oldest first.
	GetRecent(symbol string, n int) ([]models.MTick, error)

	// -----------------------------------------------------------------------------

	// GetRange returns ticks with timestamp in [start, end], ascending.
	GetRange(symbol string, start, end time.Time) ([]models.MTick, error)

	// -----------------------------------------------------------------------------

	// GetSymbols returns the distinct symbols ever inserted, ascending.
	GetSymbols() ([]string, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
