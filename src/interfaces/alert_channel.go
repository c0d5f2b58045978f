package interfaces

import "market-sentinel/src/models"

// -----------------------------------------------------------------------------
// IAlertChannel is one alert delivery destination.
// -----------------------------------------------------------------------------

type IAlertChannel interface {

	// Name identifies the channel in logs and metrics.
	Name() string

	// -----------------------------------------------------------------------------

	// Send delivers one signal.
	Send(signal models.MSignal) error
}
