package interfaces

import "market-sentinel/src/models"

// -----------------------------------------------------------------------------
// ISignalDetector evaluates a tick against its recent history.
// -----------------------------------------------------------------------------

type ISignalDetector interface {

	// Detect returns the signals fired by tick. history is oldest first and
	// ends with tick itself.
	Detect(tick models.MTick, history []models.MTick) []models.MSignal
}

// -----------------------------------------------------------------------------
// IAlertDispatcher delivers a signal to every configured channel.
// -----------------------------------------------------------------------------

type IAlertDispatcher interface {

	// Fire never fails; it returns how many channels accepted the signal.
	Fire(signal models.MSignal) int
}
