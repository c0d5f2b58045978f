package models

// -----------------------------------------------------------------------------
// Live feed payloads pushed to WebSocket clients
// -----------------------------------------------------------------------------

const (
	UpdateTypeTick   = "tick"
	UpdateTypeSignal = "signal"
)

// MLiveUpdate is a single message on the live feed. Exactly one of Tick or
// Signal is set, matching Type.
type MLiveUpdate struct {
	Type      string   `json:"type"`
	Tick      *MTick   `json:"tick,omitempty"`
	Signal    *MSignal `json:"signal,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// SubscribeCommand for client messages
// -----------------------------------------------------------------------------

type MSubscribeCommand struct {
	Command string   `json:"command"`
	Symbols []string `json:"symbols"`
}
