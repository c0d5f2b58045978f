package alerts

import (
	"time"

	"market-sentinel/src/interfaces"
	"market-sentinel/src/models"
)

// BroadcastChannel pushes signals to live-feed subscribers.
type BroadcastChannel struct {
	Exchanger interfaces.IDataExchanger
}

func NewBroadcastChannel(exchanger interfaces.IDataExchanger) *BroadcastChannel {
	return &BroadcastChannel{Exchanger: exchanger}
}

func (b *BroadcastChannel) Name() string { return "broadcast" }

func (b *BroadcastChannel) Send(signal models.MSignal) error {
	s := signal
	b.Exchanger.Broadcast(models.MLiveUpdate{
		Type:      models.UpdateTypeSignal,
		Signal:    &s,
		Timestamp: time.Now().Unix(),
	})
	return nil
}
