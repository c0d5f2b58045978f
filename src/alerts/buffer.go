package alerts

import (
	"market-sentinel/src/models"
	"market-sentinel/src/utils"
)

// BufferChannel keeps the most recent signals for the read API.
type BufferChannel struct {
	Buffer *utils.SignalBuffer
}

func NewBufferChannel(buffer *utils.SignalBuffer) *BufferChannel {
	return &BufferChannel{Buffer: buffer}
}

func (b *BufferChannel) Name() string { return "buffer" }

func (b *BufferChannel) Send(signal models.MSignal) error {
	b.Buffer.Append(signal)
	return nil
}
