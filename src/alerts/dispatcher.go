package alerts

import (
	"fmt"
	"maps"
	"sync"

	"market-sentinel/src/helpers"
	"market-sentinel/src/interfaces"
	"market-sentinel/src/logger"
	"market-sentinel/src/metrics"
	"market-sentinel/src/models"
)

// -----------------------------------------------------------------------------

// Dispatcher fans a signal out to an ordered list of channels. A failing or
// panicking channel is logged and skipped; the caller never sees the error.
type Dispatcher struct {
	channels []interfaces.IAlertChannel
	Logger   *logger.Logger
	mu       sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewDispatcher(log *logger.Logger, channels ...interfaces.IAlertChannel) *Dispatcher {
	if log == nil {
		log = logger.NewLogger("AlertDispatcher")
	}
	d := &Dispatcher{Logger: log}
	for _, ch := range channels {
		d.AddChannel(ch)
	}
	return d
}

// -----------------------------------------------------------------------------

// AddChannel appends a channel; nil is ignored.
func (d *Dispatcher) AddChannel(ch interfaces.IAlertChannel) {
	if ch == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = append(d.channels, ch)
}

// -----------------------------------------------------------------------------

// Channels returns the channel names in delivery order.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.channels))
	for i, ch := range d.channels {
		names[i] = ch.Name()
	}
	return names
}

// -----------------------------------------------------------------------------

// Fire delivers signal to every channel in order and returns how many
// channels accepted it. Each channel gets its own copy of Metadata.
func (d *Dispatcher) Fire(signal models.MSignal) int {
	d.mu.RLock()
	channels := make([]interfaces.IAlertChannel, len(d.channels))
	copy(channels, d.channels)
	d.mu.RUnlock()

	delivered := 0
	for _, ch := range channels {
		own := signal
		own.Metadata = maps.Clone(signal.Metadata)
		if err := d.send(ch, own); err != nil {
			metrics.ChannelFailures.WithLabelValues(ch.Name()).Inc()
			d.Logger.Error("%v", err)
			continue
		}
		delivered++
	}
	return delivered
}

// -----------------------------------------------------------------------------

func (d *Dispatcher) send(ch interfaces.IAlertChannel, signal models.MSignal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = helpers.NewChannelError(ch.Name(), fmt.Errorf("panic: %v", r))
		}
	}()

	if sendErr := ch.Send(signal); sendErr != nil {
		return helpers.NewChannelError(ch.Name(), sendErr)
	}
	return nil
}
