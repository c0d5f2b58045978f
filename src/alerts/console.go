package alerts

import (
	"fmt"
	"io"
	"os"
	"sync"

	"market-sentinel/src/models"
)

var icons = map[models.SignalKind]string{
	models.SignalPriceSpike:      "⚡",
	models.SignalVolumeSurge:     "📈",
	models.SignalVolatilityBurst: "🌊",
	models.SignalVwapDeviation:   "📐",
}

// -----------------------------------------------------------------------------

// ConsoleChannel writes one line per signal.
type ConsoleChannel struct {
	Out io.Writer
	mu  sync.Mutex
}

func NewConsoleChannel(out io.Writer) *ConsoleChannel {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleChannel{Out: out}
}

func (c *ConsoleChannel) Name() string { return "console" }

func (c *ConsoleChannel) Send(signal models.MSignal) error {
	icon, ok := icons[signal.Kind]
	if !ok {
		icon = "🔔"
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.Out, "%s  %s  [%s]\n", icon, signal.String(), signal.Timestamp.UTC().Format("15:04:05"))
	return err
}
