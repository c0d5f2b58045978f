package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"market-sentinel/src/helpers"
	"market-sentinel/src/interfaces"
	"market-sentinel/src/logger"
	"market-sentinel/src/metrics"
	"market-sentinel/src/models"
	"market-sentinel/src/utils"
)

// PollingIngestor sweeps the symbol list once per interval, pulling one tick
// per symbol from Source.
type PollingIngestor struct {
	Source        interfaces.ITickSource
	Symbols       []string
	Interval      time.Duration
	MaxIterations int // 0 = run until stopped
	Clock         utils.Clock
	Logger        *logger.Logger

	iterations atomic.Int64
	running    atomic.Bool
	cancel     context.CancelFunc
	mu         sync.Mutex
}

// -----------------------------------------------------------------------------

func NewPollingIngestor(source interfaces.ITickSource, symbols []string, interval time.Duration, maxIterations int, log *logger.Logger) (*PollingIngestor, error) {
	if source == nil {
		return nil, helpers.NewConfigError("polling ingestor requires a tick source")
	}
	if len(symbols) == 0 {
		return nil, helpers.NewConfigError("polling ingestor requires at least one symbol")
	}
	if interval <= 0 {
		return nil, helpers.NewConfigError("poll interval must be positive, got %s", interval)
	}
	if maxIterations < 0 {
		return nil, helpers.NewConfigError("max iterations cannot be negative")
	}
	if log == nil {
		log = logger.NewLogger("PollingIngestor")
	}

	return &PollingIngestor{
		Source:        source,
		Symbols:       append([]string(nil), symbols...),
		Interval:      interval,
		MaxIterations: maxIterations,
		Clock:         utils.RealClock{},
		Logger:        log,
	}, nil
}

// -----------------------------------------------------------------------------

func (p *PollingIngestor) Name() string {
	return "poll:" + p.Source.Name()
}

// Iterations returns the number of completed sweeps.
func (p *PollingIngestor) Iterations() int64 {
	return p.iterations.Load()
}

// -----------------------------------------------------------------------------

// Start begins the sweep loop
func (p *PollingIngestor) Start(parentCtx context.Context, outputChan chan<- models.MTick, wg *sync.WaitGroup) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return fmt.Errorf("ingestor %s is already running", p.Name())
	}

	ctx, cancel := context.WithCancel(parentCtx)
	p.cancel = cancel
	p.running.Store(true)

	wg.Add(1)
	go p.runLoop(ctx, outputChan, wg)
	p.Logger.Info("Polling %d symbols every %s (max iterations: %d)", len(p.Symbols), p.Interval, p.MaxIterations)
	return nil
}

// -----------------------------------------------------------------------------

// Stop cancels the loop. A sweep already in progress still completes.
func (p *PollingIngestor) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// -----------------------------------------------------------------------------

func (p *PollingIngestor) runLoop(ctx context.Context, out chan<- models.MTick, wg *sync.WaitGroup) {
	defer wg.Done()
	defer p.running.Store(false)

	for {
		if ctx.Err() != nil {
			p.Logger.Info("Polling stopped after %d iterations", p.Iterations())
			return
		}

		p.sweep(ctx, out)

		n := p.iterations.Add(1)
		if p.MaxIterations > 0 && n >= int64(p.MaxIterations) {
			p.Logger.Info("Reached max iterations (%d). Stopping.", p.MaxIterations)
			return
		}

		p.Logger.Debug("Sweep %d done, sleeping %s", n, p.Interval)
		select {
		case <-ctx.Done():
			p.Logger.Info("Polling stopped after %d iterations", n)
			return
		case <-p.Clock.After(p.Interval):
		}
	}
}

// -----------------------------------------------------------------------------

// sweep fetches every symbol once. Fetches are detached from cancellation so
// a stop request lets the sweep finish.
func (p *PollingIngestor) sweep(ctx context.Context, out chan<- models.MTick) {
	fetchCtx := context.WithoutCancel(ctx)

	for _, symbol := range p.Symbols {
		tick, err := p.Source.Fetch(fetchCtx, symbol)
		if err != nil {
			category := helpers.Category(err)
			metrics.FetchErrors.WithLabelValues(symbol).Inc()
			if category == "parse" {
				metrics.ParseErrors.WithLabelValues(p.Source.Name()).Inc()
			}
			p.Logger.Error("Fetch error for %s [%s]: %v", symbol, category, err)
			continue
		}
		if tick == nil {
			p.Logger.Debug("%s: no data this sweep", symbol)
			continue
		}
		out <- *tick
	}
}
