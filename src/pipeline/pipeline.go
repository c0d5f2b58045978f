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

// -----------------------------------------------------------------------------

// Pipeline connects one ingestor to the store, detector and dispatcher. Ticks
// are processed on a single consumer goroutine in arrival order.
type Pipeline struct {
	Ingestor      interfaces.IIngestor
	Store         interfaces.ITickStore
	Detector      interfaces.ISignalDetector
	Dispatcher    interfaces.IAlertDispatcher
	Exchanger     interfaces.IDataExchanger // optional live feed
	HistoryWindow int
	Logger        *logger.Logger
	Errors        *helpers.ErrorHandler

	ticks   chan models.MTick
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool

	processed atomic.Int64
	fired     atomic.Int64
}

// -----------------------------------------------------------------------------

func New(ingestor interfaces.IIngestor, store interfaces.ITickStore, detector interfaces.ISignalDetector, dispatcher interfaces.IAlertDispatcher, log *logger.Logger) (*Pipeline, error) {
	switch {
	case ingestor == nil:
		return nil, helpers.NewConfigError("pipeline requires an ingestor")
	case store == nil:
		return nil, helpers.NewConfigError("pipeline requires a tick store")
	case detector == nil:
		return nil, helpers.NewConfigError("pipeline requires a detector")
	case dispatcher == nil:
		return nil, helpers.NewConfigError("pipeline requires a dispatcher")
	}
	if log == nil {
		log = logger.NewLogger("Pipeline")
	}

	return &Pipeline{
		Ingestor:      ingestor,
		Store:         store,
		Detector:      detector,
		Dispatcher:    dispatcher,
		HistoryWindow: utils.DefaultHistoryWindow,
		Logger:        log,
		Errors:        helpers.NewErrorHandler(log),
		done:          make(chan struct{}),
	}, nil
}

// -----------------------------------------------------------------------------

// Start launches the ingestor and the consumer. When the ingestor finishes,
// either by stop or by reaching its iteration cap, every delivered tick is
// processed, the store is closed and Done is closed.
func (p *Pipeline) Start(parentCtx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already started")
	}

	ctx, cancel := context.WithCancel(parentCtx)
	p.cancel = cancel
	p.ticks = make(chan models.MTick, utils.TickQueueSize)

	if err := p.Ingestor.Start(ctx, p.ticks, &p.wg); err != nil {
		cancel()
		close(p.done)
		return err
	}

	go p.consume()
	go func() {
		p.wg.Wait()
		close(p.ticks)
	}()

	p.Logger.Info("Pipeline started with %s (history window %d)", p.Ingestor.Name(), p.HistoryWindow)
	return nil
}

// -----------------------------------------------------------------------------

// Stop asks the ingestor to finish. It returns immediately; use Wait or Done
// to observe completion.
func (p *Pipeline) Stop() error {
	if !p.started.Load() {
		return nil
	}
	if p.cancel != nil {
		p.cancel()
	}
	return p.Ingestor.Stop()
}

// -----------------------------------------------------------------------------

func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

func (p *Pipeline) Wait() {
	<-p.done
}

// Stats returns the number of ticks processed and signals fired.
func (p *Pipeline) Stats() (processed, fired int64) {
	return p.processed.Load(), p.fired.Load()
}

// -----------------------------------------------------------------------------

func (p *Pipeline) consume() {
	defer close(p.done)

	for tick := range p.ticks {
		p.ProcessTick(tick)
	}

	p.Errors.Handle(p.Store.Close(), "close store")
	processed, fired := p.Stats()
	p.Logger.Info("Pipeline stopped: %d ticks processed, %d signals fired", processed, fired)
}

// -----------------------------------------------------------------------------

// ProcessTick stores tick, reads its recent window, runs detection and fires
// every resulting signal. A storage failure skips the tick; it is never fatal.
func (p *Pipeline) ProcessTick(tick models.MTick) []models.MSignal {
	if err := p.Store.Insert(tick); err != nil {
		metrics.StoreErrors.Inc()
		p.Errors.Handle(err, "insert "+tick.Symbol)
		return nil
	}
	p.processed.Add(1)
	metrics.TicksIngested.WithLabelValues(tick.Symbol, p.Ingestor.Name()).Inc()

	if p.Exchanger != nil {
		t := tick
		p.Exchanger.Broadcast(models.MLiveUpdate{
			Type:      models.UpdateTypeTick,
			Tick:      &t,
			Timestamp: time.Now().Unix(),
		})
	}

	history, err := p.Store.GetRecent(tick.Symbol, p.HistoryWindow)
	if err != nil {
		metrics.StoreErrors.Inc()
		p.Errors.Handle(err, "history "+tick.Symbol)
		return nil
	}

	signals := p.Detector.Detect(tick, history)
	for _, signal := range signals {
		metrics.SignalsFired.WithLabelValues(string(signal.Kind)).Inc()
		p.fired.Add(1)
		p.Dispatcher.Fire(signal)
	}

	p.Logger.Debug("%s | history=%d | signals=%d", tick, len(history), len(signals))
	return signals
}
