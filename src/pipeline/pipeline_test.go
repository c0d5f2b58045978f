package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"market-sentinel/src/alerts"
	"market-sentinel/src/analysis"
	"market-sentinel/src/helpers"
	"market-sentinel/src/logger"
	"market-sentinel/src/models"
	"market-sentinel/src/storage"
	"market-sentinel/src/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

var t0 = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

// scriptedSource returns prices[symbol][n] on the n-th fetch of symbol.
type scriptedSource struct {
	prices map[string][]float64
	errs   map[string]error

	// gate, when set, blocks every fetch until it is closed.
	gate    chan struct{}
	entered chan string

	mu      sync.Mutex
	calls   map[string]int
	ctxErrs []error
}

func newScriptedSource(prices map[string][]float64) *scriptedSource {
	return &scriptedSource{
		prices:  prices,
		errs:    map[string]error{},
		calls:   map[string]int{},
		entered: make(chan string, 64),
	}
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Fetch(ctx context.Context, symbol string) (*models.MTick, error) {
	s.mu.Lock()
	n := s.calls[symbol]
	s.calls[symbol]++
	s.mu.Unlock()

	s.entered <- symbol
	if s.gate != nil {
		<-s.gate
	}

	s.mu.Lock()
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	s.mu.Unlock()

	if err := s.errs[symbol]; err != nil {
		return nil, err
	}
	ps := s.prices[symbol]
	if n >= len(ps) {
		return nil, nil
	}
	return &models.MTick{
		Symbol:    symbol,
		Timestamp: t0.Add(time.Duration(n) * time.Minute),
		Price:     ps[n],
		Volume:    1000,
	}, nil
}

func (s *scriptedSource) callCount(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[symbol]
}

// immediateClock fires every wait at once.
type immediateClock struct{}

func (immediateClock) Now() time.Time { return time.Now().UTC() }

func (immediateClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// blockingClock never fires; it reports each wait on called.
type blockingClock struct {
	called chan time.Duration
}

func (c *blockingClock) Now() time.Time { return time.Now().UTC() }

func (c *blockingClock) After(d time.Duration) <-chan time.Time {
	c.called <- d
	return make(chan time.Time)
}

// recordingChannel keeps every signal it receives.
type recordingChannel struct {
	mu      sync.Mutex
	signals []models.MSignal
}

func (r *recordingChannel) Name() string { return "recorder" }

func (r *recordingChannel) Send(s models.MSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
	return nil
}

func (r *recordingChannel) received() []models.MSignal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.MSignal(nil), r.signals...)
}

// recordingExchanger captures live updates.
type recordingExchanger struct {
	mu      sync.Mutex
	updates []models.MLiveUpdate
}

func (r *recordingExchanger) Broadcast(u models.MLiveUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}
func (r *recordingExchanger) Start() error { return nil }
func (r *recordingExchanger) Stop() error  { return nil }

// sliceIngestor pushes a fixed list of ticks, then finishes.
type sliceIngestor struct {
	ticks []models.MTick
}

func (s *sliceIngestor) Name() string { return "slice" }

func (s *sliceIngestor) Start(ctx context.Context, out chan<- models.MTick, wg *sync.WaitGroup) error {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, t := range s.ticks {
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (s *sliceIngestor) Stop() error { return nil }

// failingStore rejects inserts for one symbol.
type failingStore struct {
	*storage.SQLiteTickStore
	failSymbol string
}

func (f *failingStore) Insert(tick models.MTick) error {
	if tick.Symbol == f.failSymbol {
		return helpers.NewStorageError(nil, "disk full")
	}
	return f.SQLiteTickStore.Insert(tick)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func newStore(t *testing.T) (*storage.SQLiteTickStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ticks.db")
	store := storage.NewSQLiteTickStore(path, nil)
	require.NoError(t, store.Initialize())
	return store, path
}

// reopen opens the database again after the pipeline has closed it.
func reopen(t *testing.T, path string) *storage.SQLiteTickStore {
	t.Helper()
	store := storage.NewSQLiteTickStore(path, nil)
	require.NoError(t, store.Initialize())
	t.Cleanup(func() { store.Close() })
	return store
}

func newDetector(t *testing.T, cfg analysis.DetectorConfig) *analysis.SignalDetector {
	t.Helper()
	d, err := analysis.NewSignalDetector(cfg, nil)
	require.NoError(t, err)
	return d
}

func newPoller(t *testing.T, src *scriptedSource, symbols []string, maxIter int, clock utils.Clock) *PollingIngestor {
	t.Helper()
	p, err := NewPollingIngestor(src, symbols, time.Minute, maxIter, nil)
	require.NoError(t, err)
	p.Clock = clock
	return p
}

func waitDone(t *testing.T, p *Pipeline) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(waitTimeout):
		t.Fatal("pipeline did not stop")
	}
}

func prices(ticks []models.MTick) []float64 {
	out := make([]float64, len(ticks))
	for i, t := range ticks {
		out[i] = t.Price
	}
	return out
}

// -----------------------------------------------------------------------------
// Construction
// -----------------------------------------------------------------------------

func TestNewPollingIngestor_Validation(t *testing.T) {
	src := newScriptedSource(nil)

	tests := []struct {
		name     string
		src      *scriptedSource
		symbols  []string
		interval time.Duration
		maxIter  int
	}{
		{"no source", nil, []string{"AAPL"}, time.Second, 0},
		{"no symbols", src, nil, time.Second, 0},
		{"zero interval", src, []string{"AAPL"}, 0, 0},
		{"negative cap", src, []string{"AAPL"}, time.Second, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.src == nil {
				_, err = NewPollingIngestor(nil, tt.symbols, tt.interval, tt.maxIter, nil)
			} else {
				_, err = NewPollingIngestor(tt.src, tt.symbols, tt.interval, tt.maxIter, nil)
			}
			require.Error(t, err)
			assert.True(t, helpers.IsConfigError(err))
		})
	}
}

func TestNew_RequiresComponents(t *testing.T) {
	store, _ := newStore(t)
	defer store.Close()
	det := newDetector(t, analysis.DefaultDetectorConfig())
	disp := alerts.NewDispatcher(nil)
	ing := &sliceIngestor{}

	_, err := New(nil, store, det, disp, nil)
	assert.True(t, helpers.IsConfigError(err))
	_, err = New(ing, nil, det, disp, nil)
	assert.True(t, helpers.IsConfigError(err))
	_, err = New(ing, store, nil, disp, nil)
	assert.True(t, helpers.IsConfigError(err))
	_, err = New(ing, store, det, nil, nil)
	assert.True(t, helpers.IsConfigError(err))

	p, err := New(ing, store, det, disp, nil)
	require.NoError(t, err)
	assert.Equal(t, utils.DefaultHistoryWindow, p.HistoryWindow)
}

// -----------------------------------------------------------------------------
// Polling
// -----------------------------------------------------------------------------

func TestPipeline_PollingStopsAtIterationCap(t *testing.T) {
	src := newScriptedSource(map[string][]float64{
		"AAPL": {100, 101, 102},
		"MSFT": {200, 201, 202},
	})
	src.errs["BAD"] = helpers.NewTransportError(nil, "connection refused")

	store, path := newStore(t)
	poller := newPoller(t, src, []string{"AAPL", "BAD", "EMPTY", "MSFT"}, 3, immediateClock{})

	p, err := New(poller, store, newDetector(t, analysis.DefaultDetectorConfig()), alerts.NewDispatcher(nil), nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	waitDone(t, p)

	assert.Equal(t, int64(3), poller.Iterations())
	assert.Equal(t, 3, src.callCount("BAD"), "a failing symbol must not end the sweep")
	assert.Equal(t, 3, src.callCount("EMPTY"))
	assert.Equal(t, 3, src.callCount("MSFT"))

	processed, fired := p.Stats()
	assert.Equal(t, int64(6), processed)
	assert.Equal(t, int64(0), fired)

	// Store is closed once the pipeline is done
	_, err = store.GetSymbols()
	assert.Error(t, err)

	check := reopen(t, path)
	symbols, err := check.GetSymbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)

	aapl, err := check.GetRecent("AAPL", 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 101, 102}, prices(aapl))
}

func TestPipeline_FiresSignalsThroughDispatcher(t *testing.T) {
	src := newScriptedSource(map[string][]float64{
		"AAPL": {100, 100.5, 99.5, 100, 100.2, 99.8, 130},
	})
	store, _ := newStore(t)

	cfg := analysis.DetectorConfig{
		PriceSpikeZScore:          2.0,
		VolumeSurgeMultiplier:     1000,
		VolatilityBurstMultiplier: 1000,
		VwapDeviationPct:          1000,
		MinHistory:                5,
	}
	recorder := &recordingChannel{}
	buffer := utils.NewSignalBuffer(10)
	dispatcher := alerts.NewDispatcher(nil, recorder, alerts.NewBufferChannel(buffer))

	poller := newPoller(t, src, []string{"AAPL"}, 7, immediateClock{})
	p, err := New(poller, store, newDetector(t, cfg), dispatcher, nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	waitDone(t, p)

	got := recorder.received()
	require.Len(t, got, 1)
	assert.Equal(t, models.SignalPriceSpike, got[0].Kind)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, 130.0, got[0].Price)
	assert.Equal(t, t0.Add(6*time.Minute), got[0].Timestamp)
	assert.Equal(t, 1, buffer.Len())

	_, fired := p.Stats()
	assert.Equal(t, int64(1), fired)
}

func TestPipeline_StopBetweenSweeps(t *testing.T) {
	src := newScriptedSource(map[string][]float64{
		"AAPL": {100, 101},
		"MSFT": {200, 201},
	})
	store, path := newStore(t)
	clock := &blockingClock{called: make(chan time.Duration, 4)}
	poller := newPoller(t, src, []string{"AAPL", "MSFT"}, 0, clock)

	p, err := New(poller, store, newDetector(t, analysis.DefaultDetectorConfig()), alerts.NewDispatcher(nil), nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	select {
	case d := <-clock.called:
		assert.Equal(t, time.Minute, d)
	case <-time.After(waitTimeout):
		t.Fatal("poller never slept")
	}

	require.NoError(t, p.Stop())
	waitDone(t, p)

	assert.Equal(t, int64(1), poller.Iterations())
	check := reopen(t, path)
	for _, sym := range []string{"AAPL", "MSFT"} {
		ticks, err := check.GetRecent(sym, 10)
		require.NoError(t, err)
		assert.Len(t, ticks, 1, sym)
	}
}

func TestPipeline_StopDuringSweepFinishesSweep(t *testing.T) {
	src := newScriptedSource(map[string][]float64{
		"AAPL": {100},
		"MSFT": {200},
		"SPY":  {400},
	})
	src.gate = make(chan struct{})

	store, path := newStore(t)
	poller := newPoller(t, src, []string{"AAPL", "MSFT", "SPY"}, 0, immediateClock{})
	p, err := New(poller, store, newDetector(t, analysis.DefaultDetectorConfig()), alerts.NewDispatcher(nil), nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	select {
	case sym := <-src.entered:
		assert.Equal(t, "AAPL", sym)
	case <-time.After(waitTimeout):
		t.Fatal("sweep never started")
	}

	require.NoError(t, p.Stop())
	close(src.gate)
	waitDone(t, p)

	assert.Equal(t, int64(1), poller.Iterations())
	for _, err := range src.ctxErrs {
		assert.NoError(t, err, "in-flight fetches must not see the stop")
	}

	check := reopen(t, path)
	symbols, err := check.GetSymbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "SPY"}, symbols)
}

func TestPipeline_ContextCancelStops(t *testing.T) {
	src := newScriptedSource(map[string][]float64{"AAPL": {100}})
	store, _ := newStore(t)
	clock := &blockingClock{called: make(chan time.Duration, 4)}
	poller := newPoller(t, src, []string{"AAPL"}, 0, clock)

	p, err := New(poller, store, newDetector(t, analysis.DefaultDetectorConfig()), alerts.NewDispatcher(nil), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	<-clock.called
	cancel()
	waitDone(t, p)
}

// -----------------------------------------------------------------------------
// Failure handling
// -----------------------------------------------------------------------------

func TestPipeline_StoreFailureSkipsTick(t *testing.T) {
	src := newScriptedSource(map[string][]float64{
		"FAIL": {1, 2},
		"AAPL": {100, 101},
	})
	inner, path := newStore(t)
	store := &failingStore{SQLiteTickStore: inner, failSymbol: "FAIL"}

	poller := newPoller(t, src, []string{"FAIL", "AAPL"}, 2, immediateClock{})
	p, err := New(poller, store, newDetector(t, analysis.DefaultDetectorConfig()), alerts.NewDispatcher(nil), nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	waitDone(t, p)

	processed, _ := p.Stats()
	assert.Equal(t, int64(2), processed)
	assert.Equal(t, 2, p.Errors.Count("storage"))

	check := reopen(t, path)
	symbols, err := check.GetSymbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, symbols)
}

func TestPipeline_StartTwice(t *testing.T) {
	store, _ := newStore(t)
	p, err := New(&sliceIngestor{}, store, newDetector(t, analysis.DefaultDetectorConfig()), alerts.NewDispatcher(nil), nil)
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()))
	waitDone(t, p)
}

// -----------------------------------------------------------------------------
// Push-mode ingestors share the same processing path
// -----------------------------------------------------------------------------

func TestPipeline_PushIngestorConverges(t *testing.T) {
	ticks := []models.MTick{
		{Symbol: "TSLA", Timestamp: t0, Price: 250, Volume: 10},
		{Symbol: "TSLA", Timestamp: t0.Add(time.Second), Price: 251, Volume: 5},
		{Symbol: "NVDA", Timestamp: t0.Add(2 * time.Second), Price: 900, Volume: 1},
	}
	store, path := newStore(t)
	exchanger := &recordingExchanger{}

	p, err := New(&sliceIngestor{ticks: ticks}, store, newDetector(t, analysis.DefaultDetectorConfig()), alerts.NewDispatcher(nil), nil)
	require.NoError(t, err)
	p.Exchanger = exchanger
	require.NoError(t, p.Start(context.Background()))
	waitDone(t, p)

	exchanger.mu.Lock()
	require.Len(t, exchanger.updates, 3)
	for i, u := range exchanger.updates {
		assert.Equal(t, models.UpdateTypeTick, u.Type)
		require.NotNil(t, u.Tick)
		assert.Equal(t, ticks[i].Price, u.Tick.Price)
	}
	exchanger.mu.Unlock()

	check := reopen(t, path)
	tsla, err := check.GetRecent("TSLA", 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{250, 251}, prices(tsla))
}
