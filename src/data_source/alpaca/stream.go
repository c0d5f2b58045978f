package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"market-sentinel/src/helpers"
	"market-sentinel/src/logger"
	"market-sentinel/src/metrics"
	"market-sentinel/src/models"
	"market-sentinel/src/utils"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

const DefaultURL = "wss://stream.data.alpaca.markets/v2/iex"

// State is the connection phase of a Stream.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateStreaming:
		return "streaming"
	default:
		return "disconnected"
	}
}

// -----------------------------------------------------------------------------

// StreamConfig configures a Stream.
type StreamConfig struct {
	URL            string
	APIKey         string
	APISecret      string
	Symbols        []string
	ReconnectDelay time.Duration
}

// -----------------------------------------------------------------------------

// Stream is the push-mode ingestor: one websocket to the trade feed, with a
// flat-delay reconnect whenever the connection drops while it should run.
type Stream struct {
	URL     string
	Symbols []string
	Logger  *logger.Logger
	Dialer  *websocket.Dialer
	Clock   utils.Clock
	// Reconnect yields the wait before each reconnect attempt.
	Reconnect backoff.BackOff

	apiKey    string
	apiSecret string

	state     atomic.Int32
	shouldRun atomic.Bool
	started   atomic.Bool

	conn   *websocket.Conn
	connMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once

	connects atomic.Int64
}

// -----------------------------------------------------------------------------

// NewStream validates credentials and symbols up front; a stream that cannot
// authenticate is never built.
func NewStream(cfg StreamConfig, log *logger.Logger) (*Stream, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, helpers.NewConfigError("alpaca stream requires an API key and secret")
	}

	symbols := make([]string, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		return nil, helpers.NewConfigError("alpaca stream requires at least one symbol")
	}

	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = utils.DefaultReconnectDelay
	}
	if log == nil {
		log = logger.NewLogger("AlpacaStream")
	}

	return &Stream{
		URL:       cfg.URL,
		Symbols:   symbols,
		Logger:    log,
		Dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		Clock:     utils.RealClock{},
		Reconnect: backoff.NewConstantBackOff(cfg.ReconnectDelay),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		stopCh:    make(chan struct{}),
	}, nil
}

// -----------------------------------------------------------------------------

func (s *Stream) Name() string {
	return "alpaca"
}

// State returns the current connection phase.
func (s *Stream) State() State {
	return State(s.state.Load())
}

// Connects returns how many connection attempts have been made.
func (s *Stream) Connects() int64 {
	return s.connects.Load()
}

func (s *Stream) setState(st State) {
	s.state.Store(int32(st))
}

// -----------------------------------------------------------------------------

// Start runs the receive loop on its own goroutine. Cancelling ctx is the
// same as calling Stop.
func (s *Stream) Start(ctx context.Context, outputChan chan<- models.MTick, wg *sync.WaitGroup) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("stream %s already started", s.Name())
	}
	select {
	case <-s.stopCh:
		return fmt.Errorf("stream %s already stopped", s.Name())
	default:
	}

	s.shouldRun.Store(true)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopCh:
		}
	}()

	wg.Add(1)
	go s.run(outputChan, wg)
	s.Logger.Info("Connecting to %s | symbols=%v", s.URL, s.Symbols)
	return nil
}

// -----------------------------------------------------------------------------

// Stop clears the run flag, closes the connection and cancels any pending
// reconnect wait. It does not wait for the receive loop to exit.
func (s *Stream) Stop() error {
	s.shouldRun.Store(false)
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.Logger.Info("Alpaca stream stopped")
	return nil
}

// -----------------------------------------------------------------------------

func (s *Stream) run(out chan<- models.MTick, wg *sync.WaitGroup) {
	defer wg.Done()
	defer s.setState(StateDisconnected)

	for s.shouldRun.Load() {
		if err := s.session(out); err != nil {
			s.Logger.Error("%v", err)
		}
		s.setState(StateDisconnected)

		if !s.shouldRun.Load() {
			return
		}

		delay := s.Reconnect.NextBackOff()
		s.Logger.Info("Connection closed, reconnecting in %s", delay)

		select {
		case <-s.stopCh:
			return
		case <-s.Clock.After(delay):
		}
		if !s.shouldRun.Load() {
			return
		}
		metrics.StreamReconnects.Inc()
	}
}

// -----------------------------------------------------------------------------

// session dials, authenticates and reads until the connection closes.
func (s *Stream) session(out chan<- models.MTick) error {
	s.setState(StateConnecting)
	s.connects.Add(1)

	conn, _, err := s.Dialer.Dial(s.URL, nil)
	if err != nil {
		return helpers.NewTransportError(err, "dial %s", s.URL)
	}

	s.connMu.Lock()
	if !s.shouldRun.Load() {
		s.connMu.Unlock()
		conn.Close()
		return nil
	}
	s.conn = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
		conn.Close()
	}()

	s.setState(StateAuthenticating)
	s.Logger.Info("Alpaca WS connected, authenticating...")
	if err := conn.WriteJSON(authRequest{Action: "auth", Key: s.apiKey, Secret: s.apiSecret}); err != nil {
		return helpers.NewTransportError(err, "send auth")
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !s.shouldRun.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.Logger.Info("Alpaca WS closed: %v", err)
				return nil
			}
			return helpers.NewTransportError(err, "read")
		}
		if err := s.handleMessage(conn, message, out); err != nil {
			return err
		}
	}
}

// -----------------------------------------------------------------------------
// Wire format
// -----------------------------------------------------------------------------

type authRequest struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type subscribeRequest struct {
	Action string   `json:"action"`
	Trades []string `json:"trades"`
}

// event covers every inbound message type. Field names differ only by case,
// which encoding/json resolves by exact match first.
type event struct {
	Type      string   `json:"T"`
	Msg       string   `json:"msg"`
	Code      int      `json:"code"`
	Symbol    string   `json:"S"`
	Price     *float64 `json:"p"`
	Size      *int64   `json:"s"`
	Timestamp string   `json:"t"`
}

// -----------------------------------------------------------------------------

// handleMessage processes one frame, a JSON array of events. Only a failed
// subscribe write is returned; everything else is logged.
func (s *Stream) handleMessage(conn *websocket.Conn, message []byte, out chan<- models.MTick) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(message, &raw); err != nil {
		s.logParseError(helpers.NewParseError(err, "frame is not an event array: %.200s", message))
		return nil
	}

	for _, r := range raw {
		var ev event
		if err := json.Unmarshal(r, &ev); err != nil {
			s.logParseError(helpers.NewParseError(err, "bad event: %.200s", r))
			continue
		}

		switch ev.Type {
		case "success":
			if ev.Msg == "authenticated" {
				s.Logger.Info("Alpaca authenticated, subscribing to trades...")
				if err := conn.WriteJSON(subscribeRequest{Action: "subscribe", Trades: s.Symbols}); err != nil {
					return helpers.NewTransportError(err, "send subscribe")
				}
				s.setState(StateStreaming)
			} else {
				s.Logger.Debug("Alpaca: %s", ev.Msg)
			}

		case "subscription":
			s.Logger.Info("Alpaca subscription confirmed")

		case "t":
			if s.State() != StateStreaming {
				s.Logger.Debug("Ignoring trade before subscription")
				continue
			}
			tick, err := parseTrade(ev)
			if err != nil {
				s.logParseError(helpers.NewParseError(err, "trade: %.200s", r))
				continue
			}
			out <- tick

		case "error":
			s.Logger.Error("Alpaca error %d: %s", ev.Code, ev.Msg)

		default:
			s.Logger.Debug("Ignoring event type %q", ev.Type)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *Stream) logParseError(err error) {
	metrics.ParseErrors.WithLabelValues(s.Name()).Inc()
	s.Logger.Warning("%v", err)
}

// -----------------------------------------------------------------------------

// parseTrade converts a trade event. Trades carry no OHLC, so the trade price
// fills open, high and low; VWAP is left unset.
func parseTrade(ev event) (models.MTick, error) {
	if ev.Symbol == "" {
		return models.MTick{}, fmt.Errorf("missing symbol")
	}
	if ev.Price == nil || *ev.Price <= 0 {
		return models.MTick{}, fmt.Errorf("missing or non-positive price")
	}
	var size int64
	if ev.Size != nil {
		size = *ev.Size
	}
	if size < 0 {
		return models.MTick{}, fmt.Errorf("negative size %d", size)
	}
	ts, err := time.Parse(time.RFC3339Nano, ev.Timestamp)
	if err != nil {
		return models.MTick{}, fmt.Errorf("bad timestamp %q: %w", ev.Timestamp, err)
	}

	price := *ev.Price
	return models.MTick{
		Symbol:    ev.Symbol,
		Timestamp: ts.UTC(),
		Price:     price,
		Volume:    size,
		Open:      models.Float(price),
		High:      models.Float(price),
		Low:       models.Float(price),
	}, nil
}
