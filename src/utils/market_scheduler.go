package utils

import (
	"market-sentinel/src/logger"
	"sync"
	"time"
)

// MarketScheduler answers "is the market open" for a set of symbols. The
// polling source consults it when market-hours gating is enabled.
type MarketScheduler struct {
	Calendars map[string]*TradingCalendar
	Logger    *logger.Logger
	Clock     Clock
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(symbols []string, l *logger.Logger) *MarketScheduler {
	if l == nil {
		l = logger.NewLogger("MarketScheduler")
	}
	ms := &MarketScheduler{
		Calendars: make(map[string]*TradingCalendar),
		Logger:    l,
		Clock:     RealClock{},
	}
	ms.MapSymbolsToCalendars(symbols)
	return ms
}

// -----------------------------------------------------------------------------

// MapSymbolsToCalendars replaces the symbol -> calendar mapping
func (ms *MarketScheduler) MapSymbolsToCalendars(symbols []string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.Calendars = make(map[string]*TradingCalendar)
	for _, symbol := range symbols {
		if cal := GetCalendar(symbol, ms.Logger); cal != nil {
			ms.Calendars[symbol] = cal
		}
	}

	ms.Logger.Info("Mapped %d symbols to %d unique calendars", len(symbols), len(ms.uniqueLocked()))
}

// -----------------------------------------------------------------------------

func (ms *MarketScheduler) uniqueLocked() map[*TradingCalendar]bool {
	unique := make(map[*TradingCalendar]bool)
	for _, cal := range ms.Calendars {
		unique[cal] = true
	}
	return unique
}

// -----------------------------------------------------------------------------

// IsOpen reports whether the calendar of symbol is open now. Unknown symbols
// are mapped on first use.
func (ms *MarketScheduler) IsOpen(symbol string) bool {
	return ms.IsOpenAt(symbol, ms.Clock.Now())
}

// IsOpenAt is IsOpen at an explicit instant.
func (ms *MarketScheduler) IsOpenAt(symbol string, t time.Time) bool {
	ms.mu.RLock()
	cal, ok := ms.Calendars[symbol]
	ms.mu.RUnlock()

	if !ok {
		cal = GetCalendar(symbol, ms.Logger)
		ms.mu.Lock()
		ms.Calendars[symbol] = cal
		ms.mu.Unlock()
	}
	return cal.IsOpenOnMinute(t)
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if ANY tracked markets are currently open
func (ms *MarketScheduler) AnyMarketOpen() bool {
	now := ms.Clock.Now()

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for cal := range ms.uniqueLocked() {
		if cal.IsOpenOnMinute(now) {
			return true
		}
	}
	return false
}
