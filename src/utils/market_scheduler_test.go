package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time                       { return c.now }
func (c fixedClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

func TestMICForSymbol(t *testing.T) {
	tests := map[string]string{
		"AAPL":    "xnys",
		"VOD.L":   "xlon",
		"AIR.PA":  "xpar",
		"7203.T":  "xtks",
		"0700.HK": "xhkg",
		"SHOP.TO": "xtse",
		"ERIC.ST": "xsto",
	}
	for symbol, want := range tests {
		assert.Equal(t, want, MICForSymbol(symbol), symbol)
	}
}

func TestFallbackCalendar(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	cal := &TradingCalendar{Fallback: true, Timezone: ny}

	tuesday := time.Date(2024, 3, 5, 0, 0, 0, 0, ny)
	assert.True(t, cal.IsOpenOnMinute(tuesday.Add(9*time.Hour+30*time.Minute)))
	assert.True(t, cal.IsOpenOnMinute(tuesday.Add(15*time.Hour+59*time.Minute)))
	assert.False(t, cal.IsOpenOnMinute(tuesday.Add(9*time.Hour+29*time.Minute)))
	assert.False(t, cal.IsOpenOnMinute(tuesday.Add(16*time.Hour)))

	sunday := time.Date(2024, 3, 3, 12, 0, 0, 0, ny)
	assert.False(t, cal.IsTradingDay(sunday))
	assert.False(t, cal.IsOpenOnMinute(sunday))
}

func TestMarketScheduler_NYSE(t *testing.T) {
	ms := NewMarketScheduler([]string{"AAPL"}, nil)

	// Tuesday 10:00 New York
	open := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	// Sunday noon New York
	closed := time.Date(2024, 3, 3, 17, 0, 0, 0, time.UTC)

	assert.True(t, ms.IsOpenAt("AAPL", open))
	assert.False(t, ms.IsOpenAt("AAPL", closed))

	ms.Clock = fixedClock{now: closed}
	assert.False(t, ms.IsOpen("AAPL"))
	assert.False(t, ms.AnyMarketOpen())

	ms.Clock = fixedClock{now: open}
	assert.True(t, ms.AnyMarketOpen())
}

func TestMarketScheduler_MapsUnknownSymbolsLazily(t *testing.T) {
	ms := NewMarketScheduler(nil, nil)
	assert.Empty(t, ms.Calendars)

	ms.IsOpenAt("MSFT", time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC))
	assert.Contains(t, ms.Calendars, "MSFT")
}
