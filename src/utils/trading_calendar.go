package utils

import (
	"market-sentinel/src/logger"
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar calculates trading days using scmhub/calendar.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

// micSuffixes maps a ticker suffix to its exchange MIC (ISO 10383).
var micSuffixes = []struct {
	suffix string
	mic    string
}{
	{".L", "xlon"}, {".PA", "xpar"}, {".DE", "xfra"}, {".AS", "xams"},
	{".BR", "xbru"}, {".MI", "xmil"}, {".MC", "xmad"}, {".ST", "xsto"},
	{".CO", "xcse"}, {".HE", "xhel"}, {".VI", "xwbo"}, {".SW", "xswx"},
	{".TO", "xtse"}, {".V", "xtsx"}, {".T", "xtks"}, {".HK", "xhkg"},
	{".AX", "xasx"}, {".KS", "xkrx"}, {".TW", "xtai"}, {".SS", "xshg"},
	{".SZ", "xshe"},
}

// MICForSymbol returns the exchange MIC for a symbol, NYSE when unsuffixed.
func MICForSymbol(symbol string) string {
	for _, m := range micSuffixes {
		if strings.HasSuffix(symbol, m.suffix) {
			return m.mic
		}
	}
	return "xnys"
}

// -----------------------------------------------------------------------------

func GetCalendar(symbol string, l *logger.Logger) *TradingCalendar {
	mic := MICForSymbol(symbol)
	// scmhub/calendar.GetCalendar returns a calendar by MIC
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		// Fallback to xnys if not found
		cal = calendar.GetCalendar("xnys")
	}

	if cal == nil {
		if l != nil {
			l.Warning("No calendar for MIC %s or xnys, using Mon-Fri 09:30-16:00 New York", mic)
		}
		// Try load NY location for fallback
		nyLoc, _ := time.LoadLocation("America/New_York")
		if nyLoc == nil {
			nyLoc = time.UTC // Worst case
		}
		return &TradingCalendar{Fallback: true, Timezone: nyLoc}
	}

	return &TradingCalendar{Calendar: cal, Fallback: false, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	// Normalize to timezone if available
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		// Simple fallback: Mon-Fri
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	// Library handles IsHoliday / IsBusinessDay
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at a specific minute.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	// Normalize to timezone if available
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}

		hour := t.Hour()
		minute := t.Minute()

		// 9:30 - 16:00 NY Time
		if (hour > 9 || (hour == 9 && minute >= 30)) && hour < 16 {
			return true
		}
		return false
	}

	return tc.Calendar.IsOpen(t)
}
