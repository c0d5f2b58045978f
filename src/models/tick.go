package models

import (
	"fmt"
	"time"
)

// MTick is one price/volume observation for a symbol.
// Open, High, Low and VWAP are optional: trade-only feeds carry no OHLC and
// VWAP is nil when it was not computed for this tick.
type MTick struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    int64     `json:"volume"`
	Open      *float64  `json:"open,omitempty"`
	High      *float64  `json:"high,omitempty"`
	Low       *float64  `json:"low,omitempty"`
	VWAP      *float64  `json:"vwap,omitempty"`
}

// -----------------------------------------------------------------------------

// Float returns a pointer to v, for populating optional tick fields.
func Float(v float64) *float64 {
	return &v
}

// -----------------------------------------------------------------------------

// HasRange reports whether both high and low are present and non-zero.
func (t MTick) HasRange() bool {
	return t.High != nil && t.Low != nil && *t.High != 0 && *t.Low != 0
}

// -----------------------------------------------------------------------------

// Range returns high - low. Callers check HasRange first.
func (t MTick) Range() float64 {
	return *t.High - *t.Low
}

// -----------------------------------------------------------------------------

func (t MTick) String() string {
	return fmt.Sprintf("%s @ %.2f vol=%d [%s]", t.Symbol, t.Price, t.Volume, t.Timestamp.UTC().Format(time.RFC3339))
}
