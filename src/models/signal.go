package models

import (
	"fmt"
	"time"
)

// SignalKind identifies which anomaly check fired.
type SignalKind string

const (
	SignalPriceSpike      SignalKind = "PRICE_SPIKE"
	SignalVolumeSurge     SignalKind = "VOLUME_SURGE"
	SignalVolatilityBurst SignalKind = "VOLATILITY_BURST"
	SignalVwapDeviation   SignalKind = "VWAP_DEVIATION"
)

// MSignal is a fired anomaly. It is never modified after the detector builds it.
type MSignal struct {
	Kind      SignalKind         `json:"type"`
	Symbol    string             `json:"symbol"`
	Timestamp time.Time          `json:"timestamp"`
	Price     float64            `json:"price"`
	Message   string             `json:"message"`
	Metadata  map[string]float64 `json:"metadata"`
}

// -----------------------------------------------------------------------------

func (s MSignal) String() string {
	return fmt.Sprintf("[%s] %s @ %.2f - %s", s.Kind, s.Symbol, s.Price, s.Message)
}
