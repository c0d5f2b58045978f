package analysis

import (
	"fmt"
	"math"

	"market-sentinel/src/analysis/core"
	"market-sentinel/src/helpers"
	"market-sentinel/src/logger"
	"market-sentinel/src/models"

	"github.com/dustin/go-humanize"
)

// -----------------------------------------------------------------------------

// DetectorConfig holds the thresholds. It is copied into the detector at
// construction and never changes afterwards.
type DetectorConfig struct {
	PriceSpikeZScore          float64
	VolumeSurgeMultiplier     float64
	VolatilityBurstMultiplier float64
	VwapDeviationPct          float64
	MinHistory                int
}

// DefaultDetectorConfig returns the stock thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		PriceSpikeZScore:          2.5,
		VolumeSurgeMultiplier:     3.0,
		VolatilityBurstMultiplier: 2.5,
		VwapDeviationPct:          0.5,
		MinHistory:                10,
	}
}

// FromModel converts the YAML detector section.
func FromModel(m models.MDetectorConfig) DetectorConfig {
	return DetectorConfig{
		PriceSpikeZScore:          m.PriceSpikeZScore,
		VolumeSurgeMultiplier:     m.VolumeSurgeMultiplier,
		VolatilityBurstMultiplier: m.VolatilityBurstMultiplier,
		VwapDeviationPct:          m.VwapDeviationPct,
		MinHistory:                m.MinHistory,
	}
}

// Validate rejects negative thresholds and a MinHistory below 1.
func (c DetectorConfig) Validate() error {
	for name, v := range map[string]float64{
		"price_spike_zscore":          c.PriceSpikeZScore,
		"volume_surge_multiplier":     c.VolumeSurgeMultiplier,
		"volatility_burst_multiplier": c.VolatilityBurstMultiplier,
		"vwap_deviation_pct":          c.VwapDeviationPct,
	} {
		if v < 0 || math.IsNaN(v) {
			return helpers.NewConfigError("detector threshold %s must be non-negative, got %v", name, v)
		}
	}
	if c.MinHistory < 1 {
		return helpers.NewConfigError("detector min_history must be at least 1, got %d", c.MinHistory)
	}
	return nil
}

// -----------------------------------------------------------------------------

// SignalDetector evaluates a tick against its recent history. It holds no
// mutable state, so one instance may be shared across goroutines.
type SignalDetector struct {
	config DetectorConfig
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSignalDetector(config DetectorConfig, log *logger.Logger) (*SignalDetector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewLogger("SignalDetector")
	}
	return &SignalDetector{config: config, Logger: log}, nil
}

// -----------------------------------------------------------------------------

// Config returns a copy of the thresholds.
func (d *SignalDetector) Config() DetectorConfig {
	return d.config
}

// -----------------------------------------------------------------------------

// Detect runs every check for tick. history is oldest first and includes tick
// as its last element. The result is never nil.
func (d *SignalDetector) Detect(tick models.MTick, history []models.MTick) []models.MSignal {
	signals := []models.MSignal{}

	if len(history) < d.config.MinHistory {
		d.Logger.Debug("%s: insufficient history (%d < %d), skipping signals",
			tick.Symbol, len(history), d.config.MinHistory)
		return signals
	}

	past := history
	if len(history) > 1 {
		past = history[:len(history)-1]
	}

	if s, ok := d.checkPriceSpike(tick, past); ok {
		signals = append(signals, s)
	}
	if s, ok := d.checkVolumeSurge(tick, past); ok {
		signals = append(signals, s)
	}
	if s, ok := d.checkVolatilityBurst(tick, past); ok {
		signals = append(signals, s)
	}
	if s, ok := d.checkVwapDeviation(tick); ok {
		signals = append(signals, s)
	}

	return signals
}

// -----------------------------------------------------------------------------
// Checks
// -----------------------------------------------------------------------------

func (d *SignalDetector) checkPriceSpike(tick models.MTick, past []models.MTick) (models.MSignal, bool) {
	if len(past) < 2 {
		return models.MSignal{}, false
	}

	prices := make([]float64, len(past))
	for i, t := range past {
		prices[i] = t.Price
	}

	mean, stdev := core.SampleMeanStd(prices)
	if stdev == 0 {
		return models.MSignal{}, false
	}

	z := core.ZScore(tick.Price, mean, stdev)
	if math.Abs(z) < d.config.PriceSpikeZScore {
		return models.MSignal{}, false
	}

	return newSignal(models.SignalPriceSpike, tick,
		fmt.Sprintf("Price %.2f is %.2fσ %s rolling mean %.2f", tick.Price, math.Abs(z), core.Direction(z), mean),
		map[string]float64{
			"zscore": core.Round(z, 3),
			"mean":   core.Round(mean, 4),
			"stdev":  core.Round(stdev, 4),
		}), true
}

// -----------------------------------------------------------------------------

func (d *SignalDetector) checkVolumeSurge(tick models.MTick, past []models.MTick) (models.MSignal, bool) {
	volumes := make([]float64, 0, len(past))
	for _, t := range past {
		if t.Volume > 0 {
			volumes = append(volumes, float64(t.Volume))
		}
	}
	if len(volumes) == 0 {
		return models.MSignal{}, false
	}

	avg := core.Mean(volumes)
	if avg == 0 {
		return models.MSignal{}, false
	}

	ratio := float64(tick.Volume) / avg
	if ratio < d.config.VolumeSurgeMultiplier {
		return models.MSignal{}, false
	}

	return newSignal(models.SignalVolumeSurge, tick,
		fmt.Sprintf("Volume %s is %.1f× average (%s)",
			humanize.Comma(tick.Volume), ratio, humanize.Comma(int64(math.Round(avg)))),
		map[string]float64{
			"ratio":      core.RoundAtLeast(ratio, 2, d.config.VolumeSurgeMultiplier),
			"avg_volume": core.Round(avg, 0),
		}), true
}

// -----------------------------------------------------------------------------

func (d *SignalDetector) checkVolatilityBurst(tick models.MTick, past []models.MTick) (models.MSignal, bool) {
	if !tick.HasRange() {
		return models.MSignal{}, false
	}

	ranges := make([]float64, 0, len(past))
	for _, t := range past {
		if t.HasRange() {
			ranges = append(ranges, t.Range())
		}
	}
	if len(ranges) == 0 {
		return models.MSignal{}, false
	}

	avgRange := core.Mean(ranges)
	if avgRange == 0 {
		return models.MSignal{}, false
	}

	current := tick.Range()
	ratio := current / avgRange
	if ratio < d.config.VolatilityBurstMultiplier {
		return models.MSignal{}, false
	}

	return newSignal(models.SignalVolatilityBurst, tick,
		fmt.Sprintf("H-L range $%.2f is %.1f× average ($%.2f)", current, ratio, avgRange),
		map[string]float64{
			"range":     core.Round(current, 4),
			"avg_range": core.Round(avgRange, 4),
			"ratio":     core.RoundAtLeast(ratio, 2, d.config.VolatilityBurstMultiplier),
		}), true
}

// -----------------------------------------------------------------------------

func (d *SignalDetector) checkVwapDeviation(tick models.MTick) (models.MSignal, bool) {
	if tick.VWAP == nil || *tick.VWAP == 0 {
		return models.MSignal{}, false
	}

	vwap := *tick.VWAP
	dev := core.DeviationPct(tick.Price, vwap)
	if dev < d.config.VwapDeviationPct {
		return models.MSignal{}, false
	}

	return newSignal(models.SignalVwapDeviation, tick,
		fmt.Sprintf("Price %.2f is %.2f%% %s VWAP %.2f", tick.Price, dev, core.Direction(tick.Price-vwap), vwap),
		map[string]float64{
			"deviation_pct": core.RoundAtLeast(dev, 3, d.config.VwapDeviationPct),
			"vwap":          vwap,
		}), true
}

// -----------------------------------------------------------------------------

func newSignal(kind models.SignalKind, tick models.MTick, message string, metadata map[string]float64) models.MSignal {
	return models.MSignal{
		Kind:      kind,
		Symbol:    tick.Symbol,
		Timestamp: tick.Timestamp,
		Price:     tick.Price,
		Message:   message,
		Metadata:  metadata,
	}
}
