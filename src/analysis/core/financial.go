package core

import (
	"math"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

// Round rounds half away from zero to the given number of decimal places.
// Used for readable signal metadata, never for threshold comparisons.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// -----------------------------------------------------------------------------

// RoundAtLeast rounds v but never returns a value below floor when v itself
// is at or above it.
func RoundAtLeast(v float64, places int32, floor float64) float64 {
	r := Round(v, places)
	if v >= floor && r < floor {
		return v
	}
	return r
}

// -----------------------------------------------------------------------------

// VWAP computes Σ(price·volume)/Σvolume over paired slices. Pairs with a
// non-positive price or volume are ignored. ok is false when nothing remains.
func VWAP(prices []float64, volumes []float64) (float64, bool) {
	n := len(prices)
	if len(volumes) < n {
		n = len(volumes)
	}

	pv := decimal.Zero
	vol := decimal.Zero
	for i := 0; i < n; i++ {
		if prices[i] <= 0 || volumes[i] <= 0 {
			continue
		}
		p := decimal.NewFromFloat(prices[i])
		v := decimal.NewFromFloat(volumes[i])
		pv = pv.Add(p.Mul(v))
		vol = vol.Add(v)
	}
	if vol.IsZero() {
		return 0, false
	}
	f, _ := pv.Div(vol).Float64()
	return f, true
}

// -----------------------------------------------------------------------------

// DeviationPct returns |price - ref| / ref * 100, 0 when ref is 0.
func DeviationPct(price, ref float64) float64 {
	if ref == 0 {
		return 0
	}
	return math.Abs(price-ref) / ref * 100
}

// -----------------------------------------------------------------------------

// Direction names the side of value relative to zero.
func Direction(delta float64) string {
	if delta > 0 {
		return "above"
	}
	return "below"
}
