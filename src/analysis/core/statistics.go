package core

import "math"

// -----------------------------------------------------------------------------

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// -----------------------------------------------------------------------------

// SampleMeanStd computes mean and sample standard deviation (n-1 denominator).
// Fewer than two points give std = 0.
func SampleMeanStd(data []float64) (float64, float64) {
	mean := Mean(data)
	if len(data) < 2 {
		return mean, 0
	}

	varianceSum := 0.0
	for _, v := range data {
		varianceSum += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(varianceSum / float64(len(data)-1))
}

// -----------------------------------------------------------------------------

// ZScore returns (value - mean) / std, 0 when std is 0.
func ZScore(value, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (value - mean) / std
}
