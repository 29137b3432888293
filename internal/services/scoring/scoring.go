// Package scoring holds the pure numeric functions behind opportunity
// scoring. None of them panic; short or degenerate input yields the
// documented neutral value.
package scoring

import (
	"math"

	"StockIt/internal/services/features"
)

const (
	momentumBonus      = 0.02
	targetTrendFactor  = 0.15
	singlePointUplift  = 1.05
	volatilityPenalty  = 8.0
	confidenceVolW     = 0.2
	confidenceCorrW    = 0.2
	confidenceTrendW   = 0.4
	confidenceConsistW = 0.2
)

// trendWeights apply oldest to newest over at most the last five returns.
var trendWeights = [...]float64{0.15, 0.2, 0.25, 0.35, 0.45}

// Volatility is the population standard deviation of simple returns; 0 if len(p) < 2.
func Volatility(p []float64) float64 {
	r := features.SimpleReturns(p)
	if len(r) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range r {
		mean += x
	}
	mean /= float64(len(r))

	variance := 0.0
	for _, x := range r {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(r))
	return math.Sqrt(variance)
}

// Consistency is the fraction of consecutive return pairs whose signs match
// (flat counts as its own sign); 0 if len(p) < 3.
func Consistency(p []float64) float64 {
	r := features.SimpleReturns(p)
	if len(r) < 2 {
		return 0
	}
	matches := 0
	for i := 1; i < len(r); i++ {
		if sign(r[i]) == sign(r[i-1]) {
			matches++
		}
	}
	return float64(matches) / float64(len(r)-1)
}

// TrendStrength weights the most recent returns, newest weighted 0.45, adds a
// momentum bonus when the last return beats the one before, and floors at 0.
func TrendStrength(p []float64) float64 {
	r := features.SimpleReturns(p)
	if len(r) == 0 {
		return 0
	}
	window := r
	if len(window) > len(trendWeights) {
		window = window[len(window)-len(trendWeights):]
	}
	weights := trendWeights[len(trendWeights)-len(window):]

	trend := 0.0
	for i, x := range window {
		trend += x * weights[i]
	}
	if n := len(r); n >= 2 && r[n-1] > r[n-2] {
		trend += momentumBonus
	}
	return math.Max(0, trend)
}

// Correlation is the Pearson correlation of the two return series. It is 0
// when lengths differ, input is too short, or either series is flat.
func Correlation(p, market []float64) float64 {
	if len(p) != len(market) || len(p) < 3 {
		return 0
	}
	a := features.SimpleReturns(p)
	b := features.SimpleReturns(market)

	meanA, meanB := 0.0, 0.0
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(len(a))
	meanB /= float64(len(b))

	cov, varA, varB := 0.0, 0.0, 0.0
	for i := range a {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	c := cov / math.Sqrt(varA*varB)
	if math.IsNaN(c) {
		return 0
	}
	return clamp(c, -1, 1)
}

// Confidence blends the components into [0, 1].
func Confidence(volatility, correlation float64, p []float64) float64 {
	c := confidenceVolW*math.Max(0, 1-volatilityPenalty*volatility) +
		confidenceCorrW*math.Abs(correlation) +
		confidenceTrendW*TrendStrength(p) +
		confidenceConsistW*Consistency(p)
	if math.IsNaN(c) {
		return 0
	}
	return clamp(c, 0, 1)
}

// PredictedPrice projects the last price by the trend; a single point gets a
// flat 5% uplift and empty input yields 0.
func PredictedPrice(p []float64) float64 {
	switch len(p) {
	case 0:
		return 0
	case 1:
		return p[0] * singlePointUplift
	}
	return p[len(p)-1] * (1 + TrendStrength(p)*targetTrendFactor)
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, x))
}
