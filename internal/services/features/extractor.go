package features

import (
	"math"

	"StockIt/internal/domain/models"
)

// SimpleReturns computes r_i = (p_i - p_{i-1}) / p_{i-1}. A step whose
// previous price is zero or non-finite contributes 0 so the output keeps
// length len(prices)-1. Returns nil for fewer than two prices.
func SimpleReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev == 0 || !finite(prev) || !finite(cur) {
			out = append(out, 0)
			continue
		}
		out = append(out, (cur-prev)/prev)
	}
	return out
}

func Closes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func Volumes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// BuildSeries turns a symbol's bars and the benchmark's bars into scan input.
// When the benchmark is present only timestamps common to both are kept, so
// Prices and MarketPrices line up index for index.
func BuildSeries(bars, market []models.Bar) models.HistoricalSeries {
	if len(market) == 0 {
		return models.HistoricalSeries{Prices: Closes(bars), Volume: Volumes(bars)}
	}

	benchmark := make(map[int64]float64, len(market))
	for _, b := range market {
		benchmark[b.Timestamp.UnixMilli()] = b.Close
	}

	s := models.HistoricalSeries{
		Prices:       make([]float64, 0, len(bars)),
		Volume:       make([]float64, 0, len(bars)),
		MarketPrices: make([]float64, 0, len(bars)),
	}
	for _, b := range bars {
		m, ok := benchmark[b.Timestamp.UnixMilli()]
		if !ok {
			continue
		}
		s.Prices = append(s.Prices, b.Close)
		s.Volume = append(s.Volume, b.Volume)
		s.MarketPrices = append(s.MarketPrices, m)
	}
	return s
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
