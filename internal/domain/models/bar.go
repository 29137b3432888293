package models

import "time"

// Bar is one OHLCV sample for a symbol.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// HistoricalSeries is the per-symbol input of a scan. MarketPrices is the
// benchmark series aligned to Prices.
type HistoricalSeries struct {
	Prices       []float64 `json:"prices"`
	Volume       []float64 `json:"volume,omitempty"`
	MarketPrices []float64 `json:"market_prices,omitempty"`
}

// BlueChip is a large-cap listing returned by the ticker reference API or the static fallback.
type BlueChip struct {
	Symbol          string  `json:"symbol"`
	Name            string  `json:"name"`
	MarketCap       float64 `json:"market_cap"`
	PrimaryExchange string  `json:"primary_exchange"`
}
