package models

import (
	"time"

	"StockIt/pkg/util"
)

type Opportunity struct {
	Symbol            string    `json:"symbol"`
	CurrentPrice      float64   `json:"current_price"`
	TargetPrice       float64   `json:"target_price"`
	PotentialGain     float64   `json:"potential_gain"`
	Confidence        float64   `json:"confidence"`
	Volatility        float64   `json:"volatility"`
	MarketCorrelation float64   `json:"market_correlation"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// GainPercent returns the rounded percentage move from current to target.
// A non-positive current price yields 0.
func GainPercent(current, target float64) float64 {
	if current <= 0 {
		return 0
	}
	return util.Round((target-current)/current*100, 2)
}

// ApplyPrice moves the opportunity to a new market price and recomputes the gain.
func (o *Opportunity) ApplyPrice(price float64, at time.Time) {
	o.CurrentPrice = price
	o.PotentialGain = GainPercent(price, o.TargetPrice)
	o.UpdatedAt = at
}

// ScanResult is the outcome of one scan invocation.
type ScanResult struct {
	ScanID        string            `json:"scan_id"`
	Opportunities []Opportunity     `json:"opportunities"`
	Succeeded     int               `json:"succeeded"`
	Failed        int               `json:"failed"`
	Failures      map[string]string `json:"failures,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// ScanProgress is reported after each chunk of a bulk scan.
type ScanProgress struct {
	Chunk  int        `json:"chunk"`
	Chunks int        `json:"chunks"`
	Result ScanResult `json:"result"`
}

// OpportunitySnapshot is one archived opportunity row.
type OpportunitySnapshot struct {
	ScanID string    `json:"scan_id"`
	At     time.Time `json:"at"`
	Opportunity
}
