package models

// ScanRequest mirrors the blue-chip scan endpoint body.
type ScanRequest struct {
	Symbols          []string                    `json:"symbols" validate:"required,min=1,dive,required"`
	HistoricalData   map[string]HistoricalSeries `json:"historical_data" validate:"required"`
	MinGainPotential float64                     `json:"min_gain_potential" default:"5"`
}

type ScanResponse struct {
	Opportunities []Opportunity `json:"opportunities"`
	Succeeded     int           `json:"succeeded"`
	Failed        int           `json:"failed"`
	Timestamp     string        `json:"timestamp"`
}

type LiveScanRequest struct {
	Symbols          []string `json:"symbols" validate:"omitempty,dive,required"`
	MinGainPotential float64  `json:"min_gain_potential" default:"5"`
	// Range and Interval override the configured timeframe when set.
	Range    string `json:"range" validate:"omitempty,oneof=1d 5d 1mo 3mo 6mo 1y 2y 5y"`
	Interval string `json:"interval" validate:"omitempty,oneof=1m 5m 15m 30m 1h 1d 1wk 1mo"`
	// Track subscribes the resulting opportunities to live updates.
	Track bool `json:"track"`
}

type ForecastHTTPRequest struct {
	Symbol   string `json:"symbol" validate:"required"`
	Range    string `json:"range" default:"6mo"`
	Interval string `json:"interval" default:"1d"`
	Days     int    `json:"days" default:"7" validate:"min=1,max=90"`
}
