package models

type ForecastRequest struct {
	Symbol string    `json:"symbol"`
	Prices []float64 `json:"prices"`
	Days   int       `json:"days"`
}

type Forecast struct {
	Symbol      string    `json:"symbol"`
	Predictions []float64 `json:"predictions"`
	Confidence  float64   `json:"confidence"`
}
