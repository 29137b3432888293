package service

import (
	"context"

	"StockIt/internal/domain/models"
)

// Forecaster asks the external forecasting model for future prices.
type Forecaster interface {
	Forecast(ctx context.Context, req models.ForecastRequest) (*models.Forecast, error)
}
