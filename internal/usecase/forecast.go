package usecase

import (
	"context"
	"fmt"
	"strings"

	"StockIt/internal/domain/models"
	drepo "StockIt/internal/domain/repository"
	dsvc "StockIt/internal/domain/service"
	"StockIt/internal/services/features"
)

// ForecastUseCase feeds a symbol's closing prices to the forecasting model.
type ForecastUseCase struct {
	source     drepo.BarSource
	forecaster dsvc.Forecaster
}

func NewForecastUseCase(source drepo.BarSource, f dsvc.Forecaster) *ForecastUseCase {
	return &ForecastUseCase{source: source, forecaster: f}
}

func (uc *ForecastUseCase) Forecast(ctx context.Context, req models.ForecastHTTPRequest) (*models.Forecast, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", models.ErrScoringInputInvalid)
	}
	if req.Days <= 0 {
		req.Days = 7
	}

	bars, err := uc.source.Bars(ctx, symbol, drepo.NormalizeRange(req.Range), drepo.NormalizeInterval(req.Interval))
	if err != nil {
		return nil, fmt.Errorf("bars %s: %w", symbol, err)
	}
	closes := features.Closes(bars)
	if len(closes) == 0 {
		return nil, fmt.Errorf("bars %s: %w", symbol, models.ErrProviderNotFound)
	}

	return uc.forecaster.Forecast(ctx, models.ForecastRequest{Symbol: symbol, Prices: closes, Days: req.Days})
}
