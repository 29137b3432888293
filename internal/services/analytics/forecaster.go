package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StockIt/internal/domain/models"
	domsvc "StockIt/internal/domain/service"
	"StockIt/pkg/logger"
)

// HTTPForecaster asks the external price model for a short-horizon forecast.
// The model is opaque: prices in, predictions and a confidence out.
type HTTPForecaster struct {
	base     *HTTPServiceBase
	attempts int
	log      *logger.Logger
}

func NewHTTPForecaster(baseURL string, timeout time.Duration, l *logger.Logger) *HTTPForecaster {
	if l == nil {
		l = logger.Nop()
	}
	return &HTTPForecaster{base: NewHTTPServiceBase(baseURL, timeout), attempts: 2, log: l.With("forecaster")}
}

type predictResp struct {
	Predictions []float64 `json:"predictions"`
	Confidence  float64   `json:"confidence"`
}

func (f *HTTPForecaster) Forecast(ctx context.Context, req models.ForecastRequest) (*models.Forecast, error) {
	if req.Symbol == "" || len(req.Prices) == 0 {
		return nil, fmt.Errorf("%w: symbol and prices are required", models.ErrScoringInputInvalid)
	}
	var pr predictResp
	if err := f.base.PostJSONWithRetry(ctx, "/predict", req, &pr, f.attempts); err != nil {
		f.log.Warn("forecast request failed", logger.Symbol(req.Symbol), logger.Error(err))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrForecastUnavailable, err)
	}
	if len(pr.Predictions) == 0 {
		return nil, fmt.Errorf("%w: empty prediction", models.ErrForecastUnavailable)
	}
	return &models.Forecast{
		Symbol:      req.Symbol,
		Predictions: pr.Predictions,
		Confidence:  pr.Confidence,
	}, nil
}

var _ domsvc.Forecaster = (*HTTPForecaster)(nil)
