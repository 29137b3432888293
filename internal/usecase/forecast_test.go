package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockIt/internal/domain/models"
)

type stubForecaster struct {
	got models.ForecastRequest
}

func (s *stubForecaster) Forecast(_ context.Context, req models.ForecastRequest) (*models.Forecast, error) {
	s.got = req
	return &models.Forecast{Symbol: req.Symbol, Predictions: []float64{req.Prices[len(req.Prices)-1] + 1}, Confidence: 0.4}, nil
}

func TestForecastPassesClosingPrices(t *testing.T) {
	src := &fakeBarSource{series: map[string][]float64{"AAPL": {100, 101, 103}}}
	fc := &stubForecaster{}
	uc := NewForecastUseCase(src, fc)

	out, err := uc.Forecast(context.Background(), models.ForecastHTTPRequest{Symbol: "aapl", Days: 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 101, 103}, fc.got.Prices)
	assert.Equal(t, 3, fc.got.Days)
	assert.Equal(t, []float64{104}, out.Predictions)
}

func TestForecastWithoutBars(t *testing.T) {
	uc := NewForecastUseCase(&fakeBarSource{}, &stubForecaster{})

	_, err := uc.Forecast(context.Background(), models.ForecastHTTPRequest{Symbol: "ZZZZ"})
	assert.ErrorIs(t, err, models.ErrProviderNotFound)

	_, err = uc.Forecast(context.Background(), models.ForecastHTTPRequest{Symbol: "  "})
	assert.ErrorIs(t, err, models.ErrScoringInputInvalid)
}
