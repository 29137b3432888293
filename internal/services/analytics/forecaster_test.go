package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockIt/internal/domain/models"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestForecastPassesPricesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		var req models.ForecastRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "AAPL", req.Symbol)
		assert.Equal(t, 3, req.Days)
		assert.Len(t, req.Prices, 4)
		_, _ = w.Write([]byte(`{"predictions":[101,102,103],"confidence":0.7}`))
	}))
	defer srv.Close()

	f := NewHTTPForecaster(srv.URL+"/", time.Second, nil)
	got, err := f.Forecast(context.Background(), models.ForecastRequest{Symbol: "AAPL", Prices: []float64{1, 2, 3, 4}, Days: 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{101, 102, 103}, got.Predictions)
	assert.Equal(t, 0.7, got.Confidence)
}

func TestForecastRetriesThenReportsUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTPForecaster(srv.URL, time.Second, nil)
	f.base.sleep = noSleep
	_, err := f.Forecast(context.Background(), models.ForecastRequest{Symbol: "AAPL", Prices: []float64{1}, Days: 1})
	require.ErrorIs(t, err, models.ErrForecastUnavailable)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestForecastRejectsEmptyInput(t *testing.T) {
	f := NewHTTPForecaster("http://127.0.0.1:1", time.Second, nil)
	_, err := f.Forecast(context.Background(), models.ForecastRequest{Symbol: "AAPL"})
	assert.ErrorIs(t, err, models.ErrScoringInputInvalid)
}
