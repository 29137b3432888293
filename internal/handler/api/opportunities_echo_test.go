package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockIt/internal/domain/models"
	domrepo "StockIt/internal/domain/repository"
	"StockIt/internal/service/ratelimit"
	"StockIt/internal/usecase"
	pkgcache "StockIt/pkg/cache"
	xlogger "StockIt/pkg/logger"
	pkgmetrics "StockIt/pkg/metrics"
)

var fixedNow = time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

type stubBars struct {
	series map[string][]float64

	mu        sync.Mutex
	timeframe []string
}

func (s *stubBars) Bars(_ context.Context, symbol string, r domrepo.Range, i domrepo.Interval) ([]models.Bar, error) {
	s.mu.Lock()
	s.timeframe = append(s.timeframe, string(r)+"/"+string(i))
	s.mu.Unlock()

	px, ok := s.series[symbol]
	if !ok {
		return nil, models.ErrProviderNotFound
	}
	out := make([]models.Bar, len(px))
	for i, p := range px {
		out[i] = models.Bar{Timestamp: fixedNow.AddDate(0, 0, i-len(px)), Open: p, High: p, Low: p, Close: p, Volume: 10}
	}
	return out, nil
}

type downTickers struct{}

func (downTickers) ListTickers(context.Context, int) ([]models.BlueChip, error) {
	return nil, models.ErrProviderTransient
}

type downForecaster struct{}

func (downForecaster) Forecast(context.Context, models.ForecastRequest) (*models.Forecast, error) {
	return nil, models.ErrForecastUnavailable
}

type sliceArchive struct {
	rows []models.OpportunitySnapshot
}

func (a *sliceArchive) Init(context.Context) error { return nil }
func (a *sliceArchive) StoreScan(_ context.Context, r *models.ScanResult) error {
	for _, o := range r.Opportunities {
		a.rows = append(a.rows, models.OpportunitySnapshot{ScanID: r.ScanID, At: r.Timestamp, Opportunity: o})
	}
	return nil
}
func (a *sliceArchive) History(context.Context, string, time.Time, time.Time, int) ([]models.OpportunitySnapshot, error) {
	return a.rows, nil
}
func (a *sliceArchive) Health(context.Context) error { return nil }
func (a *sliceArchive) Close() error                 { return nil }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) (*echo.Echo, *sliceArchive) {
	t.Helper()
	e, archive, _ := newTestServerWithSource(t, limiter)
	return e, archive
}

func newTestServerWithSource(t *testing.T, limiter *ratelimit.Limiter) (*echo.Echo, *sliceArchive, *stubBars) {
	t.Helper()
	src := &stubBars{series: map[string][]float64{
		"AAPL": {100, 102, 106.08, 112.44, 121.44, 133.58},
		"SPY":  {400, 404, 412.08, 424.44, 441.42, 463.49},
	}}
	scanner := usecase.NewOpportunityScanner(xlogger.Nop(), pkgmetrics.Nop{},
		usecase.WithScannerClock(func() time.Time { return fixedNow }),
		usecase.WithScanIDs(func() string { return "scan-test" }),
	)
	bulk := usecase.NewBulkScanner(src, scanner,
		usecase.WithTimeframe("6mo", "1d"),
		usecase.WithBulkSleeper(func(context.Context, time.Duration) error { return nil }),
	)
	chips := usecase.NewBlueChipService(downTickers{}, pkgcache.NewMemoryCache())
	archive := &sliceArchive{}
	proc := usecase.NewUpdateProcessor(nil, archive, pkgmetrics.Nop{}, usecase.BackendClickHouse)
	forecast := usecase.NewForecastUseCase(src, downForecaster{})

	h := NewOpportunitiesHandler(xlogger.Nop(), src, scanner, bulk, chips, nil, forecast, proc, limiter)
	e := echo.New()
	h.RegisterRoutes(e)
	return e, archive, src
}

func do(e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestScanScoresSuppliedSeries(t *testing.T) {
	e, archive := newTestServer(t, nil)
	body := `{"symbols":["AAPL"],"historical_data":{"AAPL":{"prices":[100,102,106.08,112.44,121.44,133.58],"market_prices":[400,404,412.08,424.44,441.42,463.49]}},"min_gain_potential":1}`

	rec, env := do(e, http.MethodPost, "/api/scan", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.ScanResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Len(t, resp.Opportunities, 1)
	assert.Equal(t, 1.78, resp.Opportunities[0].PotentialGain)
	assert.Equal(t, "2024-03-01T15:00:00Z", resp.Timestamp)
	assert.Len(t, archive.rows, 1)
}

func TestScanRejectsMissingSymbols(t *testing.T) {
	e, _ := newTestServer(t, nil)
	rec, _ := do(e, http.MethodPost, "/api/scan", `{"historical_data":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLiveScanFetchesBars(t *testing.T) {
	e, _ := newTestServer(t, nil)
	rec, env := do(e, http.MethodPost, "/api/scan/live", `{"symbols":["aapl","ZZZZ"],"min_gain_potential":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.ScanResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Len(t, resp.Opportunities, 1)
	assert.Equal(t, "AAPL", resp.Opportunities[0].Symbol)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
}

func TestLiveScanUsesRequestedTimeframe(t *testing.T) {
	e, _, src := newTestServerWithSource(t, nil)
	rec, _ := do(e, http.MethodPost, "/api/scan/live", `{"symbols":["AAPL"],"range":"1y","interval":"1wk"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotEmpty(t, src.timeframe)
	for _, tf := range src.timeframe {
		assert.Equal(t, "1y/1wk", tf)
	}
}

func TestLiveScanDefaultsToConfiguredTimeframe(t *testing.T) {
	e, _, src := newTestServerWithSource(t, nil)
	rec, _ := do(e, http.MethodPost, "/api/scan/live", `{"symbols":["AAPL"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotEmpty(t, src.timeframe)
	for _, tf := range src.timeframe {
		assert.Equal(t, "6mo/1d", tf)
	}
}

func TestLiveScanRejectsUnknownRange(t *testing.T) {
	e, _, src := newTestServerWithSource(t, nil)
	rec, _ := do(e, http.MethodPost, "/api/scan/live", `{"symbols":["AAPL"],"range":"10y"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, src.timeframe)
}

func TestBlueChipsFallBack(t *testing.T) {
	e, _ := newTestServer(t, nil)
	rec, env := do(e, http.MethodGet, "/api/bluechips", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Rows  []models.BlueChip `json:"rows"`
		Total int64             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 10, list.Total)
	assert.Equal(t, "AAPL", list.Rows[0].Symbol)
}

func TestBarsMapsProviderErrors(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec, _ := do(e, http.MethodGet, "/api/bars?symbol=ZZZZ", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(e, http.MethodGet, "/api/bars", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(e, http.MethodGet, "/api/bars?symbol=aapl&range=bogus", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForecastUnavailable(t *testing.T) {
	e, _ := newTestServer(t, nil)
	rec, _ := do(e, http.MethodPost, "/api/forecast", `{"symbol":"AAPL","days":5}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveEndpointsWithoutFeed(t *testing.T) {
	e, _ := newTestServer(t, nil)
	rec, _ := do(e, http.MethodGet, "/api/stream/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(e, http.MethodGet, "/api/opportunities/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHistoryReadsArchive(t *testing.T) {
	e, archive := newTestServer(t, nil)
	archive.rows = []models.OpportunitySnapshot{{ScanID: "s1", At: fixedNow, Opportunity: models.Opportunity{Symbol: "AAPL"}}}

	rec, env := do(e, http.MethodGet, "/api/scans/history?symbol=AAPL&from=2024-03-01&to=2024-03-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"scan_id":"s1"`)

	rec, _ = do(e, http.MethodGet, "/api/scans/history?from=2024-03-02&to=2024-03-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitedRoutes(t *testing.T) {
	e, _ := newTestServer(t, ratelimit.New(1, 0))

	rec, _ := do(e, http.MethodGet, "/api/bluechips", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(e, http.MethodGet, "/api/bluechips", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestToAppErrorStatuses(t *testing.T) {
	cases := map[error]int{
		models.ErrScoringInputInvalid: http.StatusBadRequest,
		models.ErrProviderRateLimited: http.StatusTooManyRequests,
		models.ErrProviderTransient:   http.StatusBadGateway,
		usecase.ErrNoArchive:          http.StatusServiceUnavailable,
		context.DeadlineExceeded:      http.StatusGatewayTimeout,
		errors.New("boom"):            http.StatusInternalServerError,
	}
	for err, status := range cases {
		assert.Equal(t, status, toAppError(err).Status, err.Error())
	}
}
