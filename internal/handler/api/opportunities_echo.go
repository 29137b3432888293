package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"StockIt/internal/domain/models"
	domrepo "StockIt/internal/domain/repository"
	"StockIt/internal/service/metrics"
	"StockIt/internal/service/ratelimit"
	"StockIt/internal/usecase"
	xhttp "StockIt/pkg/http"
	xlogger "StockIt/pkg/logger"

	"github.com/labstack/echo/v4"
)

// OpportunitiesHandler serves scans, blue chips, live tracking and forecasts.
type OpportunitiesHandler struct {
	logger    *xlogger.Logger
	source    domrepo.BarSource
	scanner   *usecase.OpportunityScanner
	bulk      *usecase.BulkScanner
	blueChips *usecase.BlueChipService
	feed      *usecase.OpportunityFeed
	forecast  *usecase.ForecastUseCase
	proc      *usecase.UpdateProcessor
	limiter   *ratelimit.Limiter
}

func NewOpportunitiesHandler(
	logger *xlogger.Logger,
	source domrepo.BarSource,
	scanner *usecase.OpportunityScanner,
	bulk *usecase.BulkScanner,
	blueChips *usecase.BlueChipService,
	feed *usecase.OpportunityFeed,
	forecast *usecase.ForecastUseCase,
	proc *usecase.UpdateProcessor,
	limiter *ratelimit.Limiter,
) *OpportunitiesHandler {
	metrics.Register()
	return &OpportunitiesHandler{
		logger:    logger.With("api"),
		source:    source,
		scanner:   scanner,
		bulk:      bulk,
		blueChips: blueChips,
		feed:      feed,
		forecast:  forecast,
		proc:      proc,
		limiter:   limiter,
	}
}

func (h *OpportunitiesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	if h.limiter != nil {
		g.Use(ratelimit.Middleware(h.limiter))
	}
	g.GET("/bars", h.Bars)
	g.POST("/scan", h.Scan)
	g.POST("/scan/live", h.LiveScan)
	g.GET("/bluechips", h.BlueChips)
	g.GET("/stream/status", h.StreamStatus)
	g.GET("/opportunities/live", h.LiveOpportunities)
	g.POST("/forecast", h.Forecast)
	g.GET("/scans/history", h.History)
}

func observe(endpoint string) func() {
	start := time.Now()
	return func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }
}

func (h *OpportunitiesHandler) fail(c echo.Context, endpoint string, err error) error {
	metrics.APIErrors.WithLabelValues(endpoint).Inc()
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(endpoint+" failed", xlogger.Error(err))
	} else {
		h.logger.Warn(endpoint+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps domain sentinels to HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrScoringInputInvalid):
		return xhttp.BadRequestErrorf("%s", err.Error()).WithError(err)
	case errors.Is(err, models.ErrProviderNotFound):
		return xhttp.NotFoundErrorf("%s", err.Error()).WithError(err)
	case errors.Is(err, models.ErrProviderRateLimited):
		return xhttp.TooManyRequestsError("upstream rate limited").WithError(err)
	case errors.Is(err, models.ErrProviderTransient), errors.Is(err, models.ErrProviderFatal):
		return xhttp.BadGatewayError("market data provider failed").WithError(err)
	case errors.Is(err, models.ErrForecastUnavailable), errors.Is(err, usecase.ErrNoArchive):
		return xhttp.ServiceUnavailableError(err.Error()).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.NewAppError("ERR_TIMEOUT", "", "request timed out", http.StatusGatewayTimeout).WithError(err)
	default:
		return xhttp.InternalErrorf("internal error").WithError(err)
	}
}

func scanResponse(r models.ScanResult) models.ScanResponse {
	opps := r.Opportunities
	if opps == nil {
		opps = []models.Opportunity{}
	}
	return models.ScanResponse{
		Opportunities: opps,
		Succeeded:     r.Succeeded,
		Failed:        r.Failed,
		Timestamp:     r.Timestamp.UTC().Format(time.RFC3339),
	}
}

func (h *OpportunitiesHandler) record(ctx context.Context, r *models.ScanResult) {
	if h.proc == nil {
		return
	}
	if err := h.proc.RecordScan(ctx, r); err != nil {
		h.logger.Warn("scan not recorded", xlogger.String("scan_id", r.ScanID), xlogger.Error(err))
	}
}

// Bars returns historical bars: GET /api/bars?symbol=AAPL&range=3mo&interval=1d
func (h *OpportunitiesHandler) Bars(c echo.Context) error {
	defer observe("bars")()
	symbol := strings.ToUpper(strings.TrimSpace(c.QueryParam("symbol")))
	if symbol == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("symbol required"))
	}
	r := domrepo.NormalizeRange(c.QueryParam("range"))
	i := domrepo.NormalizeInterval(c.QueryParam("interval"))

	bars, err := h.source.Bars(c.Request().Context(), symbol, r, i)
	if err != nil {
		return h.fail(c, "bars", err)
	}
	if bars == nil {
		bars = []models.Bar{}
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"symbol":   symbol,
		"range":    r,
		"interval": i,
		"count":    len(bars),
		"bars":     bars,
	})
}

// Scan scores caller-supplied series.
func (h *OpportunitiesHandler) Scan(c echo.Context) error {
	defer observe("scan")()
	req := &models.ScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	res := h.scanner.Evaluate(ctx, req.Symbols, req.HistoricalData, req.MinGainPotential)
	metrics.OpportunitiesFound.WithLabelValues("scan").Add(float64(len(res.Opportunities)))
	h.record(ctx, &res)
	return xhttp.SuccessResponse(c, scanResponse(res))
}

// LiveScan fetches bars for the requested symbols, or the blue chips when
// none are given, and optionally tracks the result.
func (h *OpportunitiesHandler) LiveScan(c echo.Context) error {
	defer observe("scan_live")()
	req := &models.LiveScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = h.blueChips.Symbols(ctx)
	}
	res, err := h.bulk.RunWithTimeframe(ctx, symbols, req.MinGainPotential, domrepo.Range(req.Range), domrepo.Interval(req.Interval), nil)
	if err != nil {
		return h.fail(c, "scan_live", err)
	}
	metrics.OpportunitiesFound.WithLabelValues("scan_live").Add(float64(len(res.Opportunities)))
	h.record(ctx, &res)
	if req.Track && h.feed != nil {
		h.feed.Load(res.Opportunities)
	}
	return xhttp.SuccessResponse(c, scanResponse(res))
}

func (h *OpportunitiesHandler) BlueChips(c echo.Context) error {
	defer observe("bluechips")()
	chips := h.blueChips.GetBlueChipStocks(c.Request().Context())
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=300")
	return xhttp.ListResponse(c, chips, int64(len(chips)))
}

func (h *OpportunitiesHandler) StreamStatus(c echo.Context) error {
	if h.feed == nil {
		return xhttp.ListResponse(c, []models.SubscriptionStatus{}, 0)
	}
	st := h.feed.Statuses()
	return xhttp.ListResponse(c, st, int64(len(st)))
}

// LiveOpportunities lists tracked opportunities repriced by the stream.
// ?min_gain= drops those whose live gain fell below the threshold.
func (h *OpportunitiesHandler) LiveOpportunities(c echo.Context) error {
	if h.feed == nil {
		return xhttp.ListResponse(c, []models.Opportunity{}, 0)
	}
	opps := h.feed.Snapshot()
	if minGain := xhttp.QueryFloat(c, "min_gain", 0); minGain > 0 {
		opps = usecase.FilterAndRank(opps, minGain)
	}
	return xhttp.ListResponse(c, opps, int64(len(opps)))
}

func (h *OpportunitiesHandler) Forecast(c echo.Context) error {
	defer observe("forecast")()
	req := &models.ForecastHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	out, err := h.forecast.Forecast(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "forecast", err)
	}
	return xhttp.SuccessResponse(c, out)
}

// History lists archived opportunities:
// GET /api/scans/history?symbol=AAPL&from=2024-03-01&to=2024-03-02&limit=100
func (h *OpportunitiesHandler) History(c echo.Context) error {
	defer observe("history")()
	if h.proc == nil {
		return h.fail(c, "history", usecase.ErrNoArchive)
	}
	now := time.Now().UTC()
	from := xhttp.QueryTime(c, "from", now.Add(-7*24*time.Hour))
	to := xhttp.QueryTime(c, "to", now)
	if from.After(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("from must be <= to"))
	}
	limit := xhttp.QueryInt(c, "limit", 100)
	if limit <= 0 || limit > 5000 {
		limit = 100
	}

	rows, err := h.proc.History(c.Request().Context(), c.QueryParam("symbol"), from, to, limit)
	if err != nil {
		return h.fail(c, "history", err)
	}
	if rows == nil {
		rows = []models.OpportunitySnapshot{}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

var _ xhttp.Handler = (*OpportunitiesHandler)(nil)
