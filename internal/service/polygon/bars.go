package polygon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"StockIt/internal/domain/models"
	"StockIt/internal/domain/repository"
	applogger "StockIt/pkg/logger"
	"StockIt/pkg/util"
)

type aggsResponse struct {
	Ticker  string                   `json:"ticker"`
	Results []map[string]interface{} `json:"results"`
}

// GetHistoricalBars returns bars for symbol over range r at interval i, oldest first.
//
// Missing data and exhausted retries yield an empty slice with a nil error so a
// single symbol never aborts a batch. Auth and request errors are returned and
// match models.ErrProviderFatal.
func (c *Client) GetHistoricalBars(ctx context.Context, symbol string, r repository.Range, i repository.Interval) ([]models.Bar, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	q, err := repository.NewBarQuery(symbol, r, i, c.now())
	if err != nil {
		return nil, &models.ProviderError{Kind: models.ErrProviderFatal, Err: err}
	}

	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%s/%s",
		url.PathEscape(q.Symbol), q.Multiplier, q.Timespan, util.FormatDay(q.From), util.FormatDay(q.To))
	opts := c.request(path, map[string][]string{
		"adjusted": {"true"},
		"sort":     {"asc"},
		"limit":    {"50000"},
	})

	var resp aggsResponse
	err = c.get(ctx, "aggs", opts, &resp)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, models.ErrProviderNotFound):
		return []models.Bar{}, nil
	case errors.Is(err, models.ErrProviderTransient), errors.Is(err, models.ErrProviderRateLimited):
		c.logger.Error("historical bars unavailable, returning empty series",
			applogger.Symbol(symbol),
			applogger.String("range", string(r)),
			applogger.String("interval", string(i)),
			applogger.Error(err),
		)
		c.metrics.RecordError("provider_exhausted")
		return []models.Bar{}, nil
	default:
		c.metrics.RecordError("provider_fatal")
		return nil, fmt.Errorf("get bars %s: %w", symbol, err)
	}

	bars, dropped := normalizeBars(resp.Results)
	if dropped > 0 {
		c.logger.Debug("dropped malformed bars", applogger.Symbol(symbol), applogger.Int("dropped", dropped))
	}
	return bars, nil
}

// normalizeBars keeps fully numeric, internally consistent bars, sorted by
// timestamp with duplicates collapsed to the last occurrence.
func normalizeBars(raw []map[string]interface{}) ([]models.Bar, int) {
	byTS := make(map[int64]models.Bar, len(raw))
	dropped := 0
	for _, r := range raw {
		b, ok := parseBar(r)
		if !ok {
			dropped++
			continue
		}
		ts := b.Timestamp.UnixMilli()
		if _, dup := byTS[ts]; dup {
			dropped++
		}
		byTS[ts] = b
	}

	bars := make([]models.Bar, 0, len(byTS))
	for _, b := range byTS {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(a, b int) bool { return bars[a].Timestamp.Before(bars[b].Timestamp) })
	return bars, dropped
}

func parseBar(r map[string]interface{}) (models.Bar, bool) {
	var vals [6]float64
	for idx, key := range [...]string{"t", "o", "h", "l", "c", "v"} {
		f, ok := r[key].(float64)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return models.Bar{}, false
		}
		vals[idx] = f
	}
	b := models.Bar{
		Timestamp: time.UnixMilli(int64(vals[0])).UTC(),
		Open:      vals[1],
		High:      vals[2],
		Low:       vals[3],
		Close:     vals[4],
		Volume:    vals[5],
	}
	if vals[0] <= 0 || b.Low > b.High || b.Open < b.Low || b.Open > b.High || b.Close < b.Low || b.Close > b.High {
		return models.Bar{}, false
	}
	return b, true
}
