package polygon

import (
	"context"
	"fmt"
	"strconv"

	"StockIt/internal/domain/models"
)

type tickersResponse struct {
	Results []struct {
		Ticker          string   `json:"ticker"`
		Name            string   `json:"name"`
		MarketCap       *float64 `json:"market_cap"`
		PrimaryExchange string   `json:"primary_exchange"`
	} `json:"results"`
}

// ListTickers returns active common stocks from the reference endpoint.
// Unlike GetHistoricalBars every failure is returned, so callers can fall back.
func (c *Client) ListTickers(ctx context.Context, limit int) ([]models.BlueChip, error) {
	if limit <= 0 {
		limit = 50
	}
	opts := c.request("/v3/reference/tickers", map[string][]string{
		"market": {"stocks"},
		"type":   {"CS"},
		"active": {"true"},
		"limit":  {strconv.Itoa(limit)},
	})

	var resp tickersResponse
	if err := c.get(ctx, "tickers", opts, &resp); err != nil {
		return nil, fmt.Errorf("list tickers: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("list tickers: %w", models.ErrProviderNotFound)
	}

	out := make([]models.BlueChip, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Ticker == "" {
			continue
		}
		bc := models.BlueChip{Symbol: r.Ticker, Name: r.Name, PrimaryExchange: r.PrimaryExchange}
		if r.MarketCap != nil {
			bc.MarketCap = *r.MarketCap
		}
		out = append(out, bc)
	}
	return out, nil
}
