package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockIt/internal/domain/models"
)

var fixedNow = time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

func newTestScanner() *OpportunityScanner {
	return NewOpportunityScanner(nil, nil,
		WithScannerClock(func() time.Time { return fixedNow }),
		WithScanIDs(func() string { return "scan-1" }),
	)
}

// accelerating uptrend moving with its benchmark
var risingSeries = models.HistoricalSeries{
	Prices:       []float64{100, 102, 106.08, 112.44, 121.44, 133.58},
	MarketPrices: []float64{400, 404, 412.08, 424.44, 441.42, 463.49},
}

func TestScanScoresAndRounds(t *testing.T) {
	s := newTestScanner()
	res := s.Evaluate(context.Background(), []string{"aapl"}, map[string]models.HistoricalSeries{"AAPL": risingSeries}, 1)

	require.Len(t, res.Opportunities, 1)
	o := res.Opportunities[0]
	assert.Equal(t, "AAPL", o.Symbol)
	assert.Equal(t, 133.58, o.CurrentPrice)
	assert.Equal(t, 1.78, o.PotentialGain)
	assert.Equal(t, 0.6, o.Confidence)
	assert.Equal(t, 0.028, o.Volatility)
	assert.Equal(t, 1.0, o.MarketCorrelation)
	assert.Equal(t, "scan-1", res.ScanID)
	assert.Equal(t, 1, res.Succeeded)
	assert.Zero(t, res.Failed)
}

func TestScanGainMatchesStoredTarget(t *testing.T) {
	s := newTestScanner()
	for i := 0; i < 400; i++ {
		a := 1 + float64(i)/100
		o, err := s.score("LOW", models.HistoricalSeries{Prices: []float64{a, 1.01 * a, 1.03 * a, 1.06 * a, 1.1 * a}})
		require.NoError(t, err)
		assert.Equal(t, models.GainPercent(o.CurrentPrice, o.TargetPrice), o.PotentialGain, "start %v", a)

		live := o
		live.ApplyPrice(o.CurrentPrice, fixedNow)
		assert.Equal(t, o.PotentialGain, live.PotentialGain, "start %v", a)
	}
}

func TestEvaluateAcceptsLowercaseDataKeys(t *testing.T) {
	s := newTestScanner()
	res := s.Evaluate(context.Background(), []string{"aapl"}, map[string]models.HistoricalSeries{"aapl": risingSeries}, 1)

	assert.Equal(t, 1, res.Succeeded)
	assert.Zero(t, res.Failed)
	require.Len(t, res.Opportunities, 1)
	assert.Equal(t, "AAPL", res.Opportunities[0].Symbol)
}

func TestEvaluatePrefersUppercaseKeyOnDuplicate(t *testing.T) {
	s := newTestScanner()
	data := map[string]models.HistoricalSeries{
		"AAPL": risingSeries,
		"aapl": {Prices: []float64{5, 0}},
	}
	res := s.Evaluate(context.Background(), []string{"AAPL"}, data, 1)
	assert.Equal(t, 1, res.Succeeded)
	assert.Zero(t, res.Failed)
}

func TestScanDropsBelowMinGain(t *testing.T) {
	s := newTestScanner()
	got := s.Scan(context.Background(), []string{"AAPL"}, map[string]models.HistoricalSeries{"AAPL": risingSeries}, 5)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestScanIsolatesFailingSymbols(t *testing.T) {
	s := newTestScanner()
	data := map[string]models.HistoricalSeries{
		"AAPL": risingSeries,
		"BAD":  {Prices: []float64{10, math.NaN()}},
		"ZERO": {Prices: []float64{5, 0}},
	}
	res := s.Evaluate(context.Background(), []string{"AAPL", "BAD", "MISSING", "ZERO"}, data, 1)

	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 3, res.Failed)
	assert.Contains(t, res.Failures, "MISSING")
	assert.Contains(t, res.Failures, "BAD")
	assert.Contains(t, res.Failures, "ZERO")
	require.Len(t, res.Opportunities, 1)
	assert.Equal(t, "AAPL", res.Opportunities[0].Symbol)
}

func TestFilterAndRankBoundary(t *testing.T) {
	opps := []models.Opportunity{
		{Symbol: "EDGE", PotentialGain: 5.00, Confidence: 0.51},
		{Symbol: "UNDER", PotentialGain: 4.99, Confidence: 0.9},
		{Symbol: "SHY", PotentialGain: 12, Confidence: 0.5},
		{Symbol: "BIG", PotentialGain: 9, Confidence: 0.7},
		{Symbol: "ALSO", PotentialGain: 9, Confidence: 0.8},
	}
	got := FilterAndRank(opps, 5)

	var syms []string
	for _, o := range got {
		syms = append(syms, o.Symbol)
	}
	assert.Equal(t, []string{"ALSO", "BIG", "EDGE"}, syms)
}

func TestApplyPriceRecomputesGain(t *testing.T) {
	o := models.Opportunity{Symbol: "AAPL", CurrentPrice: 100, TargetPrice: 110, PotentialGain: 10}
	o.ApplyPrice(104, fixedNow)
	assert.Equal(t, 5.77, o.PotentialGain)
	assert.Equal(t, 104.0, o.CurrentPrice)
	assert.Equal(t, fixedNow, o.UpdatedAt)
}
