package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockIt/internal/domain/models"
	drepo "StockIt/internal/domain/repository"
)

type fakeBarSource struct {
	mu     sync.Mutex
	series map[string][]float64
	errs   map[string]error
	calls  []string
}

func (f *fakeBarSource) Bars(_ context.Context, symbol string, _ drepo.Range, _ drepo.Interval) ([]models.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, symbol)
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return barsOf(f.series[symbol]), nil
}

func barsOf(prices []float64) []models.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]models.Bar, len(prices))
	for i, px := range prices {
		out[i] = models.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      px,
			High:      px,
			Low:       px,
			Close:     px,
			Volume:    1000,
		}
	}
	return out
}

type sleepLog struct {
	mu     sync.Mutex
	delays []time.Duration
	onCall func(n int)
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	n := len(s.delays)
	s.mu.Unlock()
	if s.onCall != nil {
		s.onCall(n)
	}
	return ctx.Err()
}

func newFakeSource() *fakeBarSource {
	return &fakeBarSource{
		series: map[string][]float64{
			"SPY":  risingSeries.MarketPrices,
			"AAPL": risingSeries.Prices,
			"MSFT": risingSeries.Prices,
			"FLAT": {50, 50, 50, 50, 50, 50},
			"NVDA": risingSeries.Prices,
			"AMZN": {10, 9, 8, 7, 6, 5},
			"META": risingSeries.Prices,
		},
		errs: map[string]error{},
	}
}

func TestBulkScanChunksWithDelayAndProgress(t *testing.T) {
	src := newFakeSource()
	src.errs["BOOM"] = errors.New("upstream exploded")
	sl := &sleepLog{}
	b := NewBulkScanner(src, newTestScanner(), WithBulkSleeper(sl.sleep))

	var progress []models.ScanProgress
	res, err := b.Run(context.Background(),
		[]string{"aapl", "MSFT", "FLAT", "NVDA", "AMZN", "META", "BOOM", "AAPL"}, 1,
		func(p models.ScanProgress) { progress = append(progress, p) })
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sl.delays)
	require.Len(t, progress, 3)
	assert.Equal(t, 3, progress[2].Chunks)
	assert.Len(t, progress[0].Result.Opportunities, 2)

	var syms []string
	for _, o := range res.Opportunities {
		syms = append(syms, o.Symbol)
	}
	assert.Equal(t, []string{"AAPL", "META", "MSFT", "NVDA"}, syms)
	assert.Equal(t, 6, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "upstream exploded", res.Failures["BOOM"])
	assert.Equal(t, 1.0, res.Opportunities[0].MarketCorrelation)
}

func TestBulkScanCancellationReturnsPartial(t *testing.T) {
	src := newFakeSource()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sl := &sleepLog{onCall: func(int) { cancel() }}
	b := NewBulkScanner(src, newTestScanner(), WithBulkSleeper(sl.sleep))

	res, err := b.Run(ctx, []string{"AAPL", "MSFT", "FLAT", "NVDA", "AMZN", "META"}, 1, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, res.Succeeded)
	assert.Len(t, res.Opportunities, 2)
	assert.NotContains(t, src.calls, "NVDA")
}

func TestBulkScanWithoutBenchmark(t *testing.T) {
	src := newFakeSource()
	b := NewBulkScanner(src, newTestScanner(), WithMarketSymbol(""), WithBulkSleeper((&sleepLog{}).sleep))

	res, err := b.Run(context.Background(), []string{"AAPL"}, -100, nil)
	require.NoError(t, err)
	assert.NotContains(t, src.calls, "SPY")
	require.Len(t, res.Opportunities, 0)
	assert.Equal(t, 1, res.Succeeded)
}

func TestChunkSymbols(t *testing.T) {
	got := chunkSymbols([]string{"A", "B", "C", "D", "E", "F", "G"}, 3)
	assert.Equal(t, [][]string{{"A", "B", "C"}, {"D", "E", "F"}, {"G"}}, got)
	assert.Nil(t, chunkSymbols(nil, 3))
}
