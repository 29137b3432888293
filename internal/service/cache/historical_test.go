package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"StockIt/internal/domain/models"
	"StockIt/internal/domain/repository"
	pkgcache "StockIt/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	mu    sync.Mutex
	calls int
	bars  []models.Bar
	err   error
}

func (p *stubProvider) GetHistoricalBars(_ context.Context, _ string, _ repository.Range, _ repository.Interval) ([]models.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.bars, p.err
}

func (p *stubProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func sampleBars() []models.Bar {
	t0 := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	return []models.Bar{
		{Timestamp: t0, Open: 1, High: 2, Low: 1, Close: 2, Volume: 10},
		{Timestamp: t0.Add(24 * time.Hour), Open: 2, High: 3, Low: 2, Close: 3, Volume: 11},
	}
}

func TestBarsReadThrough(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	store := pkgcache.NewMemoryCache(pkgcache.WithMemoryClock(clk.Now), pkgcache.WithMemoryCleanup(0))
	defer store.Close()
	provider := &stubProvider{bars: sampleBars()}
	h := NewHistoricalDataCache(store, provider)

	first, err := h.Bars(ctx, "aapl", "1mo", "1d")
	require.NoError(t, err)
	second, err := h.Bars(ctx, "AAPL", "1mo", "1d")
	require.NoError(t, err)

	assert.Equal(t, sampleBars(), first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.Calls())
	assert.True(t, h.Has(ctx, "AAPL", "1mo", "1d"))

	clk.now = clk.now.Add(DefaultHistoricalTTL)
	_, err = h.Bars(ctx, "AAPL", "1mo", "1d")
	require.NoError(t, err)
	assert.Equal(t, 2, provider.Calls(), "expired entry refetched")
}

func TestBarsKeyedByRangeAndInterval(t *testing.T) {
	ctx := context.Background()
	store := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0))
	defer store.Close()
	provider := &stubProvider{bars: sampleBars()}
	h := NewHistoricalDataCache(store, provider)

	_, _ = h.Bars(ctx, "AAPL", "1mo", "1d")
	_, _ = h.Bars(ctx, "AAPL", "3mo", "1d")
	_, _ = h.Bars(ctx, "AAPL", "1mo", "1h")
	assert.Equal(t, 3, provider.Calls())
	assert.Equal(t, "bars:AAPL:1mo:1d", BarsKey("aapl", "1mo", "1d"))
}

func TestEmptySeriesNotCached(t *testing.T) {
	ctx := context.Background()
	store := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0))
	defer store.Close()
	provider := &stubProvider{bars: []models.Bar{}}
	h := NewHistoricalDataCache(store, provider)

	bars, err := h.Bars(ctx, "ZZZZ", "1mo", "1d")
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.False(t, h.Has(ctx, "ZZZZ", "1mo", "1d"))
}

func TestProviderErrorPropagates(t *testing.T) {
	store := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0))
	defer store.Close()
	h := NewHistoricalDataCache(store, &stubProvider{err: models.ErrProviderFatal})

	_, err := h.Bars(context.Background(), "AAPL", "1mo", "1d")
	assert.True(t, errors.Is(err, models.ErrProviderFatal))
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	store := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0))
	defer store.Close()
	provider := &stubProvider{bars: sampleBars()}
	h := NewHistoricalDataCache(store, provider)

	_, _ = h.Bars(ctx, "AAPL", "1mo", "1d")
	require.NoError(t, h.Invalidate(ctx, "AAPL", "1mo", "1d"))
	_, _ = h.Bars(ctx, "AAPL", "1mo", "1d")
	assert.Equal(t, 2, provider.Calls())
}
