package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"StockIt/internal/domain/models"
	"StockIt/internal/domain/repository"
	pkgcache "StockIt/pkg/cache"
	applogger "StockIt/pkg/logger"
	"StockIt/pkg/metrics"
)

const (
	DefaultHistoricalTTL = time.Hour
	barsKeyPrefix        = "bars"
)

// Option configures HistoricalDataCache.
type Option func(*HistoricalDataCache)

// HistoricalDataCache is a read-through cache of bar series keyed by
// symbol, range and interval. Concurrent misses on one key may both hit the
// provider; the last write wins.
type HistoricalDataCache struct {
	store    pkgcache.Service
	provider repository.BarProvider
	ttl      time.Duration
	logger   *applogger.Logger
	metrics  repository.Metrics
}

func NewHistoricalDataCache(store pkgcache.Service, provider repository.BarProvider, opts ...Option) *HistoricalDataCache {
	h := &HistoricalDataCache{
		store:    store,
		provider: provider,
		ttl:      DefaultHistoricalTTL,
		logger:   applogger.Nop(),
		metrics:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func WithTTL(ttl time.Duration) Option {
	return func(h *HistoricalDataCache) { h.ttl = ttl }
}

func WithLogger(l *applogger.Logger) Option {
	return func(h *HistoricalDataCache) { h.logger = l }
}

func WithMetrics(m repository.Metrics) Option {
	return func(h *HistoricalDataCache) { h.metrics = m }
}

// BarsKey is the cache key for one series.
func BarsKey(symbol string, r repository.Range, i repository.Interval) string {
	return pkgcache.GenerateKeyWithParams(barsKeyPrefix, strings.ToUpper(symbol), r, i)
}

// Bars returns the cached series or fetches and stores it. Empty series are
// returned but not stored, so a transient upstream gap is not pinned for a full TTL.
func (h *HistoricalDataCache) Bars(ctx context.Context, symbol string, r repository.Range, i repository.Interval) ([]models.Bar, error) {
	key := BarsKey(symbol, r, i)

	var bars []models.Bar
	err := h.store.Get(ctx, key, &bars)
	if err == nil {
		h.metrics.RecordCacheLookup(barsKeyPrefix, true)
		return bars, nil
	}
	if !errors.Is(err, pkgcache.ErrCacheMiss) {
		h.logger.Warn("bars cache read failed, falling through to provider",
			applogger.String("key", key), applogger.Error(err))
		h.metrics.RecordError("cache_read")
	}
	h.metrics.RecordCacheLookup(barsKeyPrefix, false)

	bars, err = h.provider.GetHistoricalBars(ctx, symbol, r, i)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return bars, nil
	}

	if err := h.store.Set(ctx, key, bars, h.ttl); err != nil {
		h.logger.Warn("bars cache write failed", applogger.String("key", key), applogger.Error(err))
		h.metrics.RecordError("cache_write")
	}
	return bars, nil
}

// Has reports whether a fresh series is cached.
func (h *HistoricalDataCache) Has(ctx context.Context, symbol string, r repository.Range, i repository.Interval) bool {
	ok, err := h.store.Has(ctx, BarsKey(symbol, r, i))
	return err == nil && ok
}

// Invalidate drops one cached series.
func (h *HistoricalDataCache) Invalidate(ctx context.Context, symbol string, r repository.Range, i repository.Interval) error {
	return h.store.Delete(ctx, BarsKey(symbol, r, i))
}
