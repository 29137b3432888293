package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"StockIt/internal/domain/models"
	drepo "StockIt/internal/domain/repository"
	pkgcache "StockIt/pkg/cache"
	"StockIt/pkg/logger"
	"StockIt/pkg/metrics"
)

const (
	blueChipKey   = "bluechips:v1"
	blueChipCount = 10
)

// staticBlueChips is served whenever the ticker reference API cannot answer.
var staticBlueChips = []models.BlueChip{
	{Symbol: "AAPL", Name: "Apple Inc.", PrimaryExchange: "XNAS"},
	{Symbol: "MSFT", Name: "Microsoft Corporation", PrimaryExchange: "XNAS"},
	{Symbol: "GOOGL", Name: "Alphabet Inc.", PrimaryExchange: "XNAS"},
	{Symbol: "AMZN", Name: "Amazon.com Inc.", PrimaryExchange: "XNAS"},
	{Symbol: "NVDA", Name: "NVIDIA Corporation", PrimaryExchange: "XNAS"},
	{Symbol: "META", Name: "Meta Platforms Inc.", PrimaryExchange: "XNAS"},
	{Symbol: "BRK.B", Name: "Berkshire Hathaway Inc.", PrimaryExchange: "XNYS"},
	{Symbol: "JPM", Name: "JPMorgan Chase & Co.", PrimaryExchange: "XNYS"},
	{Symbol: "JNJ", Name: "Johnson & Johnson", PrimaryExchange: "XNYS"},
	{Symbol: "V", Name: "Visa Inc.", PrimaryExchange: "XNYS"},
}

// StaticBlueChips returns a copy of the fallback list.
func StaticBlueChips() []models.BlueChip {
	return append([]models.BlueChip(nil), staticBlueChips...)
}

// BlueChipService resolves the current large-cap list: cache first, then the
// ticker API behind a circuit breaker, then the static list.
type BlueChipService struct {
	tickers drepo.TickerProvider
	store   pkgcache.Service
	breaker *gobreaker.CircuitBreaker
	trips   uint32
	openFor time.Duration
	ttl     time.Duration
	limit   int
	log     *logger.Logger
	metrics drepo.Metrics
}

type BlueChipOption func(*BlueChipService)

func WithBlueChipTTL(ttl time.Duration) BlueChipOption {
	return func(s *BlueChipService) { s.ttl = ttl }
}

// WithTickerLimit sets how many listings are requested upstream before ranking.
func WithTickerLimit(n int) BlueChipOption {
	return func(s *BlueChipService) { s.limit = n }
}

// WithBreaker trips after trips consecutive failures and stays open for openFor.
func WithBreaker(trips uint32, openFor time.Duration) BlueChipOption {
	return func(s *BlueChipService) { s.trips, s.openFor = trips, openFor }
}

func WithBlueChipLogger(l *logger.Logger) BlueChipOption {
	return func(s *BlueChipService) { s.log = l.With("bluechips") }
}

func WithBlueChipMetrics(m drepo.Metrics) BlueChipOption {
	return func(s *BlueChipService) { s.metrics = m }
}

func NewBlueChipService(tickers drepo.TickerProvider, store pkgcache.Service, opts ...BlueChipOption) *BlueChipService {
	s := &BlueChipService{
		tickers: tickers,
		store:   store,
		ttl:     24 * time.Hour,
		limit:   50,
		trips:   3,
		openFor: time.Minute,
		log:     logger.Nop(),
		metrics: metrics.Nop{},
	}
	for _, o := range opts {
		o(s)
	}
	// after options: the breaker captures s.log
	s.breaker = newTickerBreaker(s.trips, s.openFor, s.log)
	return s
}

func newTickerBreaker(trips uint32, openFor time.Duration, l *logger.Logger) *gobreaker.CircuitBreaker {
	if trips == 0 {
		trips = 3
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ticker-reference",
		Timeout: openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= trips
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("circuit state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
}

// GetBlueChipStocks never fails: upstream trouble degrades to the static list,
// which is returned but not cached so the next call retries upstream.
func (s *BlueChipService) GetBlueChipStocks(ctx context.Context) []models.BlueChip {
	var cached []models.BlueChip
	if err := s.store.Get(ctx, blueChipKey, &cached); err == nil && len(cached) > 0 {
		s.metrics.RecordCacheLookup("bluechips", true)
		return cached
	} else if err != nil && !errors.Is(err, pkgcache.ErrCacheMiss) {
		s.log.Warn("blue chip cache read failed", logger.Error(err))
	}
	s.metrics.RecordCacheLookup("bluechips", false)

	list, err := s.fetch(ctx)
	if err != nil {
		s.log.Warn("ticker list unavailable, serving static blue chips", logger.Error(err))
		return StaticBlueChips()
	}
	if err := s.store.Set(ctx, blueChipKey, list, s.ttl); err != nil {
		s.log.Warn("blue chip cache write failed", logger.Error(err))
	}
	return list
}

// Symbols is GetBlueChipStocks reduced to tickers.
func (s *BlueChipService) Symbols(ctx context.Context) []string {
	list := s.GetBlueChipStocks(ctx)
	out := make([]string, len(list))
	for i, bc := range list {
		out[i] = bc.Symbol
	}
	return out
}

func (s *BlueChipService) fetch(ctx context.Context) ([]models.BlueChip, error) {
	v, err := s.breaker.Execute(func() (interface{}, error) {
		return s.tickers.ListTickers(ctx, s.limit)
	})
	if err != nil {
		return nil, err
	}
	list, _ := v.([]models.BlueChip)
	if len(list) == 0 {
		return nil, fmt.Errorf("ticker list: %w", models.ErrProviderNotFound)
	}
	ranked := append([]models.BlueChip(nil), list...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].MarketCap > ranked[j].MarketCap })
	if len(ranked) > blueChipCount {
		ranked = ranked[:blueChipCount]
	}
	return ranked, nil
}
