package polygon

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"StockIt/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 14, 20, 0, 0, 0, time.UTC)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

const jitter = 300 * time.Millisecond

func newTestClient(srv *httptest.Server, sleeper *sleepRecorder) *Client {
	return NewClient(srv.URL, "test-key",
		WithSleeper(sleeper.Sleep),
		WithJitter(func(time.Duration) time.Duration { return jitter }),
		WithClock(func() time.Time { return fixedNow }),
	)
}

const aggsBody = `{
  "ticker": "AAPL",
  "status": "OK",
  "results": [
    {"t": 1718236800000, "o": 101, "h": 103, "l": 100, "c": 102, "v": 5000},
    {"t": 1718064000000, "o": 99, "h": 101, "l": 98, "c": 100, "v": 4000},
    {"t": 1718150400000, "o": "n/a", "h": 101, "l": 98, "c": 100, "v": 4000},
    {"t": 1718150400000, "o": 100, "h": 102, "l": 99, "c": 101, "v": null}
  ]
}`

func TestGetHistoricalBarsFiltersAndSorts(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, aggsBody)
	}))
	defer srv.Close()

	c := newTestClient(srv, &sleepRecorder{})
	bars, err := c.GetHistoricalBars(context.Background(), "aapl", "1mo", "1d")
	require.NoError(t, err)

	assert.Equal(t, "/v2/aggs/ticker/AAPL/range/1/day/2024-05-14/2024-06-14", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Empty(t, gotQuery.Get("apiKey"))
	assert.Equal(t, "asc", gotQuery.Get("sort"))
	assert.Equal(t, "50000", gotQuery.Get("limit"))
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Timestamp.Before(bars[1].Timestamp))
	assert.Equal(t, 100.0, bars[0].Close)
	assert.Equal(t, 102.0, bars[1].Close)
}

func TestGetHistoricalBarsRetryAfterHonoured(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, aggsBody)
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	c := newTestClient(srv, sleeper)
	bars, err := c.GetHistoricalBars(context.Background(), "AAPL", "1mo", "1d")
	require.NoError(t, err)
	assert.Len(t, bars, 2)

	assert.Equal(t, int32(2), calls.Load(), "exactly one retry")
	waits := sleeper.Waits()
	require.Len(t, waits, 1)
	assert.GreaterOrEqual(t, waits[0], 2*time.Second+jitter)
}

func TestRateLimitWithoutHeaderUsesBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, aggsBody)
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	c := newTestClient(srv, sleeper)
	_, err := c.GetHistoricalBars(context.Background(), "AAPL", "1mo", "1d")
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{time.Second + jitter, 2*time.Second + jitter}, sleeper.Waits())
}

func TestInBodyRateLimitIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = io.WriteString(w, `{"status":"ERROR","error":"You've exceeded the maximum requests per minute"}`)
			return
		}
		_, _ = io.WriteString(w, aggsBody)
	}))
	defer srv.Close()

	c := newTestClient(srv, &sleepRecorder{})
	bars, err := c.GetHistoricalBars(context.Background(), "AAPL", "1mo", "1d")
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransientExhaustionFailsSoft(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	c := newTestClient(srv, sleeper)
	bars, err := c.GetHistoricalBars(context.Background(), "AAPL", "1mo", "1d")
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.NotNil(t, bars)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.Waits())
}

func TestNotFoundAndEmptyResultsAreEmpty(t *testing.T) {
	for name, handler := range map[string]http.HandlerFunc{
		"404": func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
		"empty": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"status":"OK","resultsCount":0,"results":[]}`)
		},
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			sleeper := &sleepRecorder{}
			bars, err := newTestClient(srv, sleeper).GetHistoricalBars(context.Background(), "ZZZZ", "5d", "1h")
			require.NoError(t, err)
			assert.Empty(t, bars)
			assert.Empty(t, sleeper.Waits())
		})
	}
}

func TestAuthErrorIsFatal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"status":"ERROR","error":"Unknown API Key"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, &sleepRecorder{}).GetHistoricalBars(context.Background(), "AAPL", "1mo", "1d")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrProviderFatal))
	assert.Equal(t, int32(1), calls.Load())

	var perr *models.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusUnauthorized, perr.Status)
	assert.Contains(t, err.Error(), "Unknown API Key")
}

func TestUnsupportedRangeIsFatal(t *testing.T) {
	c := NewClient("http://unused", "")
	_, err := c.GetHistoricalBars(context.Background(), "AAPL", "10y", "1d")
	assert.ErrorIs(t, err, models.ErrProviderFatal)
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(srv.URL, "", WithSleeper(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))
	_, err := c.GetHistoricalBars(ctx, "AAPL", "1mo", "1d")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListTickers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/reference/tickers", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, `{"status":"OK","results":[
			{"ticker":"AAPL","name":"Apple Inc.","market_cap":3.0e12,"primary_exchange":"XNAS"},
			{"ticker":"KO","name":"Coca-Cola","primary_exchange":"XNYS"}
		]}`)
	}))
	defer srv.Close()

	got, err := newTestClient(srv, &sleepRecorder{}).ListTickers(context.Background(), 25)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.BlueChip{Symbol: "AAPL", Name: "Apple Inc.", MarketCap: 3.0e12, PrimaryExchange: "XNAS"}, got[0])
	assert.Zero(t, got[1].MarketCap)
}

func TestListTickersReturnsRateLimitAfterExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, &sleepRecorder{}).ListTickers(context.Background(), 10)
	assert.ErrorIs(t, err, models.ErrProviderRateLimited)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, parseRetryAfter("2", fixedNow))
	assert.Equal(t, time.Duration(0), parseRetryAfter("", fixedNow))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", fixedNow))
	date := fixedNow.Add(5 * time.Second).Format(http.TimeFormat)
	assert.Equal(t, 5*time.Second, parseRetryAfter(date, fixedNow))
}

func TestBackoffIsCapped(t *testing.T) {
	c := NewClient("http://unused", "", WithRetry(6, time.Second, 10*time.Second))
	var got []string
	for attempt := 1; attempt <= 5; attempt++ {
		got = append(got, c.backoff(attempt).String())
	}
	assert.Equal(t, "1s 2s 4s 8s 10s", strings.Join(got, " "))
}
