package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"StockIt/internal/domain/models"
	"StockIt/internal/domain/repository"
	xhttp "StockIt/pkg/http"
	applogger "StockIt/pkg/logger"
	"StockIt/pkg/metrics"
	"StockIt/pkg/util"
)

const maxBodyBytes = 16 << 20

// Option configures Client.
type Option func(*Client)

// Client talks to the Polygon REST API. Every call is bounded by MaxAttempts;
// rate limits and transient failures are retried with exponential backoff.
type Client struct {
	baseURL     string
	apiKey      string
	http        *xhttp.Client
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxJitter   time.Duration

	sleep  util.Sleeper
	jitter func(limit time.Duration) time.Duration
	now    func() time.Time

	logger  *applogger.Logger
	metrics repository.Metrics
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		maxAttempts: 3,
		baseDelay:   time.Second,
		maxDelay:    10 * time.Second,
		maxJitter:   time.Second,
		sleep:       util.Sleep,
		jitter:      randomJitter,
		now:         time.Now,
		logger:      applogger.Nop(),
		metrics:     metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient(xhttp.WithTimeout(10 * time.Second))
	}
	return c
}

func WithHTTPClient(hc *xhttp.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets the attempt budget and the backoff curve.
func WithRetry(maxAttempts int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.maxAttempts = maxAttempts
		c.baseDelay = baseDelay
		c.maxDelay = maxDelay
	}
}

// WithMaxJitter bounds the random delay added to rate-limit waits.
func WithMaxJitter(d time.Duration) Option {
	return func(c *Client) { c.maxJitter = d }
}

func WithSleeper(s util.Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

func WithJitter(f func(limit time.Duration) time.Duration) Option {
	return func(c *Client) { c.jitter = f }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m repository.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(limit)))
}

// backoff returns baseDelay * 2^(attempt-1), capped at maxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.maxDelay {
			return c.maxDelay
		}
	}
	if d > c.maxDelay {
		return c.maxDelay
	}
	return d
}

// envelope is the status wrapper every Polygon response carries.
type envelope struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// get performs one logical GET with retries and decodes the body into dest.
// The returned error is ctx.Err() or a *models.ProviderError.
func (c *Client) get(ctx context.Context, op string, opts *xhttp.RequestOptions, dest interface{}) error {
	var lastErr *models.ProviderError

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		start := time.Now()
		body, err := c.attempt(ctx, opts)
		c.metrics.RecordLatency("provider_"+op, time.Since(start).Seconds())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err == nil {
			if err = c.decode(body, dest); err == nil {
				c.metrics.RecordProviderRequest("ok")
				return nil
			}
		}

		var perr *models.ProviderError
		if !errors.As(err, &perr) {
			perr = &models.ProviderError{Kind: models.ErrProviderTransient, Err: err}
		}
		c.metrics.RecordProviderRequest(outcome(perr.Kind))
		if !retryable(perr.Kind) {
			return perr
		}
		lastErr = perr
		if attempt == c.maxAttempts {
			break
		}

		wait := c.backoff(attempt)
		if errors.Is(perr, models.ErrProviderRateLimited) {
			if perr.RetryAfter > wait {
				wait = perr.RetryAfter
			}
			wait += c.jitter(c.maxJitter)
		}
		c.logger.Warn("provider request failed, retrying",
			applogger.String("op", op),
			applogger.Int("attempt", attempt),
			applogger.Duration("wait_ms", wait),
			applogger.Error(perr),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

// attempt issues a single HTTP request and classifies the outcome.
func (c *Client) attempt(ctx context.Context, opts *xhttp.RequestOptions) ([]byte, error) {
	resp, err := c.http.SendRequest(ctx, opts)
	if err != nil {
		return nil, &models.ProviderError{Kind: models.ErrProviderTransient, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &models.ProviderError{Kind: models.ErrProviderTransient, Status: resp.StatusCode, Err: err}
	}

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return body, nil
	case code == http.StatusNotFound:
		return nil, &models.ProviderError{Kind: models.ErrProviderNotFound, Status: code}
	case code == http.StatusTooManyRequests:
		return nil, &models.ProviderError{
			Kind:       models.ErrProviderRateLimited,
			Status:     code,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
		}
	case code == http.StatusRequestTimeout || code >= 500:
		return nil, &models.ProviderError{Kind: models.ErrProviderTransient, Status: code, Err: bodyError(body)}
	default:
		return nil, &models.ProviderError{Kind: models.ErrProviderFatal, Status: code, Err: bodyError(body)}
	}
}

// decode checks the in-body status before decoding; Polygon reports some
// throttling as a 200 with status ERROR.
func (c *Client) decode(body []byte, dest interface{}) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &models.ProviderError{Kind: models.ErrProviderFatal, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if strings.EqualFold(env.Status, "ERROR") || strings.EqualFold(env.Status, "NOT_AUTHORIZED") {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		kind := models.ErrProviderFatal
		if strings.Contains(strings.ToLower(msg), "exceeded") {
			kind = models.ErrProviderRateLimited
		}
		return &models.ProviderError{Kind: kind, Err: errors.New(msg)}
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return &models.ProviderError{Kind: models.ErrProviderFatal, Err: fmt.Errorf("decode body: %w", err)}
	}
	return nil
}

func (c *Client) request(path string, query map[string][]string) *xhttp.RequestOptions {
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}
	return &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + path,
		Headers:     headers,
		QueryParams: query,
	}
}

func retryable(kind error) bool {
	return kind == models.ErrProviderTransient || kind == models.ErrProviderRateLimited
}

func outcome(kind error) string {
	switch kind {
	case models.ErrProviderRateLimited:
		return "rate_limited"
	case models.ErrProviderNotFound:
		return "not_found"
	case models.ErrProviderFatal:
		return "fatal"
	default:
		return "transient"
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func bodyError(body []byte) error {
	var env envelope
	if json.Unmarshal(body, &env) == nil {
		if env.Error != "" {
			return errors.New(env.Error)
		}
		if env.Message != "" {
			return errors.New(env.Message)
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return errors.New(strings.TrimSpace(string(body)))
}
