package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	xhttp "StockIt/pkg/http"
	"StockIt/pkg/util"
)

const defaultTimeout = 30 * time.Second

// HTTPServiceBase is the shared JSON-over-HTTP plumbing for model services.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
	sleep   util.Sleeper
}

// NewHTTPServiceBase builds a client rooted at baseURL. A non-positive timeout
// falls back to 30s.
func NewHTTPServiceBase(baseURL string, timeout time.Duration) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPServiceBase{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		sleep:   util.Sleep,
	}
}

// PostJSON posts payload to path under baseURL and decodes the JSON reply into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("model service client not configured")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry retries PostJSON up to attempts times with a linear pause.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}, attempts int) error {
	if attempts <= 1 {
		return b.PostJSON(ctx, path, payload, dest)
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = b.PostJSON(ctx, path, payload, dest); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		if serr := b.sleep(ctx, time.Duration(i)*50*time.Millisecond); serr != nil {
			return serr
		}
	}
	return err
}
