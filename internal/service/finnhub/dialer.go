// Package finnhub opens one websocket per symbol against a Finnhub-style
// push API and decodes its frames.
package finnhub

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"StockIt/internal/domain/models"
	drepo "StockIt/internal/domain/repository"
	"StockIt/pkg/logger"
)

// Dialer implements repository.StreamDialer.
type Dialer struct {
	urlTemplate  string
	token        string
	subscribe    bool
	pingInterval time.Duration
	ws           *websocket.Dialer
	now          func() time.Time
	log          *logger.Logger
}

type DialerOption func(*Dialer)

// WithSubscribeMessage controls whether a subscribe message is written after connect.
func WithSubscribeMessage(on bool) DialerOption {
	return func(d *Dialer) { d.subscribe = on }
}

func WithHandshakeTimeout(t time.Duration) DialerOption {
	return func(d *Dialer) { d.ws.HandshakeTimeout = t }
}

// WithPingInterval sets the keepalive period; zero disables pings.
func WithPingInterval(t time.Duration) DialerOption {
	return func(d *Dialer) { d.pingInterval = t }
}

func WithDialerClock(now func() time.Time) DialerOption {
	return func(d *Dialer) { d.now = now }
}

func WithDialerLogger(l *logger.Logger) DialerOption {
	return func(d *Dialer) { d.log = l.With("finnhub") }
}

// NewDialer builds a dialer. urlTemplate may contain {symbol} and {token}.
func NewDialer(urlTemplate, token string, opts ...DialerOption) *Dialer {
	d := &Dialer{
		urlTemplate:  urlTemplate,
		token:        token,
		subscribe:    true,
		pingInterval: 30 * time.Second,
		ws: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: 10 * time.Second,
		},
		now: time.Now,
		log: logger.Nop(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Dialer) endpoint(symbol string) string {
	r := strings.NewReplacer(
		"{symbol}", url.QueryEscape(symbol),
		"{token}", url.QueryEscape(d.token),
	)
	return r.Replace(d.urlTemplate)
}

// Dial connects one symbol. Handshake failures wrap ErrSubscriptionConnectFailed.
func (d *Dialer) Dial(ctx context.Context, symbol string) (drepo.StreamConn, error) {
	ws, _, err := d.ws.DialContext(ctx, d.endpoint(symbol), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrSubscriptionConnectFailed, symbol, err)
	}
	if d.subscribe {
		msg := map[string]string{"type": "subscribe", "symbol": symbol}
		if err := ws.WriteJSON(msg); err != nil {
			_ = ws.Close()
			return nil, fmt.Errorf("%w: subscribe %s: %v", models.ErrSubscriptionConnectFailed, symbol, err)
		}
	}
	c := &conn{
		ws:     ws,
		symbol: symbol,
		done:   make(chan struct{}),
		now:    d.now,
		log:    d.log,
	}
	c.open.Store(true)
	if d.pingInterval > 0 {
		go c.keepalive(d.pingInterval)
	}
	d.log.Debug("stream connected", logger.Symbol(symbol))
	return c, nil
}

type conn struct {
	ws        *websocket.Conn
	symbol    string
	open      atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	now       func() time.Time
	log       *logger.Logger
}

// ReadFrame returns the next decodable frame, skipping malformed ones.
// Updates that omit symbol or time inherit the connection's symbol and the
// receive time.
func (c *conn) ReadFrame() (models.Frame, error) {
	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			c.open.Store(false)
			return models.Frame{}, fmt.Errorf("read %s: %w", c.symbol, err)
		}
		f, err := DecodeFrame(b)
		if err != nil {
			c.log.Debug("dropping malformed frame", logger.Symbol(c.symbol), logger.Error(err))
			continue
		}
		for i := range f.Updates {
			if f.Updates[i].Symbol == "" {
				f.Updates[i].Symbol = c.symbol
			}
			if f.Updates[i].Timestamp.IsZero() {
				f.Updates[i].Timestamp = c.now().UTC()
			}
		}
		return f, nil
	}
}

func (c *conn) IsOpen() bool { return c.open.Load() }

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

func (c *conn) keepalive(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(every/2)); err != nil {
				c.log.Debug("ping failed", logger.Symbol(c.symbol), logger.Error(err))
				return
			}
		}
	}
}
