package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"StockIt/internal/domain/models"
	drepo "StockIt/internal/domain/repository"
	"StockIt/pkg/logger"
	"StockIt/pkg/metrics"
	"StockIt/pkg/util"
)

type subscription struct {
	symbol    string
	state     models.ConnectionState
	attempts  int
	conn      drepo.StreamConn
	lastPrice float64
	ctx       context.Context
	cancel    context.CancelFunc
}

// SubscriptionManager keeps at most one live stream per symbol. New symbols
// go to a pending set that a single worker drains in batches; dropped
// connections are redialed after a fixed delay until the attempt limit.
type SubscriptionManager struct {
	dialer         drepo.StreamDialer
	batchSize      int
	batchDelay     time.Duration
	reconnectDelay time.Duration
	maxAttempts    int
	sleep          util.Sleeper
	log            *logger.Logger
	metrics        drepo.Metrics

	mu        sync.Mutex
	subs      map[string]*subscription
	pending   []string
	listeners map[int]func(models.StreamEvent)
	nextID    int
	ctx       context.Context
	cancel    context.CancelFunc
	stopped   bool

	wake chan struct{}
	wg   sync.WaitGroup
}

type ManagerOption func(*SubscriptionManager)

func WithBatching(size int, delay time.Duration) ManagerOption {
	return func(m *SubscriptionManager) {
		if size > 0 {
			m.batchSize = size
		}
		m.batchDelay = delay
	}
}

func WithReconnect(maxAttempts int, delay time.Duration) ManagerOption {
	return func(m *SubscriptionManager) {
		if maxAttempts > 0 {
			m.maxAttempts = maxAttempts
		}
		m.reconnectDelay = delay
	}
}

func WithManagerSleeper(s util.Sleeper) ManagerOption {
	return func(m *SubscriptionManager) { m.sleep = s }
}

func WithManagerLogger(l *logger.Logger) ManagerOption {
	return func(m *SubscriptionManager) { m.log = l.With("subscriptions") }
}

func WithManagerMetrics(mt drepo.Metrics) ManagerOption {
	return func(m *SubscriptionManager) { m.metrics = mt }
}

func NewSubscriptionManager(dialer drepo.StreamDialer, opts ...ManagerOption) *SubscriptionManager {
	m := &SubscriptionManager{
		dialer:         dialer,
		batchSize:      10,
		batchDelay:     time.Second,
		reconnectDelay: 5 * time.Second,
		maxAttempts:    5,
		sleep:          util.Sleep,
		log:            logger.Nop(),
		metrics:        metrics.Nop{},
		subs:           make(map[string]*subscription),
		listeners:      make(map[int]func(models.StreamEvent)),
		wake:           make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start runs the drain worker until ctx ends or Stop is called. Symbols
// subscribed before Start are drained once it runs.
func (m *SubscriptionManager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil || m.stopped {
		m.mu.Unlock()
		return
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	for _, s := range m.subs {
		s.ctx, s.cancel = context.WithCancel(m.ctx)
	}
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run()
}

// Stop ends the worker, closes every connection and waits for readers to exit.
func (m *SubscriptionManager) Stop() {
	m.mu.Lock()
	m.stopped = true
	if m.cancel != nil {
		m.cancel()
	}
	var conns []drepo.StreamConn
	for _, s := range m.subs {
		if s.conn != nil {
			conns = append(conns, s.conn)
		}
	}
	m.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	m.wg.Wait()
}

// Subscribe queues symbols for connection. Symbols already tracked are ignored.
func (m *SubscriptionManager) Subscribe(symbols ...string) {
	m.mu.Lock()
	added := 0
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if _, ok := m.subs[sym]; ok {
			continue
		}
		s := &subscription{symbol: sym, state: models.StateDisconnected}
		if m.ctx != nil {
			s.ctx, s.cancel = context.WithCancel(m.ctx)
		}
		m.subs[sym] = s
		m.pending = append(m.pending, sym)
		added++
	}
	m.mu.Unlock()

	if added > 0 {
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
}

// Unsubscribe drops the symbol and closes its connection.
func (m *SubscriptionManager) Unsubscribe(symbol string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	m.mu.Lock()
	s := m.removeLocked(symbol)
	m.mu.Unlock()
	if s != nil && s.conn != nil {
		_ = s.conn.Close()
	}
}

// removeLocked forgets the symbol entirely and cancels its pending waits.
func (m *SubscriptionManager) removeLocked(symbol string) *subscription {
	s, ok := m.subs[symbol]
	if !ok {
		return nil
	}
	delete(m.subs, symbol)
	m.pending = without(m.pending, symbol)
	if s.cancel != nil {
		s.cancel()
	}
	s.state = models.StateDisconnected
	return s
}

// ConnectionStatus is CONNECTED exactly when the transport reports open.
func (m *SubscriptionManager) ConnectionStatus(symbol string) models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[strings.ToUpper(symbol)]
	if !ok {
		return models.StateDisconnected
	}
	return statusOf(s)
}

func statusOf(s *subscription) models.ConnectionState {
	if s.conn != nil && s.conn.IsOpen() {
		return models.StateConnected
	}
	if s.state == models.StateConnected {
		return models.StateDisconnected
	}
	return s.state
}

// Statuses lists every tracked subscription by symbol.
func (m *SubscriptionManager) Statuses() []models.SubscriptionStatus {
	m.mu.Lock()
	out := make([]models.SubscriptionStatus, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, models.SubscriptionStatus{
			Symbol:            s.symbol,
			State:             statusOf(s),
			ReconnectAttempts: s.attempts,
		})
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// AddListener registers fn for every stream event. The returned func removes it.
func (m *SubscriptionManager) AddListener(fn func(models.StreamEvent)) (remove func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *SubscriptionManager) emit(ev models.StreamEvent) {
	m.mu.Lock()
	fns := make([]func(models.StreamEvent), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (m *SubscriptionManager) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.wake:
			m.drain()
		}
	}
}

// drain processes the pending set batch by batch until it is empty. Symbols
// of a batch with any failed dial stay pending and are retried next cycle.
func (m *SubscriptionManager) drain() {
	for {
		m.mu.Lock()
		snapshot := append([]string(nil), m.pending...)
		m.mu.Unlock()
		if len(snapshot) == 0 {
			return
		}

		for i, batch := range chunkSymbols(snapshot, m.batchSize) {
			if i > 0 {
				if err := m.sleep(m.ctx, m.batchDelay); err != nil {
					return
				}
			}
			if m.connectBatch(batch) {
				m.mu.Lock()
				for _, sym := range batch {
					m.pending = without(m.pending, sym)
				}
				m.mu.Unlock()
			}
		}

		m.mu.Lock()
		left := len(m.pending)
		m.mu.Unlock()
		if left == 0 {
			return
		}
		if err := m.sleep(m.ctx, m.batchDelay); err != nil {
			return
		}
	}
}

// connectBatch dials every disconnected symbol of the batch concurrently and
// reports whether all of them succeeded.
func (m *SubscriptionManager) connectBatch(batch []string) bool {
	type target struct {
		sub *subscription
		ctx context.Context
	}
	m.mu.Lock()
	var targets []target
	for _, sym := range batch {
		s, ok := m.subs[sym]
		if !ok || s.state != models.StateDisconnected {
			continue
		}
		s.state = models.StateConnecting
		targets = append(targets, target{sub: s, ctx: s.ctx})
	}
	m.mu.Unlock()

	type outcome struct {
		sub  *subscription
		conn drepo.StreamConn
		err  error
	}
	results := make([]outcome, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t target) {
			defer wg.Done()
			conn, err := m.dialer.Dial(t.ctx, t.sub.symbol)
			results[i] = outcome{sub: t.sub, conn: conn, err: err}
		}(i, t)
	}
	wg.Wait()

	ok := true
	for _, r := range results {
		if r.err != nil {
			ok = false
			m.metrics.RecordError("stream_connect")
			m.log.Warn("stream connect failed", logger.Symbol(r.sub.symbol), logger.Error(r.err))
			m.failConnect(r.sub, r.err)
			continue
		}
		m.attach(r.sub, r.conn)
	}
	return ok
}

// failConnect counts a failed initial dial against the attempt limit.
func (m *SubscriptionManager) failConnect(s *subscription, cause error) {
	m.mu.Lock()
	if m.subs[s.symbol] != s {
		m.mu.Unlock()
		return
	}
	s.attempts++
	s.state = models.StateDisconnected
	exhausted := s.attempts >= m.maxAttempts
	if exhausted {
		m.removeLocked(s.symbol)
	}
	m.mu.Unlock()
	if exhausted {
		m.giveUp(s.symbol, cause)
	}
}

// attach installs a fresh connection and starts its reader. A connection that
// arrives after the symbol was dropped or the manager stopped is closed.
func (m *SubscriptionManager) attach(s *subscription, conn drepo.StreamConn) {
	m.mu.Lock()
	if m.stopped || m.subs[s.symbol] != s {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.state = models.StateConnected
	s.attempts = 0
	m.wg.Add(1)
	m.mu.Unlock()

	m.log.Info("stream connected", logger.Symbol(s.symbol))
	go m.read(s, conn)
}

func (m *SubscriptionManager) read(s *subscription, conn drepo.StreamConn) {
	defer m.wg.Done()
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			m.log.Debug("stream closed", logger.Symbol(s.symbol), logger.Error(err))
			break
		}
		m.dispatch(s, f)
	}
	_ = conn.Close()
	m.reconnect(s, conn)
}

func (m *SubscriptionManager) dispatch(s *subscription, f models.Frame) {
	if f.Kind == models.FrameError {
		m.metrics.RecordError("stream_frame")
		m.emit(models.StreamEvent{Kind: f.Kind, Symbol: s.symbol, Err: errors.New(f.Message)})
		return
	}
	for _, u := range f.Updates {
		if u.Symbol != s.symbol {
			continue
		}
		m.mu.Lock()
		prev := s.lastPrice
		s.lastPrice = u.Price
		m.mu.Unlock()
		if !u.HasChange && prev > 0 {
			u.Change = u.Price - prev
			u.ChangePercent = util.Round(u.Change/prev*100, 2)
		}
		m.metrics.RecordLastPrice(u.Symbol, u.Price)
		m.emit(models.StreamEvent{Kind: f.Kind, Symbol: s.symbol, Update: u})
	}
}

// reconnect redials after a fixed delay, at most maxAttempts times in a row.
func (m *SubscriptionManager) reconnect(closed *subscription, conn drepo.StreamConn) {
	s := closed
	for {
		m.mu.Lock()
		if m.stopped || m.subs[s.symbol] != s || (s.conn != nil && s.conn != conn) {
			m.mu.Unlock()
			return
		}
		s.conn = nil
		if s.attempts >= m.maxAttempts {
			m.removeLocked(s.symbol)
			m.mu.Unlock()
			m.giveUp(s.symbol, models.ErrSubscriptionConnectFailed)
			return
		}
		s.attempts++
		s.state = models.StateReconnecting
		ctx := s.ctx
		attempt := s.attempts
		m.mu.Unlock()

		m.log.Info("stream reconnecting", logger.Symbol(s.symbol), logger.Int("attempt", attempt))
		if err := m.sleep(ctx, m.reconnectDelay); err != nil {
			return
		}
		next, err := m.dialer.Dial(ctx, s.symbol)
		if err != nil {
			m.metrics.RecordError("stream_reconnect")
			m.log.Warn("stream reconnect failed", logger.Symbol(s.symbol), logger.Error(err))
			continue
		}
		m.attach(s, next)
		return
	}
}

func (m *SubscriptionManager) giveUp(symbol string, cause error) {
	m.log.Error("stream abandoned", logger.Symbol(symbol), logger.Int("attempts", m.maxAttempts), logger.Error(cause))
	m.emit(models.StreamEvent{
		Kind:   models.FrameError,
		Symbol: symbol,
		Err:    fmt.Errorf("%w: %s: %v", models.ErrSubscriptionMaxRetries, symbol, cause),
	})
}

func without(list []string, sym string) []string {
	out := list[:0]
	for _, s := range list {
		if s != sym {
			out = append(out, s)
		}
	}
	return out
}
