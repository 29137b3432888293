package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"StockIt/internal/domain/models"
	domrepo "StockIt/internal/domain/repository"
	"StockIt/pkg/metrics"
	"StockIt/pkg/util"
)

// Proc is the downstream the pipeline feeds.
type Proc interface {
	Process(ctx context.Context, u *models.ReconciledUpdate) error
}

// RealtimePipeline sits between the reconciler and the publisher. It
// validates and throttles per symbol, and buffers updates the downstream
// rejected so a short outage does not lose them.
type RealtimePipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan *models.ReconciledUpdate
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time
	now      func() time.Time
	sleep    util.Sleeper
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS caps accepted updates per symbol per second; zero disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets how many rejected updates are held for redelivery.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *RealtimePipeline) { p.now = now }
}

func WithPipelineSleeper(s util.Sleeper) PipelineOption {
	return func(p *RealtimePipeline) { p.sleep = s }
}

func NewRealtimePipeline(proc Proc, m domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	if m == nil {
		m = metrics.Nop{}
	}
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  m,
		maxRPS:   20,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
		sleep:    util.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.ReconciledUpdate, p.bufSize)
	return p
}

// Start launches redelivery of buffered updates.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case u := <-p.bufCh:
				if err := p.proc.Process(ctx, u); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					if p.sleep(ctx, backoff) != nil {
						return
					}
					select {
					case p.bufCh <- u:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
					continue
				}
				backoff = 50 * time.Millisecond
			}
		}
	}()
}

// Stop ends redelivery and waits for the loop to exit.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh
}

// Buffered reports how many updates wait for redelivery.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }

// Process validates, throttles and forwards one update. Throttled updates are
// dropped silently; downstream failures are buffered and reported.
func (p *RealtimePipeline) Process(ctx context.Context, u *models.ReconciledUpdate) error {
	start := p.now()
	if err := validateUpdate(u); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(u.Update.Symbol, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, u); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- u:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", p.now().Sub(start).Seconds())
	return nil
}

// ProcessBatch runs Process over a reconciler delivery and returns the first error.
func (p *RealtimePipeline) ProcessBatch(ctx context.Context, batch []models.ReconciledUpdate) error {
	var first error
	for i := range batch {
		if err := p.Process(ctx, &batch[i]); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func validateUpdate(u *models.ReconciledUpdate) error {
	if u == nil {
		return fmt.Errorf("update nil")
	}
	if u.Update.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if u.Update.Timestamp.IsZero() {
		return fmt.Errorf("timestamp missing")
	}
	if u.Update.Price <= 0 || math.IsNaN(u.Update.Price) || math.IsInf(u.Update.Price, 0) {
		return fmt.Errorf("price invalid: %v", u.Update.Price)
	}
	if u.Update.Volume < 0 {
		return fmt.Errorf("negative volume")
	}
	return nil
}

func (p *RealtimePipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[symbol]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
