package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"StockIt/internal/domain/models"
	drepo "StockIt/internal/domain/repository"
	mid "StockIt/internal/middleware"
	"StockIt/pkg/logger"
	"StockIt/pkg/metrics"
)

// OpportunityFeed keeps a set of opportunities repriced by live ticks.
// Ticks flow subscription manager -> reconciler -> pipeline -> processor.
type OpportunityFeed struct {
	manager *SubscriptionManager
	recon   *UpdateReconciler
	pipe    *mid.RealtimePipeline
	log     *logger.Logger
	metrics drepo.Metrics
	timeout time.Duration

	mu       sync.Mutex
	base     context.Context
	tracked  map[string]bool
	unlisten func()
}

type FeedOption func(*OpportunityFeed)

func WithFeedLogger(l *logger.Logger) FeedOption {
	return func(f *OpportunityFeed) { f.log = l.With("opportunity_feed") }
}

func WithFeedMetrics(m drepo.Metrics) FeedOption {
	return func(f *OpportunityFeed) { f.metrics = m }
}

// WithDeliveryTimeout bounds one reconciler delivery into the pipeline.
func WithDeliveryTimeout(d time.Duration) FeedOption {
	return func(f *OpportunityFeed) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func NewOpportunityFeed(manager *SubscriptionManager, pipe *mid.RealtimePipeline, mode ReconcileMode, interval time.Duration, opts ...FeedOption) *OpportunityFeed {
	f := &OpportunityFeed{
		manager: manager,
		pipe:    pipe,
		log:     logger.Nop(),
		metrics: metrics.Nop{},
		timeout: 5 * time.Second,
		base:    context.Background(),
		tracked: make(map[string]bool),
	}
	for _, o := range opts {
		o(f)
	}
	f.recon = NewUpdateReconciler(mode, interval, f.deliver)
	return f
}

// Start wires the listener and starts every stage. Stages stop when ctx ends
// or Teardown is called.
func (f *OpportunityFeed) Start(ctx context.Context) {
	f.mu.Lock()
	if f.unlisten != nil {
		f.mu.Unlock()
		return
	}
	f.base = context.WithoutCancel(ctx)
	f.unlisten = f.manager.AddListener(f.onEvent)
	f.mu.Unlock()

	if f.pipe != nil {
		f.pipe.Start(ctx)
	}
	f.recon.Start(ctx)
	f.manager.Start(ctx)
	f.log.Info("opportunity feed started")
}

// Load replaces the tracked opportunities and subscribes to their symbols.
// Symbols no longer tracked are unsubscribed.
func (f *OpportunityFeed) Load(opps []models.Opportunity) {
	next := make(map[string]bool, len(opps))
	symbols := make([]string, 0, len(opps))
	for i := range opps {
		opps[i].Symbol = strings.ToUpper(opps[i].Symbol)
		if !next[opps[i].Symbol] {
			next[opps[i].Symbol] = true
			symbols = append(symbols, opps[i].Symbol)
		}
	}

	f.mu.Lock()
	var dropped []string
	for sym := range f.tracked {
		if !next[sym] {
			dropped = append(dropped, sym)
		}
	}
	f.tracked = next
	f.mu.Unlock()

	f.recon.SetOpportunities(opps)
	for _, sym := range dropped {
		f.manager.Unsubscribe(sym)
	}
	f.manager.Subscribe(symbols...)
	f.log.Info("opportunities loaded", logger.Int("tracked", len(symbols)), logger.Int("dropped", len(dropped)))
}

// Snapshot returns the tracked opportunities with their latest prices.
func (f *OpportunityFeed) Snapshot() []models.Opportunity {
	return f.recon.Opportunities()
}

func (f *OpportunityFeed) Statuses() []models.SubscriptionStatus {
	return f.manager.Statuses()
}

// Teardown stops the stages in flow order so the final flush still reaches
// the processor.
func (f *OpportunityFeed) Teardown() {
	f.mu.Lock()
	unlisten := f.unlisten
	f.unlisten = nil
	f.mu.Unlock()
	if unlisten != nil {
		unlisten()
	}

	f.manager.Stop()
	f.recon.Stop()
	if f.pipe != nil {
		f.pipe.Stop()
	}
	f.log.Info("opportunity feed stopped")
}

func (f *OpportunityFeed) onEvent(ev models.StreamEvent) {
	if ev.Err != nil {
		f.metrics.RecordError("stream")
		f.log.Warn("stream event failed", logger.Symbol(ev.Symbol), logger.Error(ev.Err))
		return
	}
	f.recon.HandleEvent(ev)
}

func (f *OpportunityFeed) deliver(batch []models.ReconciledUpdate) {
	if f.pipe == nil || len(batch) == 0 {
		return
	}
	f.mu.Lock()
	base := f.base
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(base, f.timeout)
	defer cancel()
	if err := f.pipe.ProcessBatch(ctx, batch); err != nil {
		f.log.Warn("delivery failed", logger.Int("updates", len(batch)), logger.Error(err))
	}
}
