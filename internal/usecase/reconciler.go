package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"StockIt/internal/domain/models"
)

type ReconcileMode string

const (
	ModeImmediate ReconcileMode = "immediate"
	ModeBatched   ReconcileMode = "batched"
)

// UpdateReconciler folds live ticks into the current opportunity set. In
// immediate mode every tick is delivered at once; in batched mode each symbol
// is delivered at most once per flush window with its latest tick.
type UpdateReconciler struct {
	mode     ReconcileMode
	interval time.Duration
	deliver  func([]models.ReconciledUpdate)
	now      func() time.Time

	mu     sync.Mutex
	latest map[string]models.StockUpdate
	dirty  map[string]bool
	order  []string
	opps   map[string]*models.Opportunity

	cancel context.CancelFunc
	done   chan struct{}
}

type ReconcilerOption func(*UpdateReconciler)

func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *UpdateReconciler) { r.now = now }
}

// NewUpdateReconciler builds a reconciler that hands results to deliver.
// A non-positive interval in batched mode defaults to one second.
func NewUpdateReconciler(mode ReconcileMode, interval time.Duration, deliver func([]models.ReconciledUpdate), opts ...ReconcilerOption) *UpdateReconciler {
	if mode != ModeImmediate {
		mode = ModeBatched
	}
	if interval <= 0 {
		interval = time.Second
	}
	if deliver == nil {
		deliver = func([]models.ReconciledUpdate) {}
	}
	r := &UpdateReconciler{
		mode:     mode,
		interval: interval,
		deliver:  deliver,
		now:      time.Now,
		latest:   make(map[string]models.StockUpdate),
		dirty:    make(map[string]bool),
		opps:     make(map[string]*models.Opportunity),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetOpportunities replaces the tracked set. Prices already seen for a symbol
// are applied right away.
func (r *UpdateReconciler) SetOpportunities(opps []models.Opportunity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opps = make(map[string]*models.Opportunity, len(opps))
	for i := range opps {
		o := opps[i]
		if u, ok := r.latest[o.Symbol]; ok && u.Price > 0 {
			o.ApplyPrice(u.Price, u.Timestamp)
		}
		r.opps[o.Symbol] = &o
	}
}

// Apply records a tick. The matching opportunity is repriced immediately.
func (r *UpdateReconciler) Apply(u models.StockUpdate) {
	u.Symbol = strings.ToUpper(u.Symbol)
	if u.Symbol == "" || u.Price <= 0 {
		return
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = r.now().UTC()
	}

	r.mu.Lock()
	r.latest[u.Symbol] = u
	var snap *models.Opportunity
	if o, ok := r.opps[u.Symbol]; ok {
		o.ApplyPrice(u.Price, u.Timestamp)
		c := *o
		snap = &c
	}
	if r.mode == ModeBatched {
		if !r.dirty[u.Symbol] {
			r.dirty[u.Symbol] = true
			r.order = append(r.order, u.Symbol)
		}
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.deliver([]models.ReconciledUpdate{{Update: u, Opportunity: snap}})
}

// HandleEvent adapts Apply to the subscription listener signature.
func (r *UpdateReconciler) HandleEvent(ev models.StreamEvent) {
	if ev.Err != nil || ev.Kind == models.FrameError {
		return
	}
	r.Apply(ev.Update)
}

// Flush delivers every symbol touched since the last flush, in first-touch order.
func (r *UpdateReconciler) Flush() {
	r.mu.Lock()
	if len(r.order) == 0 {
		r.mu.Unlock()
		return
	}
	out := make([]models.ReconciledUpdate, 0, len(r.order))
	for _, sym := range r.order {
		ru := models.ReconciledUpdate{Update: r.latest[sym]}
		if o, ok := r.opps[sym]; ok {
			c := *o
			ru.Opportunity = &c
		}
		out = append(out, ru)
	}
	r.order = r.order[:0]
	r.dirty = make(map[string]bool)
	r.mu.Unlock()

	r.deliver(out)
}

// Opportunities returns a copy of the tracked set, best gain first.
func (r *UpdateReconciler) Opportunities() []models.Opportunity {
	r.mu.Lock()
	out := make([]models.Opportunity, 0, len(r.opps))
	for _, o := range r.opps {
		out = append(out, *o)
	}
	r.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PotentialGain != out[j].PotentialGain {
			return out[i].PotentialGain > out[j].PotentialGain
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Latest returns the last tick seen for symbol.
func (r *UpdateReconciler) Latest(symbol string) (models.StockUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.latest[strings.ToUpper(symbol)]
	return u, ok
}

// Start runs the flush timer in batched mode until ctx ends or Stop is called.
func (r *UpdateReconciler) Start(ctx context.Context) {
	if r.mode != ModeBatched {
		return
	}
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		t := time.NewTicker(r.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.Flush()
			}
		}
	}()
}

// Stop ends the flush timer and delivers anything still buffered.
func (r *UpdateReconciler) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	r.Flush()
}
