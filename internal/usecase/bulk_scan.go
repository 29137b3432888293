package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"StockIt/internal/domain/models"
	drepo "StockIt/internal/domain/repository"
	"StockIt/internal/services/features"
	"StockIt/pkg/logger"
	"StockIt/pkg/util"
)

// BulkScanner runs a scan over many symbols in small sequential chunks so the
// upstream sees a fixed admission window rather than a burst.
type BulkScanner struct {
	source     drepo.BarSource
	scanner    *OpportunityScanner
	chunkSize  int
	chunkDelay time.Duration
	market     string
	rng        drepo.Range
	interval   drepo.Interval
	sleep      util.Sleeper
	log        *logger.Logger
}

type BulkOption func(*BulkScanner)

func WithChunking(size int, delay time.Duration) BulkOption {
	return func(b *BulkScanner) {
		if size > 0 {
			b.chunkSize = size
		}
		if delay >= 0 {
			b.chunkDelay = delay
		}
	}
}

// WithMarketSymbol sets the benchmark used for correlation; empty disables it.
func WithMarketSymbol(symbol string) BulkOption {
	return func(b *BulkScanner) { b.market = strings.ToUpper(symbol) }
}

func WithTimeframe(r drepo.Range, i drepo.Interval) BulkOption {
	return func(b *BulkScanner) { b.rng, b.interval = r, i }
}

func WithBulkSleeper(s util.Sleeper) BulkOption {
	return func(b *BulkScanner) { b.sleep = s }
}

func WithBulkLogger(l *logger.Logger) BulkOption {
	return func(b *BulkScanner) { b.log = l.With("bulk_scan") }
}

func NewBulkScanner(source drepo.BarSource, scanner *OpportunityScanner, opts ...BulkOption) *BulkScanner {
	b := &BulkScanner{
		source:     source,
		scanner:    scanner,
		chunkSize:  3,
		chunkDelay: 2 * time.Second,
		market:     "SPY",
		rng:        drepo.DefaultRange(),
		interval:   drepo.DefaultInterval(),
		sleep:      util.Sleep,
		log:        logger.Nop(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Run scans symbols over the configured timeframe. See RunWithTimeframe.
func (b *BulkScanner) Run(ctx context.Context, symbols []string, minGain float64, onProgress func(models.ScanProgress)) (models.ScanResult, error) {
	return b.RunWithTimeframe(ctx, symbols, minGain, b.rng, b.interval, onProgress)
}

// RunWithTimeframe scans symbols chunk by chunk, pausing between chunks, and
// reports the merged result after every chunk. An empty range or interval
// falls back to the configured one. On cancellation the merged result so far
// is returned together with the context error.
func (b *BulkScanner) RunWithTimeframe(ctx context.Context, symbols []string, minGain float64, rng drepo.Range, interval drepo.Interval, onProgress func(models.ScanProgress)) (models.ScanResult, error) {
	if rng == "" {
		rng = b.rng
	}
	if interval == "" {
		interval = b.interval
	}
	symbols = dedupSymbols(symbols)
	chunks := chunkSymbols(symbols, b.chunkSize)

	merged := newScanMerge(b.scanner.newID(), b.scanner.now().UTC())
	for i, chunk := range chunks {
		if i > 0 {
			if err := b.sleep(ctx, b.chunkDelay); err != nil {
				return merged.result(minGain), err
			}
		}
		if err := ctx.Err(); err != nil {
			return merged.result(minGain), err
		}

		data, fetchFailures := b.fetchChunk(ctx, chunk, rng, interval)
		res := b.scanner.Evaluate(ctx, chunk, data, minGain)
		if err := ctx.Err(); err != nil {
			return merged.result(minGain), err
		}
		merged.add(chunk, res, fetchFailures)

		b.log.Debug("chunk scanned",
			logger.Int("chunk", i+1),
			logger.Int("chunks", len(chunks)),
			logger.Int("found", len(res.Opportunities)),
		)
		if onProgress != nil {
			onProgress(models.ScanProgress{Chunk: i + 1, Chunks: len(chunks), Result: merged.result(minGain)})
		}
	}
	return merged.result(minGain), ctx.Err()
}

// fetchChunk loads every symbol of the chunk plus the benchmark concurrently.
// Symbols whose fetch errors are reported separately from the scored data.
func (b *BulkScanner) fetchChunk(ctx context.Context, chunk []string, rng drepo.Range, interval drepo.Interval) (map[string]models.HistoricalSeries, map[string]string) {
	type fetched struct {
		bars []models.Bar
		err  error
	}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]fetched, len(chunk)+1)
	)
	load := func(sym string) {
		defer wg.Done()
		bars, err := b.source.Bars(ctx, sym, rng, interval)
		mu.Lock()
		results[sym] = fetched{bars: bars, err: err}
		mu.Unlock()
	}

	want := chunk
	if b.market != "" {
		want = append([]string{b.market}, chunk...)
	}
	seen := make(map[string]bool, len(want))
	for _, sym := range want {
		if seen[sym] {
			continue
		}
		seen[sym] = true
		wg.Add(1)
		go load(sym)
	}
	wg.Wait()

	var market []models.Bar
	if b.market != "" {
		m := results[b.market]
		if m.err != nil {
			b.log.Warn("benchmark unavailable, correlation disabled for chunk", logger.Symbol(b.market), logger.Error(m.err))
		}
		market = m.bars
	}

	data := make(map[string]models.HistoricalSeries, len(chunk))
	var failures map[string]string
	for _, sym := range chunk {
		r := results[sym]
		if r.err != nil {
			if failures == nil {
				failures = make(map[string]string)
			}
			failures[sym] = r.err.Error()
			continue
		}
		if len(r.bars) == 0 {
			continue
		}
		if sym == b.market {
			data[sym] = features.BuildSeries(r.bars, nil)
			continue
		}
		data[sym] = features.BuildSeries(r.bars, market)
	}
	return data, failures
}

// scanMerge accumulates chunk results, keeping the latest outcome per symbol.
type scanMerge struct {
	id       string
	at       time.Time
	opps     map[string]models.Opportunity
	failures map[string]string
	ok       map[string]bool
}

func newScanMerge(id string, at time.Time) *scanMerge {
	return &scanMerge{
		id:       id,
		at:       at,
		opps:     make(map[string]models.Opportunity),
		failures: make(map[string]string),
		ok:       make(map[string]bool),
	}
}

// add folds one fully evaluated chunk in. Fetch errors replace the scanner's
// generic missing-data message for the same symbol.
func (m *scanMerge) add(chunk []string, res models.ScanResult, fetchFailures map[string]string) {
	for _, sym := range chunk {
		delete(m.opps, sym)
		msg, failed := res.Failures[sym]
		if !failed {
			m.ok[sym] = true
			delete(m.failures, sym)
			continue
		}
		if fetchMsg, ok := fetchFailures[sym]; ok {
			msg = fetchMsg
		}
		m.failures[sym] = msg
		delete(m.ok, sym)
	}
	for _, o := range res.Opportunities {
		m.opps[o.Symbol] = o
	}
}

func (m *scanMerge) result(minGain float64) models.ScanResult {
	opps := make([]models.Opportunity, 0, len(m.opps))
	for _, o := range m.opps {
		opps = append(opps, o)
	}
	res := models.ScanResult{
		ScanID:        m.id,
		Opportunities: FilterAndRank(opps, minGain),
		Succeeded:     len(m.ok),
		Failed:        len(m.failures),
		Timestamp:     m.at,
	}
	if len(m.failures) > 0 {
		res.Failures = make(map[string]string, len(m.failures))
		for k, v := range m.failures {
			res.Failures[k] = v
		}
	}
	return res
}

func dedupSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func chunkSymbols(symbols []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var chunks [][]string
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		chunks = append(chunks, symbols[start:end])
	}
	return chunks
}
