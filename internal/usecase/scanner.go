package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"StockIt/internal/domain/models"
	drepo "StockIt/internal/domain/repository"
	"StockIt/internal/services/scoring"
	"StockIt/pkg/logger"
	"StockIt/pkg/metrics"
	"StockIt/pkg/util"
)

// minConfidence is exclusive: an opportunity must score strictly above it.
const minConfidence = 0.5

// DefaultMinGain is the gain threshold, in percent, used when callers give none.
const DefaultMinGain = 5.0

// OpportunityScanner scores per-symbol price history into ranked opportunities.
type OpportunityScanner struct {
	log     *logger.Logger
	metrics drepo.Metrics
	now     func() time.Time
	newID   func() string
}

type ScannerOption func(*OpportunityScanner)

func WithScannerClock(now func() time.Time) ScannerOption {
	return func(s *OpportunityScanner) { s.now = now }
}

func WithScanIDs(newID func() string) ScannerOption {
	return func(s *OpportunityScanner) { s.newID = newID }
}

func NewOpportunityScanner(l *logger.Logger, m drepo.Metrics, opts ...ScannerOption) *OpportunityScanner {
	if l == nil {
		l = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	s := &OpportunityScanner{
		log:     l.With("scanner"),
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Scan returns the opportunities that clear minGain and the confidence floor,
// best gain first.
func (s *OpportunityScanner) Scan(ctx context.Context, symbols []string, data map[string]models.HistoricalSeries, minGain float64) []models.Opportunity {
	return s.Evaluate(ctx, symbols, data, minGain).Opportunities
}

// Evaluate is Scan with partial-success accounting. Each symbol is scored in
// isolation; a failing symbol is logged, counted and left out.
func (s *OpportunityScanner) Evaluate(ctx context.Context, symbols []string, data map[string]models.HistoricalSeries, minGain float64) models.ScanResult {
	res := models.ScanResult{
		ScanID:        s.newID(),
		Opportunities: []models.Opportunity{},
		Timestamp:     s.now().UTC(),
	}
	data = upperKeys(data)
	scored := make([]models.Opportunity, 0, len(symbols))
	for _, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		opp, err := s.scoreSafely(sym, data[sym])
		if err != nil {
			s.log.Warn("skipping symbol", logger.Symbol(sym), logger.Error(err))
			if res.Failures == nil {
				res.Failures = make(map[string]string)
			}
			res.Failures[sym] = err.Error()
			res.Failed++
			continue
		}
		res.Succeeded++
		scored = append(scored, opp)
	}
	res.Opportunities = FilterAndRank(scored, minGain)
	s.metrics.RecordScan(res.Succeeded, res.Failed)
	return res
}

// upperKeys returns data keyed by upper-cased symbol. An already upper-cased
// key wins over a differently cased duplicate.
func upperKeys(data map[string]models.HistoricalSeries) map[string]models.HistoricalSeries {
	out := make(map[string]models.HistoricalSeries, len(data))
	for k, v := range data {
		up := strings.ToUpper(strings.TrimSpace(k))
		if _, taken := out[up]; taken && k != up {
			continue
		}
		out[up] = v
	}
	return out
}

func (s *OpportunityScanner) scoreSafely(symbol string, series models.HistoricalSeries) (opp models.Opportunity, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scoring panicked: %v", r)
		}
	}()
	return s.score(symbol, series)
}

func (s *OpportunityScanner) score(symbol string, series models.HistoricalSeries) (models.Opportunity, error) {
	p := series.Prices
	if len(p) == 0 {
		return models.Opportunity{}, fmt.Errorf("%w: no price history", models.ErrScoringInputInvalid)
	}
	for _, x := range p {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return models.Opportunity{}, fmt.Errorf("%w: non-finite price", models.ErrScoringInputInvalid)
		}
	}
	current := p[len(p)-1]
	if current <= 0 {
		return models.Opportunity{}, fmt.Errorf("%w: non-positive price %v", models.ErrScoringInputInvalid, current)
	}

	vol := scoring.Volatility(p)
	corr := scoring.Correlation(p, series.MarketPrices)
	// PotentialGain must agree with the rounded TargetPrice.
	target := util.Round(scoring.PredictedPrice(p), 2)

	return models.Opportunity{
		Symbol:            symbol,
		CurrentPrice:      current,
		TargetPrice:       target,
		PotentialGain:     models.GainPercent(current, target),
		Confidence:        util.Round(scoring.Confidence(vol, corr, p), 2),
		Volatility:        util.Round(vol, 3),
		MarketCorrelation: util.Round(corr, 3),
		UpdatedAt:         s.now().UTC(),
	}, nil
}

// FilterAndRank keeps opportunities with gain >= minGain and confidence above
// the floor, ordered by gain descending then symbol.
func FilterAndRank(opps []models.Opportunity, minGain float64) []models.Opportunity {
	out := make([]models.Opportunity, 0, len(opps))
	for _, o := range opps {
		if o.PotentialGain >= minGain && o.Confidence > minConfidence {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PotentialGain != out[j].PotentialGain {
			return out[i].PotentialGain > out[j].PotentialGain
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}
