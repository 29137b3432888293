package usecase

import (
	"context"
	"fmt"

	"StockIt/pkg/logger"
	"StockIt/pkg/queue"
)

const ScanJobType = "scan.bluechips"

// ScanJobPayload is the queued request for a background scan. An empty
// symbol list scans the current blue chips.
type ScanJobPayload struct {
	Symbols []string `json:"symbols,omitempty"`
	MinGain float64  `json:"min_gain"`
	Track   bool     `json:"track"`
}

// ScanJob runs a bulk scan off the request path and records the result.
type ScanJob struct {
	bulk  *BulkScanner
	chips *BlueChipService
	proc  *UpdateProcessor
	feed  *OpportunityFeed
	log   *logger.Logger
}

func NewScanJob(bulk *BulkScanner, chips *BlueChipService, proc *UpdateProcessor, feed *OpportunityFeed, l *logger.Logger) *ScanJob {
	if l == nil {
		l = logger.Nop()
	}
	return &ScanJob{bulk: bulk, chips: chips, proc: proc, feed: feed, log: l.With("scan_job")}
}

func (j *ScanJob) Name() string { return "blue chip scan" }
func (j *ScanJob) Type() string { return ScanJobType }

func (j *ScanJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[ScanJobPayload](payload)
	if err != nil {
		return err
	}
	symbols := p.Symbols
	if len(symbols) == 0 {
		symbols = j.chips.Symbols(ctx)
	}
	minGain := p.MinGain
	if minGain <= 0 {
		minGain = DefaultMinGain
	}

	res, err := j.bulk.Run(ctx, symbols, minGain, nil)
	if err != nil {
		return fmt.Errorf("scan job: %w", err)
	}
	j.log.Info("background scan finished",
		logger.String("scan_id", res.ScanID),
		logger.Int("found", len(res.Opportunities)),
		logger.Int("failed", res.Failed),
	)
	if j.proc != nil {
		if err := j.proc.RecordScan(ctx, &res); err != nil {
			return err
		}
	}
	if p.Track && j.feed != nil {
		j.feed.Load(res.Opportunities)
	}
	return nil
}

var _ queue.Job = (*ScanJob)(nil)
