package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StockIt/internal/domain/models"
	drepo "StockIt/internal/domain/repository"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
	BackendNone       = "none"
)

var ErrNoArchive = errors.New("scan archive not configured")

// UpdateProcessor routes reconciled updates and finished scans to the
// configured backend. Live updates are only published; the archive keeps scans.
type UpdateProcessor struct {
	pub     drepo.Publisher
	archive drepo.ScanArchive
	metrics drepo.Metrics
	backend string
}

func NewUpdateProcessor(pub drepo.Publisher, archive drepo.ScanArchive, m drepo.Metrics, backend string) *UpdateProcessor {
	if backend == "" {
		backend = BackendNone
	}
	return &UpdateProcessor{pub: pub, archive: archive, metrics: m, backend: backend}
}

func (p *UpdateProcessor) Backend() string { return p.backend }

func (p *UpdateProcessor) Process(ctx context.Context, u *models.ReconciledUpdate) error {
	if u == nil {
		return fmt.Errorf("update is nil")
	}
	if p.backend != BackendKafka {
		return nil
	}

	start := time.Now()
	if err := p.pub.PublishUpdate(ctx, u); err != nil {
		p.metrics.RecordError("publish_update")
		return fmt.Errorf("publish update: %w", err)
	}
	p.metrics.RecordMessageSent(p.backend, "update")
	p.metrics.RecordLatency("publish_update", time.Since(start).Seconds())
	return nil
}

// RecordScan hands a finished scan to the backend.
func (p *UpdateProcessor) RecordScan(ctx context.Context, r *models.ScanResult) error {
	if r == nil {
		return fmt.Errorf("scan is nil")
	}

	start := time.Now()
	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.PublishScan(ctx, r)
	case BackendClickHouse:
		err = p.archive.StoreScan(ctx, r)
	case BackendNone:
		return nil
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		p.metrics.RecordError("record_scan")
		return fmt.Errorf("record scan: %w", err)
	}
	p.metrics.RecordMessageSent(p.backend, "scan")
	p.metrics.RecordLatency("record_scan", time.Since(start).Seconds())
	return nil
}

// History reads archived snapshots; only the clickhouse backend has one.
func (p *UpdateProcessor) History(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.OpportunitySnapshot, error) {
	if p.archive == nil {
		return nil, ErrNoArchive
	}
	return p.archive.History(ctx, symbol, from, to, limit)
}

func (p *UpdateProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.archive != nil {
		_ = p.archive.Close()
	}
}
