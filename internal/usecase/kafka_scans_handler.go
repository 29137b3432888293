package usecase

import (
	"context"
	"encoding/json"
	"time"

	"StockIt/internal/domain/models"
	domrepo "StockIt/internal/domain/repository"
	pkgkafka "StockIt/pkg/kafka"
)

// KafkaScansHandler drains the scans topic into the archive.
type KafkaScansHandler struct {
	topic   string
	archive domrepo.ScanArchive
	metrics domrepo.Metrics
}

func NewKafkaScansHandler(topic string, archive domrepo.ScanArchive, m domrepo.Metrics) *KafkaScansHandler {
	return &KafkaScansHandler{topic: topic, archive: archive, metrics: m}
}

func (h *KafkaScansHandler) Topic() string { return h.topic }

func (h *KafkaScansHandler) Handle(ctx context.Context, b []byte) error {
	var r models.ScanResult
	if err := json.Unmarshal(b, &r); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if !r.Timestamp.IsZero() {
		h.metrics.RecordLatency("scan_e2e_seconds", time.Since(r.Timestamp).Seconds())
	}

	start := time.Now()
	err := h.archive.StoreScan(ctx, &r)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent(BackendClickHouse, "scan")
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaScansHandler)(nil)
