package repository

import (
	"context"

	"StockIt/internal/domain/models"
	domrepo "StockIt/internal/domain/repository"
	pkgkafka "StockIt/pkg/kafka"
)

// KafkaPublisher ships live updates and scan snapshots to their topics,
// keyed by symbol and scan id respectively.
type KafkaPublisher struct {
	producer     *pkgkafka.Producer
	updatesTopic string
	scansTopic   string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, updatesTopic, scansTopic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, updatesTopic: updatesTopic, scansTopic: scansTopic}
}

func (p *KafkaPublisher) PublishUpdate(ctx context.Context, u *models.ReconciledUpdate) error {
	return p.producer.Publish(ctx, p.updatesTopic, []byte(u.Update.Symbol), u)
}

// PublishUpdates sends a reconciler delivery in one write.
func (p *KafkaPublisher) PublishUpdates(ctx context.Context, batch []models.ReconciledUpdate) error {
	if len(batch) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(batch))
	for i := range batch {
		msgs[i] = pkgkafka.Message{Key: []byte(batch[i].Update.Symbol), Value: batch[i]}
	}
	return p.producer.PublishBatch(ctx, p.updatesTopic, msgs)
}

func (p *KafkaPublisher) PublishScan(ctx context.Context, r *models.ScanResult) error {
	return p.producer.Publish(ctx, p.scansTopic, []byte(r.ScanID), r)
}

// PublishMessage lets the log collector reuse the producer.
func (p *KafkaPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.Publisher = (*KafkaPublisher)(nil)
