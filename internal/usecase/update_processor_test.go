package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockIt/internal/domain/models"
	"StockIt/pkg/metrics"
)

type recordingPublisher struct {
	mu      sync.Mutex
	updates []string
	scans   []string
	err     error
}

func (p *recordingPublisher) PublishUpdate(_ context.Context, u *models.ReconciledUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.updates = append(p.updates, u.Update.Symbol)
	return nil
}

func (p *recordingPublisher) PublishScan(_ context.Context, r *models.ScanResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.scans = append(p.scans, r.ScanID)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type memArchive struct {
	mu    sync.Mutex
	scans []*models.ScanResult
}

func (a *memArchive) Init(context.Context) error { return nil }

func (a *memArchive) StoreScan(_ context.Context, r *models.ScanResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scans = append(a.scans, r)
	return nil
}

func (a *memArchive) History(_ context.Context, symbol string, _, _ time.Time, _ int) ([]models.OpportunitySnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.OpportunitySnapshot
	for _, r := range a.scans {
		for _, o := range r.Opportunities {
			if symbol == "" || o.Symbol == symbol {
				out = append(out, models.OpportunitySnapshot{ScanID: r.ScanID, At: r.Timestamp, Opportunity: o})
			}
		}
	}
	return out, nil
}

func (a *memArchive) Health(context.Context) error { return nil }
func (a *memArchive) Close() error                 { return nil }

func TestUpdateProcessorKafkaPublishesBoth(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewUpdateProcessor(pub, nil, metrics.Nop{}, BackendKafka)

	require.NoError(t, p.Process(context.Background(), &models.ReconciledUpdate{Update: models.StockUpdate{Symbol: "AAPL"}}))
	require.NoError(t, p.RecordScan(context.Background(), &models.ScanResult{ScanID: "s1"}))

	assert.Equal(t, []string{"AAPL"}, pub.updates)
	assert.Equal(t, []string{"s1"}, pub.scans)
}

func TestUpdateProcessorClickHouseArchivesScansOnly(t *testing.T) {
	archive := &memArchive{}
	p := NewUpdateProcessor(nil, archive, metrics.Nop{}, BackendClickHouse)

	require.NoError(t, p.Process(context.Background(), &models.ReconciledUpdate{Update: models.StockUpdate{Symbol: "AAPL"}}))
	require.NoError(t, p.RecordScan(context.Background(), &models.ScanResult{
		ScanID:        "s1",
		Opportunities: []models.Opportunity{{Symbol: "AAPL", PotentialGain: 7}},
	}))

	got, err := p.History(context.Background(), "AAPL", time.Time{}, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ScanID)
}

func TestUpdateProcessorWrapsPublishError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewUpdateProcessor(&recordingPublisher{err: boom}, nil, metrics.Nop{}, BackendKafka)

	err := p.Process(context.Background(), &models.ReconciledUpdate{Update: models.StockUpdate{Symbol: "AAPL"}})
	assert.ErrorIs(t, err, boom)
	assert.Error(t, p.Process(context.Background(), nil))
}

func TestUpdateProcessorWithoutArchive(t *testing.T) {
	p := NewUpdateProcessor(nil, nil, metrics.Nop{}, "")
	assert.Equal(t, BackendNone, p.Backend())
	assert.NoError(t, p.RecordScan(context.Background(), &models.ScanResult{}))

	_, err := p.History(context.Background(), "", time.Time{}, time.Now(), 1)
	assert.ErrorIs(t, err, ErrNoArchive)
}

func TestKafkaScansHandlerStoresPayload(t *testing.T) {
	archive := &memArchive{}
	h := NewKafkaScansHandler("stockit.scans", archive, metrics.Nop{})
	assert.Equal(t, "stockit.scans", h.Topic())

	payload := []byte(`{"scan_id":"s9","opportunities":[{"symbol":"MSFT","potential_gain":6.5}],"succeeded":1,"timestamp":"2024-03-01T15:00:00Z"}`)
	require.NoError(t, h.Handle(context.Background(), payload))
	require.Len(t, archive.scans, 1)
	assert.Equal(t, "MSFT", archive.scans[0].Opportunities[0].Symbol)

	assert.Error(t, h.Handle(context.Background(), []byte("{")))
}
