package repository

import (
	"context"
	"time"

	"StockIt/internal/domain/models"
)

// BarProvider fetches historical bars from an upstream API.
type BarProvider interface {
	GetHistoricalBars(ctx context.Context, symbol string, r Range, i Interval) ([]models.Bar, error)
}

// TickerProvider lists large-cap listings from an upstream API.
type TickerProvider interface {
	ListTickers(ctx context.Context, limit int) ([]models.BlueChip, error)
}

// BarSource is a read-through view over a BarProvider.
type BarSource interface {
	Bars(ctx context.Context, symbol string, r Range, i Interval) ([]models.Bar, error)
}

// StreamDialer opens one push connection for one symbol.
type StreamDialer interface {
	Dial(ctx context.Context, symbol string) (StreamConn, error)
}

// StreamConn is a live per-symbol connection. ReadFrame blocks until a frame
// arrives or the connection fails; frames are already decoded.
type StreamConn interface {
	ReadFrame() (models.Frame, error)
	IsOpen() bool
	Close() error
}

// Publisher ships live updates and scan snapshots to the messaging backend.
type Publisher interface {
	PublishUpdate(ctx context.Context, u *models.ReconciledUpdate) error
	PublishScan(ctx context.Context, r *models.ScanResult) error
	Close() error
}

// ScanArchive persists scan snapshots for later inspection.
type ScanArchive interface {
	Init(ctx context.Context) error
	StoreScan(ctx context.Context, r *models.ScanResult) error
	History(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.OpportunitySnapshot, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordMessageSent(backend, kind string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordCacheLookup(kind string, hit bool)
	RecordProviderRequest(outcome string)
	RecordScan(succeeded, failed int)
}
