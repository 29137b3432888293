package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockIt/internal/domain/models"
)

var archivedAt = time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

func TestStoreScanChunksRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	archive := NewClickHouseScanArchive(db, "", 2)
	res := &models.ScanResult{
		ScanID:    "scan-1",
		Timestamp: archivedAt,
		Opportunities: []models.Opportunity{
			{Symbol: "AAPL", CurrentPrice: 100, TargetPrice: 110, PotentialGain: 10, Confidence: 0.7},
			{Symbol: "MSFT", CurrentPrice: 400, TargetPrice: 430, PotentialGain: 7.5, Confidence: 0.6},
			{Symbol: "NVDA", CurrentPrice: 800, TargetPrice: 880, PotentialGain: 10, Confidence: 0.8},
		},
	}

	insert := regexp.QuoteMeta("INSERT INTO opportunity_snapshots (scan_id, at, symbol")
	mock.ExpectExec(insert).
		WithArgs("scan-1", archivedAt, "AAPL", 100.0, 110.0, 10.0, 0.7, 0.0, 0.0,
			"scan-1", archivedAt, "MSFT", 400.0, 430.0, 7.5, 0.6, 0.0, 0.0).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(insert).
		WithArgs("scan-1", archivedAt, "NVDA", 800.0, 880.0, 10.0, 0.8, 0.0, 0.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, archive.StoreScan(context.Background(), res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreScanSkipsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, NewClickHouseScanArchive(db, "", 0).StoreScan(context.Background(), &models.ScanResult{ScanID: "x"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryFiltersBySymbol(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	from, to := archivedAt.Add(-time.Hour), archivedAt
	cols := []string{"scan_id", "at", "symbol", "current_price", "target_price", "potential_gain", "confidence", "volatility", "market_correlation"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM opportunity_snapshots WHERE symbol = ? AND at >= ? AND at <= ? ORDER BY at DESC LIMIT ?")).
		WithArgs("AAPL", from, to, 5).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("scan-2", archivedAt, "AAPL", 101.0, 110.0, 8.91, 0.66, 0.012, 0.5).
			AddRow("scan-1", archivedAt.Add(-30*time.Minute), "AAPL", 100.0, 110.0, 10.0, 0.7, 0.011, 0.4))

	got, err := NewClickHouseScanArchive(db, "", 0).History(context.Background(), "aapl", from, to, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "scan-2", got[0].ScanID)
	assert.Equal(t, 8.91, got[0].PotentialGain)
	assert.Equal(t, archivedAt, got[0].UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitCreatesTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS scans_test")).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewClickHouseScanArchive(db, "scans_test", 0).Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
