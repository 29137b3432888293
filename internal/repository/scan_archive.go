package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"StockIt/internal/domain/models"
	domrepo "StockIt/internal/domain/repository"
)

const DefaultSnapshotTable = "opportunity_snapshots"

// ClickHouseScanArchive stores one row per opportunity per scan.
type ClickHouseScanArchive struct {
	db        *sql.DB
	table     string
	chunkSize int
}

func NewClickHouseScanArchive(db *sql.DB, table string, chunkSize int) *ClickHouseScanArchive {
	if table == "" {
		table = DefaultSnapshotTable
	}
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &ClickHouseScanArchive{db: db, table: table, chunkSize: chunkSize}
}

// Schema returns the DDL for the snapshot table.
func (s *ClickHouseScanArchive) Schema() []string {
	return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    scan_id String,
    at DateTime64(3, 'UTC'),
    symbol LowCardinality(String),
    current_price Float64,
    target_price Float64,
    potential_gain Float64,
    confidence Float64,
    volatility Float64,
    market_correlation Float64
) ENGINE = MergeTree
ORDER BY (symbol, at)
TTL toDateTime(at) + INTERVAL 90 DAY`, s.table)}
}

func (s *ClickHouseScanArchive) Init(ctx context.Context) error {
	for _, stmt := range s.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create %s: %w", s.table, err)
		}
	}
	return nil
}

// StoreScan writes every opportunity of r with multi-row inserts.
func (s *ClickHouseScanArchive) StoreScan(ctx context.Context, r *models.ScanResult) error {
	if r == nil || len(r.Opportunities) == 0 {
		return nil
	}
	at := r.Timestamp.UTC()
	opps := r.Opportunities
	for start := 0; start < len(opps); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(opps) {
			end = len(opps)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, o := range opps[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				r.ScanID,
				at,
				o.Symbol,
				o.CurrentPrice,
				o.TargetPrice,
				o.PotentialGain,
				o.Confidence,
				o.Volatility,
				o.MarketCorrelation,
			)
		}
		q := fmt.Sprintf("INSERT INTO %s (scan_id, at, symbol, current_price, target_price, potential_gain, confidence, volatility, market_correlation) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert snapshots: %w", err)
		}
	}
	return nil
}

// History returns archived rows newest first. An empty symbol matches all.
func (s *ClickHouseScanArchive) History(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.OpportunitySnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	where := []string{"at >= ?", "at <= ?"}
	args := []interface{}{from.UTC(), to.UTC()}
	if symbol != "" {
		where = append([]string{"symbol = ?"}, where...)
		args = append([]interface{}{strings.ToUpper(symbol)}, args...)
	}
	args = append(args, limit)
	q := fmt.Sprintf(`SELECT scan_id, at, symbol, current_price, target_price, potential_gain, confidence, volatility, market_correlation
FROM %s WHERE %s ORDER BY at DESC LIMIT ?`, s.table, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.OpportunitySnapshot
	for rows.Next() {
		var snap models.OpportunitySnapshot
		if err := rows.Scan(
			&snap.ScanID,
			&snap.At,
			&snap.Symbol,
			&snap.CurrentPrice,
			&snap.TargetPrice,
			&snap.PotentialGain,
			&snap.Confidence,
			&snap.Volatility,
			&snap.MarketCorrelation,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.UpdatedAt = snap.At
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *ClickHouseScanArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *ClickHouseScanArchive) Close() error { return nil }

var _ domrepo.ScanArchive = (*ClickHouseScanArchive)(nil)
