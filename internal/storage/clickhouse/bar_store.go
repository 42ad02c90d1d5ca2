package clickhouse

import (
	"context"
	"fmt"

	"orb-strategy-lab/internal/domain"
	"orb-strategy-lab/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// InsertBulk adds multiple bars. Fails entire batch on duplicate (symbol, tf, timestamp_ms).
func (s *BarStore) InsertBulk(ctx context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		symbol      string
		tf          string
		timestampMs int64
	}
	seen := make(map[key]struct{})
	for _, b := range bars {
		k := key{b.Symbol, b.TF, b.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows. ClickHouse MergeTree
	// does not enforce uniqueness at insert time.
	for _, b := range bars {
		exists, err := s.exists(ctx, b.Symbol, b.TF, b.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bars (
			symbol, tf, timestamp_ms, open, high, low, close, volume, spread, pip
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(
			b.Symbol, b.TF, uint64(b.TimestampMs),
			b.Open, b.High, b.Low, b.Close, b.Volume, b.Spread, b.Pip,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySymbolTF retrieves all bars for a symbol/timeframe, ordered by timestamp ASC.
func (s *BarStore) GetBySymbolTF(ctx context.Context, symbol, tf string) ([]*domain.Bar, error) {
	query := `
		SELECT symbol, tf, timestamp_ms, open, high, low, close, volume, spread, pip
		FROM bars
		WHERE symbol = ? AND tf = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, tf)
	if err != nil {
		return nil, fmt.Errorf("query by symbol/tf: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// GetByTimeRange retrieves bars for a symbol/timeframe within [start, end] (inclusive).
func (s *BarStore) GetByTimeRange(ctx context.Context, symbol, tf string, start, end int64) ([]*domain.Bar, error) {
	query := `
		SELECT symbol, tf, timestamp_ms, open, high, low, close, volume, spread, pip
		FROM bars
		WHERE symbol = ? AND tf = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, tf, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// exists checks if a bar with the given key exists.
func (s *BarStore) exists(ctx context.Context, symbol, tf string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM bars
		WHERE symbol = ? AND tf = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, symbol, tf, uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanBars scans multiple rows.
func scanBars(rows chRows) ([]*domain.Bar, error) {
	var bars []*domain.Bar

	for rows.Next() {
		var b domain.Bar
		var timestampMs uint64

		err := rows.Scan(
			&b.Symbol, &b.TF, &timestampMs,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Spread, &b.Pip,
		)
		if err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}

		b.TimestampMs = int64(timestampMs)
		bars = append(bars, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}

	return bars, nil
}
