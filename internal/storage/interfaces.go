package storage

import (
	"context"

	"orb-strategy-lab/internal/domain"
)

// BarStore provides access to OHLC bar storage.
type BarStore interface {
	// InsertBulk adds multiple bars. Fails entire batch on duplicate (symbol, tf, timestamp_ms).
	InsertBulk(ctx context.Context, bars []*domain.Bar) error

	// GetBySymbolTF retrieves all bars for a symbol/timeframe, ordered by timestamp ASC.
	GetBySymbolTF(ctx context.Context, symbol, tf string) ([]*domain.Bar, error)

	// GetByTimeRange retrieves bars for a symbol/timeframe within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, symbol, tf string, start, end int64) ([]*domain.Bar, error)
}

// TradeRecordStore provides access to trade_records storage.
type TradeRecordStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// GetBySymbol retrieves all trades for a symbol, ordered by entry_time_ms ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.TradeRecord, error)

	// GetByBucket retrieves all trades admitted under a bucket key, ordered by entry_time_ms ASC.
	GetByBucket(ctx context.Context, bucketKey string) ([]*domain.TradeRecord, error)
}

// SnapshotStore provides access to run_snapshots storage.
type SnapshotStore interface {
	// Put adds a snapshot taken at last_timestamp. Returns ErrDuplicateKey
	// if (run_id, last_timestamp) exists.
	Put(ctx context.Context, runID string, lastTimestamp int64, data []byte) error

	// Get retrieves the snapshot taken at last_timestamp. Returns ErrNotFound if not exists.
	Get(ctx context.Context, runID string, lastTimestamp int64) ([]byte, error)

	// GetLatest retrieves the most recent snapshot for a run. Returns ErrNotFound if none exists.
	GetLatest(ctx context.Context, runID string) ([]byte, error)
}
