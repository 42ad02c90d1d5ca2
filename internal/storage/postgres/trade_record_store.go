package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"orb-strategy-lab/internal/domain"
	"orb-strategy-lab/internal/storage"
)

// TradeRecordStore implements storage.TradeRecordStore using PostgreSQL.
type TradeRecordStore struct {
	pool *Pool
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(pool *Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

const tradeRecordColumns = `
	trade_id, symbol, side,
	entry_time_ms, entry_px, exit_time_ms, exit_px, exit_reason,
	qty, pnl_pips,
	bucket_key, ev_lcb, session, spread_band, rv_band, p_tp
`

const insertTradeRecordQuery = `
	INSERT INTO trade_records (
		trade_id, symbol, side,
		entry_time_ms, entry_px, exit_time_ms, exit_px, exit_reason,
		qty, pnl_pips,
		bucket_key, ev_lcb, session, spread_band, rv_band, p_tp
	) VALUES (
		$1, $2, $3,
		$4, $5, $6, $7, $8,
		$9, $10,
		$11, $12, $13, $14, $15, $16
	)
`

func tradeRecordArgs(t *domain.TradeRecord) []any {
	return []any{
		t.TradeID, t.Symbol, string(t.Side),
		t.EntryTimeMs, t.EntryPx, t.ExitTimeMs, t.ExitPx, t.ExitReason,
		t.Qty, t.PnlPips,
		t.BucketKey, t.EVLCB, string(t.Session), t.SpreadBand, t.RVBand, t.PTP,
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeRecordStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	_, err := s.pool.Exec(ctx, insertTradeRecordQuery, tradeRecordArgs(t)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeRecordStore) InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range trades {
		_, err := tx.Exec(ctx, insertTradeRecordQuery, tradeRecordArgs(t)...)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade record in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeRecordStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	query := `
		SELECT ` + tradeRecordColumns + `
		FROM trade_records
		WHERE trade_id = $1
	`

	row := s.pool.QueryRow(ctx, query, tradeID)
	t, err := scanTradeRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade record by id: %w", err)
	}
	return t, nil
}

// GetBySymbol retrieves all trades for a symbol, ordered by entry_time_ms ASC.
func (s *TradeRecordStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.TradeRecord, error) {
	query := `
		SELECT ` + tradeRecordColumns + `
		FROM trade_records
		WHERE symbol = $1
		ORDER BY entry_time_ms ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("get trade records by symbol: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// GetByBucket retrieves all trades admitted under a bucket key, ordered by entry_time_ms ASC.
func (s *TradeRecordStore) GetByBucket(ctx context.Context, bucketKey string) ([]*domain.TradeRecord, error) {
	query := `
		SELECT ` + tradeRecordColumns + `
		FROM trade_records
		WHERE bucket_key = $1
		ORDER BY entry_time_ms ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, bucketKey)
	if err != nil {
		return nil, fmt.Errorf("get trade records by bucket: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// scanTradeRecord scans a single row into a TradeRecord.
func scanTradeRecord(row pgx.Row) (*domain.TradeRecord, error) {
	var t domain.TradeRecord
	var side, session string

	err := row.Scan(
		&t.TradeID, &t.Symbol, &side,
		&t.EntryTimeMs, &t.EntryPx, &t.ExitTimeMs, &t.ExitPx, &t.ExitReason,
		&t.Qty, &t.PnlPips,
		&t.BucketKey, &t.EVLCB, &session, &t.SpreadBand, &t.RVBand, &t.PTP,
	)
	if err != nil {
		return nil, err
	}

	t.Side = domain.Side(side)
	t.Session = domain.Session(session)
	return &t, nil
}

// scanTradeRecords scans multiple rows into a slice of TradeRecord.
func scanTradeRecords(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord

	for rows.Next() {
		t, err := scanTradeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade record rows: %w", err)
	}

	return trades, nil
}
