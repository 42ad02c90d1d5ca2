package postgres

import (
	"context"
	"fmt"

	"orb-strategy-lab/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
// Snapshots are append-only; "latest" is resolved by last_timestamp.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Put adds a snapshot taken at last_timestamp. Returns ErrDuplicateKey
// if (run_id, last_timestamp) exists.
func (s *SnapshotStore) Put(ctx context.Context, runID string, lastTimestamp int64, data []byte) error {
	if runID == "" || len(data) == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO run_snapshots (run_id, last_timestamp, snapshot)
		VALUES ($1, $2, $3)
	`

	_, err := s.pool.Exec(ctx, query, runID, lastTimestamp, data)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Get retrieves the snapshot taken at last_timestamp. Returns ErrNotFound if not exists.
func (s *SnapshotStore) Get(ctx context.Context, runID string, lastTimestamp int64) ([]byte, error) {
	query := `
		SELECT snapshot FROM run_snapshots
		WHERE run_id = $1 AND last_timestamp = $2
	`

	var data []byte
	err := s.pool.QueryRow(ctx, query, runID, lastTimestamp).Scan(&data)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return data, nil
}

// GetLatest retrieves the most recent snapshot for a run. Returns ErrNotFound if none exists.
func (s *SnapshotStore) GetLatest(ctx context.Context, runID string) ([]byte, error) {
	query := `
		SELECT snapshot FROM run_snapshots
		WHERE run_id = $1
		ORDER BY last_timestamp DESC
		LIMIT 1
	`

	var data []byte
	err := s.pool.QueryRow(ctx, query, runID).Scan(&data)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return data, nil
}
