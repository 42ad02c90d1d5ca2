package memory

import (
	"context"
	"sync"

	"orb-strategy-lab/internal/storage"
)

type snapshotKey struct {
	runID         string
	lastTimestamp int64
}

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu     sync.RWMutex
	data   map[snapshotKey][]byte
	latest map[string]int64 // run_id -> highest last_timestamp
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data:   make(map[snapshotKey][]byte),
		latest: make(map[string]int64),
	}
}

// Put adds a snapshot taken at last_timestamp. Returns ErrDuplicateKey
// if (run_id, last_timestamp) exists.
func (s *SnapshotStore) Put(_ context.Context, runID string, lastTimestamp int64, data []byte) error {
	if runID == "" || len(data) == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := snapshotKey{runID, lastTimestamp}
	if _, exists := s.data[k]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[k] = append([]byte(nil), data...)
	if cur, ok := s.latest[runID]; !ok || lastTimestamp > cur {
		s.latest[runID] = lastTimestamp
	}
	return nil
}

// Get retrieves the snapshot taken at last_timestamp. Returns ErrNotFound if not exists.
func (s *SnapshotStore) Get(_ context.Context, runID string, lastTimestamp int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.data[snapshotKey{runID, lastTimestamp}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// GetLatest retrieves the most recent snapshot for a run. Returns ErrNotFound if none exists.
func (s *SnapshotStore) GetLatest(_ context.Context, runID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.latest[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	data := s.data[snapshotKey{runID, ts}]
	return append([]byte(nil), data...), nil
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
