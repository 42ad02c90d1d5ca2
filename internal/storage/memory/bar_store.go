package memory

import (
	"context"
	"sort"
	"sync"

	"orb-strategy-lab/internal/domain"
	"orb-strategy-lab/internal/storage"
)

type barKey struct {
	symbol      string
	tf          string
	timestampMs int64
}

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[barKey]*domain.Bar
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		data: make(map[barKey]*domain.Bar),
	}
}

// InsertBulk adds multiple bars. Fails entire batch on duplicate (symbol, tf, timestamp_ms).
func (s *BarStore) InsertBulk(_ context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[barKey]struct{}, len(bars))

	// First pass: check for duplicates (existing + intra-batch)
	for _, b := range bars {
		if b == nil || b.Symbol == "" || b.TimestampMs <= 0 {
			return storage.ErrInvalidInput
		}
		k := barKey{b.Symbol, b.TF, b.TimestampMs}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	// Second pass: insert all
	for _, b := range bars {
		copy := *b
		s.data[barKey{b.Symbol, b.TF, b.TimestampMs}] = &copy
	}

	return nil
}

// GetBySymbolTF retrieves all bars for a symbol/timeframe, ordered by timestamp ASC.
func (s *BarStore) GetBySymbolTF(_ context.Context, symbol, tf string) ([]*domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Bar
	for k, b := range s.data {
		if k.symbol == symbol && k.tf == tf {
			copy := *b
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// GetByTimeRange retrieves bars for a symbol/timeframe within [start, end] (inclusive).
func (s *BarStore) GetByTimeRange(_ context.Context, symbol, tf string, start, end int64) ([]*domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Bar
	for k, b := range s.data {
		if k.symbol == symbol && k.tf == tf && k.timestampMs >= start && k.timestampMs <= end {
			copy := *b
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

var _ storage.BarStore = (*BarStore)(nil)
