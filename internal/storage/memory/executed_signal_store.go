package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"signal-engine/internal/domain"
	"signal-engine/internal/storage"
)

// ExecutedSignalStore is an in-memory implementation of storage.ExecutedSignalStore.
type ExecutedSignalStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ExecutedSignalRecord // keyed by full signal key
}

// NewExecutedSignalStore creates a new in-memory executed signal store.
func NewExecutedSignalStore() *ExecutedSignalStore {
	return &ExecutedSignalStore{
		data: make(map[string]*domain.ExecutedSignalRecord),
	}
}

// Upsert writes a ledger entry, replacing any entry with the same key.
func (s *ExecutedSignalStore) Upsert(_ context.Context, r *domain.ExecutedSignalRecord) error {
	if r == nil || r.Key == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *r
	s.data[r.Key] = &copy
	return nil
}

// GetSince retrieves entries executed at or after the cutoff.
func (s *ExecutedSignalStore) GetSince(_ context.Context, cutoff time.Time) ([]*domain.ExecutedSignalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExecutedSignalRecord
	for _, r := range s.data {
		if r.ExecutedAt.Before(cutoff) {
			continue
		}
		copy := *r
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ExecutedAt.Equal(result[j].ExecutedAt) {
			return result[i].ExecutedAt.Before(result[j].ExecutedAt)
		}
		return result[i].Key < result[j].Key
	})

	return result, nil
}

// DeleteBefore removes entries executed before the cutoff. Returns rows removed.
func (s *ExecutedSignalStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for k, r := range s.data {
		if r.ExecutedAt.Before(cutoff) {
			delete(s.data, k)
			removed++
		}
	}
	return removed, nil
}

var _ storage.ExecutedSignalStore = (*ExecutedSignalStore)(nil)
