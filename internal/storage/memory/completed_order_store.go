package memory

import (
	"context"
	"sort"
	"sync"

	"signal-engine/internal/domain"
	"signal-engine/internal/storage"
)

// CompletedOrderStore is an in-memory implementation of storage.CompletedOrderStore.
type CompletedOrderStore struct {
	mu   sync.RWMutex
	data map[string]*domain.CompletedOrderRecord // keyed by record_id
}

// NewCompletedOrderStore creates a new in-memory completed order store.
func NewCompletedOrderStore() *CompletedOrderStore {
	return &CompletedOrderStore{
		data: make(map[string]*domain.CompletedOrderRecord),
	}
}

// Insert adds a new record. Returns ErrDuplicateKey if record_id exists.
func (s *CompletedOrderStore) Insert(_ context.Context, r *domain.CompletedOrderRecord) error {
	if r == nil || r.RecordID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RecordID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data[r.RecordID] = &copy
	return nil
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *CompletedOrderStore) InsertBulk(_ context.Context, records []*domain.CompletedOrderRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(records))

	for _, r := range records {
		if r == nil || r.RecordID == "" {
			return storage.ErrInvalidInput
		}

		if _, exists := s.data[r.RecordID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.RecordID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.RecordID] = struct{}{}
	}

	for _, r := range records {
		copy := *r
		s.data[r.RecordID] = &copy
	}

	return nil
}

// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
func (s *CompletedOrderStore) GetByID(_ context.Context, recordID string) (*domain.CompletedOrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[recordID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *r
	return &copy, nil
}

// GetBySymbol retrieves all records for a symbol, ordered by exit time ASC.
func (s *CompletedOrderStore) GetBySymbol(_ context.Context, symbol string) ([]*domain.CompletedOrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CompletedOrderRecord
	for _, r := range s.data {
		if r.Symbol == symbol {
			copy := *r
			result = append(result, &copy)
		}
	}

	sortByExitAsc(result)
	return result, nil
}

// GetRecent retrieves the most recent records by exit time, newest first.
func (s *CompletedOrderStore) GetRecent(_ context.Context, limit int) ([]*domain.CompletedOrderRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.CompletedOrderRecord, 0, len(s.data))
	for _, r := range s.data {
		copy := *r
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ExitAt.Equal(result[j].ExitAt) {
			return result[i].ExitAt.After(result[j].ExitAt)
		}
		return result[i].OrderID > result[j].OrderID
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetAll retrieves all records, ordered by exit time ASC.
func (s *CompletedOrderStore) GetAll(_ context.Context) ([]*domain.CompletedOrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.CompletedOrderRecord, 0, len(s.data))
	for _, r := range s.data {
		copy := *r
		result = append(result, &copy)
	}

	sortByExitAsc(result)
	return result, nil
}

// sortByExitAsc orders records by exit time ASC, breaking ties by order id.
func sortByExitAsc(records []*domain.CompletedOrderRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].ExitAt.Equal(records[j].ExitAt) {
			return records[i].ExitAt.Before(records[j].ExitAt)
		}
		return records[i].OrderID < records[j].OrderID
	})
}

var _ storage.CompletedOrderStore = (*CompletedOrderStore)(nil)
