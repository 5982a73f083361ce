package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"signal-engine/internal/domain"
	"signal-engine/internal/storage"
)

// QuoteArchive is an in-memory implementation of storage.QuoteArchive.
type QuoteArchive struct {
	mu   sync.RWMutex
	data map[string][]*domain.Quote // keyed by symbol, append order
}

// NewQuoteArchive creates a new in-memory quote archive.
func NewQuoteArchive() *QuoteArchive {
	return &QuoteArchive{
		data: make(map[string][]*domain.Quote),
	}
}

// InsertBulk appends quote samples. Duplicates are the archive's concern, not the caller's.
func (s *QuoteArchive) InsertBulk(_ context.Context, quotes []*domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range quotes {
		if q == nil || q.Symbol == "" {
			return storage.ErrInvalidInput
		}
		copy := *q
		s.data[q.Symbol] = append(s.data[q.Symbol], &copy)
	}
	return nil
}

// GetByTimeRange retrieves samples for a symbol within [start, end], ordered by time ASC.
func (s *QuoteArchive) GetByTimeRange(_ context.Context, symbol string, start, end time.Time) ([]*domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Quote
	for _, q := range s.data[symbol] {
		if q.At.Before(start) || q.At.After(end) {
			continue
		}
		copy := *q
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].At.Before(result[j].At)
	})

	return result, nil
}

var _ storage.QuoteArchive = (*QuoteArchive)(nil)
