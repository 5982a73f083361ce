package storage

import (
	"context"
	"time"

	"signal-engine/internal/domain"
)

// CompletedOrderStore provides access to completed_orders storage.
type CompletedOrderStore interface {
	// Insert adds a new record. Returns ErrDuplicateKey if record_id exists.
	Insert(ctx context.Context, r *domain.CompletedOrderRecord) error

	// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, records []*domain.CompletedOrderRecord) error

	// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, recordID string) (*domain.CompletedOrderRecord, error)

	// GetBySymbol retrieves all records for a symbol, ordered by exit time ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.CompletedOrderRecord, error)

	// GetRecent retrieves the most recent records by exit time, newest first.
	GetRecent(ctx context.Context, limit int) ([]*domain.CompletedOrderRecord, error)

	// GetAll retrieves all records, ordered by exit time ASC.
	GetAll(ctx context.Context) ([]*domain.CompletedOrderRecord, error)
}

// ExecutedSignalStore persists the dedup cooldown ledger across restarts.
type ExecutedSignalStore interface {
	// Upsert writes a ledger entry, replacing any entry with the same key.
	Upsert(ctx context.Context, r *domain.ExecutedSignalRecord) error

	// GetSince retrieves entries executed at or after the cutoff.
	GetSince(ctx context.Context, cutoff time.Time) ([]*domain.ExecutedSignalRecord, error)

	// DeleteBefore removes entries executed before the cutoff. Returns rows removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// QuoteArchive stores per-tick quote samples for later analysis.
type QuoteArchive interface {
	// InsertBulk appends quote samples. Duplicates are the archive's concern, not the caller's.
	InsertBulk(ctx context.Context, quotes []*domain.Quote) error

	// GetByTimeRange retrieves samples for a symbol within [start, end], ordered by time ASC.
	GetByTimeRange(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Quote, error)
}
