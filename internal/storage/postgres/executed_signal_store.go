package postgres

import (
	"context"
	"fmt"
	"time"

	"signal-engine/internal/domain"
	"signal-engine/internal/storage"
)

// ExecutedSignalStore implements storage.ExecutedSignalStore using PostgreSQL.
type ExecutedSignalStore struct {
	pool *Pool
}

// NewExecutedSignalStore creates a new ExecutedSignalStore.
func NewExecutedSignalStore(pool *Pool) *ExecutedSignalStore {
	return &ExecutedSignalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExecutedSignalStore = (*ExecutedSignalStore)(nil)

// Upsert writes a ledger entry, replacing any entry with the same key.
func (s *ExecutedSignalStore) Upsert(ctx context.Context, r *domain.ExecutedSignalRecord) (err error) {
	defer observeQuery("executed_signals_upsert", time.Now(), &err)

	if r == nil || r.Key == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO executed_signals (
			key, base_key, symbol, side, entry_price, executed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		ON CONFLICT (key) DO UPDATE SET
			base_key    = EXCLUDED.base_key,
			symbol      = EXCLUDED.symbol,
			side        = EXCLUDED.side,
			entry_price = EXCLUDED.entry_price,
			executed_at = EXCLUDED.executed_at
	`

	_, err = s.pool.Exec(ctx, query,
		r.Key, r.BaseKey, r.Symbol, string(r.Side), r.EntryPrice, r.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert executed signal: %w", err)
	}
	return nil
}

// GetSince retrieves entries executed at or after the cutoff.
func (s *ExecutedSignalStore) GetSince(ctx context.Context, cutoff time.Time) (recs []*domain.ExecutedSignalRecord, err error) {
	defer observeQuery("executed_signals_get_since", time.Now(), &err)

	query := `
		SELECT key, base_key, symbol, side, entry_price, executed_at
		FROM executed_signals
		WHERE executed_at >= $1
		ORDER BY executed_at ASC, key ASC
	`

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("get executed signals since cutoff: %w", err)
	}
	defer rows.Close()

	var records []*domain.ExecutedSignalRecord
	for rows.Next() {
		var (
			r    domain.ExecutedSignalRecord
			side string
		)
		if err := rows.Scan(&r.Key, &r.BaseKey, &r.Symbol, &side, &r.EntryPrice, &r.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan executed signal row: %w", err)
		}
		r.Side = domain.Side(side)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executed signal rows: %w", err)
	}

	return records, nil
}

// DeleteBefore removes entries executed before the cutoff. Returns rows removed.
func (s *ExecutedSignalStore) DeleteBefore(ctx context.Context, cutoff time.Time) (n int64, err error) {
	defer observeQuery("executed_signals_delete_before", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `DELETE FROM executed_signals WHERE executed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete executed signals before cutoff: %w", err)
	}
	return tag.RowsAffected(), nil
}
