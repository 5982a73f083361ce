package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"signal-engine/internal/domain"
	"signal-engine/internal/storage"
)

// CompletedOrderStore implements storage.CompletedOrderStore using PostgreSQL.
type CompletedOrderStore struct {
	pool *Pool
}

// NewCompletedOrderStore creates a new CompletedOrderStore.
func NewCompletedOrderStore(pool *Pool) *CompletedOrderStore {
	return &CompletedOrderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CompletedOrderStore = (*CompletedOrderStore)(nil)

const completedOrderColumns = `
	record_id, order_id, symbol, side,
	entry_price, stop_loss, target_price, exit_price, exit_reason,
	hold_minutes, realized_pnl_pct, source_channel, created_at, exit_at
`

const insertCompletedOrderQuery = `
	INSERT INTO completed_orders (
		record_id, order_id, symbol, side,
		entry_price, stop_loss, target_price, exit_price, exit_reason,
		hold_minutes, realized_pnl_pct, source_channel, created_at, exit_at
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8, $9,
		$10, $11, $12, $13, $14
	)
`

// Insert adds a new record. Returns ErrDuplicateKey if record_id exists.
func (s *CompletedOrderStore) Insert(ctx context.Context, r *domain.CompletedOrderRecord) (err error) {
	defer observeQuery("completed_orders_insert", time.Now(), &err)

	if r == nil || r.RecordID == "" {
		return storage.ErrInvalidInput
	}

	_, err = s.pool.Exec(ctx, insertCompletedOrderQuery,
		r.RecordID, r.OrderID, r.Symbol, string(r.Side),
		r.EntryPrice, r.StopLoss, r.TargetPrice, r.ExitPrice, string(r.ExitReason),
		r.HoldMinutes, r.RealizedPnlPct, r.SourceChannel, r.CreatedAt, r.ExitAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert completed order: %w", err)
	}
	return nil
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *CompletedOrderStore) InsertBulk(ctx context.Context, records []*domain.CompletedOrderRecord) (err error) {
	defer observeQuery("completed_orders_insert_bulk", time.Now(), &err)

	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		if r == nil || r.RecordID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, insertCompletedOrderQuery,
			r.RecordID, r.OrderID, r.Symbol, string(r.Side),
			r.EntryPrice, r.StopLoss, r.TargetPrice, r.ExitPrice, string(r.ExitReason),
			r.HoldMinutes, r.RealizedPnlPct, r.SourceChannel, r.CreatedAt, r.ExitAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert completed order in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
func (s *CompletedOrderStore) GetByID(ctx context.Context, recordID string) (rec *domain.CompletedOrderRecord, err error) {
	defer observeQuery("completed_orders_get_by_id", time.Now(), &err)

	query := `SELECT` + completedOrderColumns + `FROM completed_orders WHERE record_id = $1`

	row := s.pool.QueryRow(ctx, query, recordID)
	rec, err = scanCompletedOrder(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get completed order by id: %w", err)
	}
	return rec, nil
}

// GetBySymbol retrieves all records for a symbol, ordered by exit time ASC.
func (s *CompletedOrderStore) GetBySymbol(ctx context.Context, symbol string) (recs []*domain.CompletedOrderRecord, err error) {
	defer observeQuery("completed_orders_get_by_symbol", time.Now(), &err)

	query := `
		SELECT` + completedOrderColumns + `
		FROM completed_orders
		WHERE symbol = $1
		ORDER BY exit_at ASC, order_id ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("get completed orders by symbol: %w", err)
	}
	defer rows.Close()

	return scanCompletedOrders(rows)
}

// GetRecent retrieves the most recent records by exit time, newest first.
func (s *CompletedOrderStore) GetRecent(ctx context.Context, limit int) (recs []*domain.CompletedOrderRecord, err error) {
	defer observeQuery("completed_orders_get_recent", time.Now(), &err)

	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT` + completedOrderColumns + `
		FROM completed_orders
		ORDER BY exit_at DESC, order_id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent completed orders: %w", err)
	}
	defer rows.Close()

	return scanCompletedOrders(rows)
}

// GetAll retrieves all records, ordered by exit time ASC.
func (s *CompletedOrderStore) GetAll(ctx context.Context) (recs []*domain.CompletedOrderRecord, err error) {
	defer observeQuery("completed_orders_get_all", time.Now(), &err)

	query := `
		SELECT` + completedOrderColumns + `
		FROM completed_orders
		ORDER BY exit_at ASC, order_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all completed orders: %w", err)
	}
	defer rows.Close()

	return scanCompletedOrders(rows)
}

// scanCompletedOrder scans a single row into a CompletedOrderRecord.
func scanCompletedOrder(row pgx.Row) (*domain.CompletedOrderRecord, error) {
	var (
		r            domain.CompletedOrderRecord
		side, reason string
	)

	err := row.Scan(
		&r.RecordID, &r.OrderID, &r.Symbol, &side,
		&r.EntryPrice, &r.StopLoss, &r.TargetPrice, &r.ExitPrice, &reason,
		&r.HoldMinutes, &r.RealizedPnlPct, &r.SourceChannel, &r.CreatedAt, &r.ExitAt,
	)
	if err != nil {
		return nil, err
	}

	r.Side = domain.Side(side)
	r.ExitReason = domain.ExitReason(reason)
	return &r, nil
}

// scanCompletedOrders scans multiple rows into a slice of CompletedOrderRecord.
func scanCompletedOrders(rows pgx.Rows) ([]*domain.CompletedOrderRecord, error) {
	var records []*domain.CompletedOrderRecord

	for rows.Next() {
		r, err := scanCompletedOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completed order row: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed order rows: %w", err)
	}

	return records, nil
}
