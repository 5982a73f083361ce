package clickhouse

import (
	"context"
	"fmt"
	"time"

	"signal-engine/internal/domain"
	"signal-engine/internal/storage"
)

// QuoteArchive implements storage.QuoteArchive using ClickHouse. The
// quotes table is append-only MergeTree; the archive never rejects
// duplicate samples.
type QuoteArchive struct {
	conn *Conn
}

// NewQuoteArchive creates a new QuoteArchive.
func NewQuoteArchive(conn *Conn) *QuoteArchive {
	return &QuoteArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.QuoteArchive = (*QuoteArchive)(nil)

// InsertBulk appends quote samples.
func (a *QuoteArchive) InsertBulk(ctx context.Context, quotes []*domain.Quote) (err error) {
	defer observeQuery("quotes_insert_bulk", time.Now(), &err)

	if len(quotes) == 0 {
		return nil
	}
	for _, q := range quotes {
		if q == nil || q.Symbol == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO quotes (symbol, bid, ask, mid, at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, q := range quotes {
		if err := batch.Append(q.Symbol, q.Bid, q.Ask, q.Mid, q.At); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves samples for a symbol within [start, end] (inclusive).
func (a *QuoteArchive) GetByTimeRange(ctx context.Context, symbol string, start, end time.Time) (quotes []*domain.Quote, err error) {
	defer observeQuery("quotes_get_by_time_range", time.Now(), &err)

	query := `
		SELECT symbol, bid, ask, mid, at
		FROM quotes
		WHERE symbol = ? AND at >= ? AND at <= ?
		ORDER BY at ASC
	`

	rows, err := a.conn.Query(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("query quotes by time range: %w", err)
	}
	defer rows.Close()

	var out []*domain.Quote
	for rows.Next() {
		var q domain.Quote
		if err := rows.Scan(&q.Symbol, &q.Bid, &q.Ask, &q.Mid, &q.At); err != nil {
			return nil, fmt.Errorf("scan quote row: %w", err)
		}
		out = append(out, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quote rows: %w", err)
	}

	return out, nil
}
