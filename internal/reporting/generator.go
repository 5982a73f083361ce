package reporting

import (
	"context"
	"sort"
	"time"

	"signal-engine/internal/domain"
	"signal-engine/internal/stats"
	"signal-engine/internal/storage"
)

// Generator produces reports from the persisted completed-order archive.
type Generator struct {
	orderStore storage.CompletedOrderStore
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(orderStore storage.CompletedOrderStore) *Generator {
	return &Generator{
		orderStore: orderStore,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete outcome report over the archive.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	records, err := g.orderStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	// Reconstruct orders once; both the summary and the per-channel
	// breakdown run the same aggregation over them.
	orders := make([]domain.Order, len(records))
	for i, r := range records {
		orders[i] = r.Order()
	}

	start, end := dateRange(records)

	return &Report{
		GeneratedAt:    g.now(),
		Summary:        stats.Compute(orders),
		NetPnlPct:      netPnl(orders),
		DateRangeStart: start,
		DateRangeEnd:   end,
		ChannelMetrics: generateChannelMetrics(orders),
		Completions:    generateCompletions(records),
	}, nil
}

// generateChannelMetrics groups orders by source channel and aggregates
// each group separately. Orders without a channel fall under "unknown".
func generateChannelMetrics(orders []domain.Order) []ChannelMetricRow {
	groups := make(map[string][]domain.Order)
	for _, o := range orders {
		channel := o.SourceChannel
		if channel == "" {
			channel = "unknown"
		}
		groups[channel] = append(groups[channel], o)
	}

	channels := make([]string, 0, len(groups))
	for channel := range groups {
		channels = append(channels, channel)
	}
	sort.Strings(channels)

	rows := make([]ChannelMetricRow, 0, len(channels))
	for _, channel := range channels {
		group := groups[channel]
		st := stats.Compute(group)
		rows = append(rows, ChannelMetricRow{
			Channel:       channel,
			TotalTrades:   st.TotalTrades,
			WinningTrades: st.WinningTrades,
			LosingTrades:  st.LosingTrades,
			WinRate:       st.OverallWinRate,
			ProfitFactor:  st.ProfitFactor,
			AverageProfit: st.AverageProfit,
			AverageLoss:   st.AverageLoss,
			NetPnlPct:     netPnl(group),
		})
	}
	return rows
}

// generateCompletions flattens records into report rows, sorted by exit
// time ASC then order id ASC.
func generateCompletions(records []*domain.CompletedOrderRecord) []CompletionRow {
	rows := make([]CompletionRow, len(records))
	for i, r := range records {
		rows[i] = CompletionRow{
			OrderID:     r.OrderID,
			Symbol:      r.Symbol,
			Side:        string(r.Side),
			EntryPrice:  r.EntryPrice,
			ExitPrice:   r.ExitPrice,
			ExitReason:  string(r.ExitReason),
			PnlPct:      r.RealizedPnlPct,
			HoldMinutes: r.HoldMinutes,
			Channel:     r.SourceChannel,
			ExitAt:      r.ExitAt,
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].ExitAt.Equal(rows[j].ExitAt) {
			return rows[i].ExitAt.Before(rows[j].ExitAt)
		}
		return rows[i].OrderID < rows[j].OrderID
	})
	return rows
}

// dateRange finds the earliest creation and latest exit across records.
func dateRange(records []*domain.CompletedOrderRecord) (time.Time, time.Time) {
	var start, end time.Time
	for _, r := range records {
		if start.IsZero() || r.CreatedAt.Before(start) {
			start = r.CreatedAt
		}
		if end.IsZero() || r.ExitAt.After(end) {
			end = r.ExitAt
		}
	}
	return start, end
}

func netPnl(orders []domain.Order) float64 {
	total := 0.0
	for _, o := range orders {
		total += o.RealizedPnlPct
	}
	return total
}
