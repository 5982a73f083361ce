package reporting

import (
	"time"

	"signal-engine/internal/domain"
)

// Report is the rendered view over the completed-order archive.
type Report struct {
	// Metadata
	GeneratedAt time.Time

	// Summary aggregates every archived completion; NetPnlPct is the
	// plain sum of realized pnl percentages across them.
	Summary   domain.OutcomeStatistics
	NetPnlPct float64

	// Archive coverage: earliest order creation to latest exit.
	// Both zero when the archive is empty.
	DateRangeStart time.Time
	DateRangeEnd   time.Time

	// Per-channel breakdown (sorted by channel name)
	ChannelMetrics []ChannelMetricRow

	// Individual completions (sorted by exit time ASC, order id ASC)
	Completions []CompletionRow
}

// ChannelMetricRow aggregates outcomes for one source channel.
type ChannelMetricRow struct {
	Channel       string
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	ProfitFactor  float64
	AverageProfit float64
	AverageLoss   float64
	NetPnlPct     float64
}

// CompletionRow represents one completed order in the report.
type CompletionRow struct {
	OrderID     uint64
	Symbol      string
	Side        string
	EntryPrice  float64
	ExitPrice   float64
	ExitReason  string
	PnlPct      float64
	HoldMinutes int64
	Channel     string
	ExitAt      time.Time
}
