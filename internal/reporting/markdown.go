package reporting

import (
	"fmt"
	"strings"
	"time"
)

// recentCompletionRows caps the completions table in the Markdown view;
// the CSV rendering carries the full list.
const recentCompletionRows = 10

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Trading Outcome Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if !r.DateRangeStart.IsZero() {
		sb.WriteString(fmt.Sprintf("Coverage: %s to %s\n\n",
			r.DateRangeStart.Format(time.RFC3339), r.DateRangeEnd.Format(time.RFC3339)))
	}

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", r.Summary.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Winning Trades | %d |\n", r.Summary.WinningTrades))
	sb.WriteString(fmt.Sprintf("| Losing Trades | %d |\n", r.Summary.LosingTrades))
	sb.WriteString(fmt.Sprintf("| Overall Win Rate | %.4f |\n", r.Summary.OverallWinRate))
	sb.WriteString(fmt.Sprintf("| Recent Win Rate | %.4f |\n", r.Summary.RecentWinRate))
	sb.WriteString(fmt.Sprintf("| Average Profit Pct | %.4f |\n", r.Summary.AverageProfit))
	sb.WriteString(fmt.Sprintf("| Average Loss Pct | %.4f |\n", r.Summary.AverageLoss))
	sb.WriteString(fmt.Sprintf("| Profit Factor | %.4f |\n", r.Summary.ProfitFactor))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Wins | %d |\n", r.Summary.MaxConsecutiveWins))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Losses | %d |\n", r.Summary.MaxConsecutiveLosses))
	sb.WriteString(fmt.Sprintf("| Net Pnl Pct | %.4f |\n", r.NetPnlPct))
	sb.WriteString("\n")

	// Per-Channel Performance
	sb.WriteString("## Per-Channel Performance\n\n")
	if len(r.ChannelMetrics) > 0 {
		sb.WriteString("| Channel | Trades | Wins | Losses | WinRate | ProfitFactor | AvgProfit | AvgLoss | NetPnl |\n")
		sb.WriteString("|---------|--------|------|--------|---------|--------------|-----------|---------|--------|\n")
		for _, m := range r.ChannelMetrics {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %.4f | %.4f | %.4f | %.4f | %.4f |\n",
				m.Channel, m.TotalTrades, m.WinningTrades, m.LosingTrades,
				m.WinRate, m.ProfitFactor, m.AverageProfit, m.AverageLoss, m.NetPnlPct))
		}
	} else {
		sb.WriteString("No channel metrics available.\n")
	}
	sb.WriteString("\n")

	// Recent Completions (newest first, capped)
	sb.WriteString("## Recent Completions\n\n")
	if len(r.Completions) > 0 {
		recent := r.Completions
		if len(recent) > recentCompletionRows {
			recent = recent[len(recent)-recentCompletionRows:]
		}
		sb.WriteString("| Order | Symbol | Side | Entry | Exit | Reason | Pnl | Hold (min) | Channel | Exit At |\n")
		sb.WriteString("|-------|--------|------|-------|------|--------|-----|------------|---------|--------|\n")
		for i := len(recent) - 1; i >= 0; i-- {
			c := recent[i]
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %.4f | %.4f | %s | %.4f | %d | %s | %s |\n",
				c.OrderID, c.Symbol, c.Side, c.EntryPrice, c.ExitPrice,
				c.ExitReason, c.PnlPct, c.HoldMinutes, c.Channel,
				c.ExitAt.Format(time.RFC3339)))
		}
	} else {
		sb.WriteString("No completed orders yet.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
