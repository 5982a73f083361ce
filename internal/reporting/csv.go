package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders completion rows as CSV string.
func RenderCSV(completions []CompletionRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("order_id,symbol,side,entry_price,exit_price,exit_reason,")
	sb.WriteString("pnl_pct,hold_minutes,source_channel,exit_at\n")

	// Rows
	for _, c := range completions {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%.6f,%.6f,%s,%.6f,%d,%s,%s\n",
			c.OrderID,
			c.Symbol,
			c.Side,
			c.EntryPrice,
			c.ExitPrice,
			c.ExitReason,
			c.PnlPct,
			c.HoldMinutes,
			c.Channel,
			c.ExitAt.UTC().Format("2006-01-02T15:04:05Z"),
		))
	}

	return sb.String()
}
