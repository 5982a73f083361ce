package domain

// OutcomeStatistics aggregates performance over completed orders. It is
// recomputed on demand, never stored incrementally. Orders with zero
// realized pnl are excluded from win/loss counting.
type OutcomeStatistics struct {
	TotalTrades          int
	WinningTrades        int
	LosingTrades         int
	AverageProfit        float64 // mean pnl pct over winning trades
	AverageLoss          float64 // mean loss magnitude (positive) over losing trades
	ProfitFactor         float64 // total profit / total loss
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	RecentWinRate        float64 // win rate over the last N trades by exit time
	OverallWinRate       float64
}

// NeutralStatistics is the fallback used when no completed trades exist
// yet: every sizing adjustment factor derived from it resolves to 1.0.
func NeutralStatistics() OutcomeStatistics {
	return OutcomeStatistics{
		RecentWinRate:  0.5,
		OverallWinRate: 0.5,
		ProfitFactor:   1.0,
	}
}
