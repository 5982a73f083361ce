package stats

import (
	"sort"
	"time"

	"signal-engine/internal/domain"
)

// RecentWindow is the number of most recent completed orders used for
// the recent win rate.
const RecentWindow = 20

// profitFactorCap bounds the profit factor when no losing trades exist,
// keeping the value finite and JSON-encodable.
const profitFactorCap = 100.0

// Compute derives OutcomeStatistics from completed orders.
// Orders are sorted by exit time ASC, ID ASC before computing
// order-dependent values (streaks, recent window). Orders with zero
// realized pnl count toward TotalTrades but are excluded from win/loss
// tallies, streaks and win-rate denominators. When no decisive trade
// exists the neutral fallback is returned so every sizing adjustment
// factor resolves to 1.0.
func Compute(completed []domain.Order) domain.OutcomeStatistics {
	n := len(completed)
	if n == 0 {
		return domain.NeutralStatistics()
	}

	// Sort deterministically by exit time ASC, ID ASC.
	sorted := make([]domain.Order, n)
	copy(sorted, completed)
	sort.Slice(sorted, func(i, j int) bool {
		ti, tj := exitOrCreated(&sorted[i]), exitOrCreated(&sorted[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return sorted[i].ID < sorted[j].ID
	})

	wins := 0
	losses := 0
	totalProfit := 0.0
	totalLoss := 0.0
	var decisive []float64 // pnl sequence excluding zero-pnl orders

	for i := range sorted {
		pnl := sorted[i].RealizedPnlPct
		switch {
		case pnl > 0:
			wins++
			totalProfit += pnl
			decisive = append(decisive, pnl)
		case pnl < 0:
			losses++
			totalLoss += -pnl
			decisive = append(decisive, pnl)
		}
	}

	if len(decisive) == 0 {
		return domain.NeutralStatistics()
	}

	out := domain.OutcomeStatistics{
		TotalTrades:    n,
		WinningTrades:  wins,
		LosingTrades:   losses,
		OverallWinRate: computeWinRate(wins, wins+losses),
		RecentWinRate:  computeRecentWinRate(sorted),
	}

	if wins > 0 {
		out.AverageProfit = totalProfit / float64(wins)
	}
	if losses > 0 {
		out.AverageLoss = totalLoss / float64(losses)
	}
	out.ProfitFactor = computeProfitFactor(totalProfit, totalLoss)
	out.MaxConsecutiveWins, out.MaxConsecutiveLosses = computeStreaks(decisive)

	return out
}

// exitOrCreated returns the order's exit time, falling back to creation
// time for records that predate exit-time tracking.
func exitOrCreated(o *domain.Order) time.Time {
	if o.ExitAt != nil {
		return *o.ExitAt
	}
	return o.CreatedAt
}

// computeWinRate calculates win rate as wins / total decisive trades.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// computeProfitFactor calculates total profit over total loss magnitude.
// An undefeated record has an unbounded ratio; it is reported as a
// finite cap instead.
func computeProfitFactor(totalProfit, totalLoss float64) float64 {
	switch {
	case totalLoss > 0:
		return totalProfit / totalLoss
	case totalProfit > 0:
		return profitFactorCap
	default:
		return 1.0
	}
}

// computeStreaks finds the longest win and loss streaks over the
// decisive pnl sequence in chronological order.
func computeStreaks(decisive []float64) (maxWins, maxLosses int) {
	curWins := 0
	curLosses := 0
	for _, pnl := range decisive {
		if pnl > 0 {
			curWins++
			curLosses = 0
			if curWins > maxWins {
				maxWins = curWins
			}
		} else {
			curLosses++
			curWins = 0
			if curLosses > maxLosses {
				maxLosses = curLosses
			}
		}
	}
	return maxWins, maxLosses
}

// computeRecentWinRate calculates the win rate over the last
// RecentWindow orders; zero-pnl orders inside the window are skipped.
func computeRecentWinRate(sorted []domain.Order) float64 {
	start := 0
	if len(sorted) > RecentWindow {
		start = len(sorted) - RecentWindow
	}

	recentWins := 0
	recentTotal := 0
	for i := start; i < len(sorted); i++ {
		pnl := sorted[i].RealizedPnlPct
		if pnl == 0 {
			continue
		}
		recentTotal++
		if pnl > 0 {
			recentWins++
		}
	}
	return computeWinRate(recentWins, recentTotal)
}
