package sizing

import (
	"math"
	"testing"

	"signal-engine/internal/domain"
)

func staticPrice(mid float64) PriceLookup {
	return func(string) (float64, bool) { return mid, true }
}

func staticStats(st domain.OutcomeStatistics) StatsProvider {
	return StatsFunc(func() domain.OutcomeStatistics { return st })
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAdjustedRiskPctHotStreak(t *testing.T) {
	st := domain.OutcomeStatistics{
		RecentWinRate:        0.65,
		ProfitFactor:         1.8,
		MaxConsecutiveLosses: 1,
	}

	got := AdjustedRiskPct(2.0, st, 1.0)
	if !almostEqual(got, 2.64) {
		t.Errorf("Expected 2.64 (2%% x 1.2 x 1.1 x 1.0 x 1.0), got %f", got)
	}
}

func TestAdjustedRiskPctNeutral(t *testing.T) {
	got := AdjustedRiskPct(2.0, domain.NeutralStatistics(), 1.0)
	if !almostEqual(got, 2.0) {
		t.Errorf("Expected neutral statistics to leave base risk unchanged, got %f", got)
	}
}

func TestAdjustedRiskPctColdStreak(t *testing.T) {
	st := domain.OutcomeStatistics{
		RecentWinRate:        0.3,
		ProfitFactor:         0.5,
		MaxConsecutiveLosses: 6,
	}

	// 2 x 0.7 x 0.8 x 0.6 x 0.75 = 0.504
	got := AdjustedRiskPct(2.0, st, 0.5)
	if !almostEqual(got, 0.504) {
		t.Errorf("Expected 0.504, got %f", got)
	}
}

func TestAdjustedRiskPctClamp(t *testing.T) {
	hot := domain.OutcomeStatistics{RecentWinRate: 0.9, ProfitFactor: 3.0}
	if got := AdjustedRiskPct(10.0, hot, 1.0); got != MaxRiskPct {
		t.Errorf("Expected clamp to %f, got %f", MaxRiskPct, got)
	}

	cold := domain.OutcomeStatistics{RecentWinRate: 0.1, ProfitFactor: 0.2, MaxConsecutiveLosses: 9}
	if got := AdjustedRiskPct(0.2, cold, 0.0); got != MinRiskPct {
		t.Errorf("Expected clamp to %f, got %f", MinRiskPct, got)
	}
}

func TestConsecutiveLossFactorBoundaries(t *testing.T) {
	cases := []struct {
		losses int
		want   float64
	}{
		{0, 1.0},
		{3, 1.0},
		{4, 0.8},
		{5, 0.8},
		{6, 0.6},
	}
	for _, c := range cases {
		if got := consecutiveLossFactor(c.losses); got != c.want {
			t.Errorf("losses=%d: expected %f, got %f", c.losses, c.want, got)
		}
	}
}

func TestComputeSizeQuantity(t *testing.T) {
	s := New(staticStats(domain.NeutralStatistics()), staticPrice(100))

	// 10000 x 2% x 1 / 100 = 2.0 at neutral statistics, confidence 1.
	got := s.ComputeSize("BTCUSDT", 1.0, 10000, 1.0)
	if !almostEqual(got.Quantity, 2.0) {
		t.Errorf("Expected quantity 2.0, got %f", got.Quantity)
	}
	if !almostEqual(got.RiskPct, 2.0) {
		t.Errorf("Expected risk pct 2.0, got %f", got.RiskPct)
	}
	if got.Price != 100 {
		t.Errorf("Expected price 100, got %f", got.Price)
	}
}

func TestComputeSizeLeverageScales(t *testing.T) {
	s := New(staticStats(domain.NeutralStatistics()), staticPrice(100))

	base := s.ComputeSize("BTCUSDT", 1.0, 10000, 1.0)
	levered := s.ComputeSize("BTCUSDT", 1.0, 10000, 5.0)

	if !almostEqual(levered.Quantity, base.Quantity*5) {
		t.Errorf("Expected 5x leverage to scale quantity 5x: %f vs %f", levered.Quantity, base.Quantity)
	}

	// Non-positive leverage falls back to 1x.
	fallback := s.ComputeSize("BTCUSDT", 1.0, 10000, 0)
	if !almostEqual(fallback.Quantity, base.Quantity) {
		t.Errorf("Expected leverage 0 to behave as 1x, got %f", fallback.Quantity)
	}
}

func TestComputeSizeZeroBalance(t *testing.T) {
	s := New(staticStats(domain.NeutralStatistics()), staticPrice(100))

	for _, balance := range []float64{0, -50} {
		got := s.ComputeSize("BTCUSDT", 1.0, balance, 3.0)
		if got.Quantity != 0 || got.RiskPct != 0 {
			t.Errorf("balance=%f: expected the no-size sentinel, got %+v", balance, got)
		}
	}
}

func TestComputeSizeNoPrice(t *testing.T) {
	unavailable := func(string) (float64, bool) { return 0, false }
	s := New(staticStats(domain.NeutralStatistics()), unavailable)

	got := s.ComputeSize("BTCUSDT", 1.0, 10000, 1.0)
	if got.Quantity != 0 {
		t.Errorf("Expected no size without a price, got %+v", got)
	}
}

func TestComputeSizeNilStatsUsesNeutral(t *testing.T) {
	s := New(nil, staticPrice(100))

	got := s.ComputeSize("BTCUSDT", 1.0, 10000, 1.0)
	if !almostEqual(got.RiskPct, 2.0) {
		t.Errorf("Expected neutral fallback risk 2.0, got %f", got.RiskPct)
	}
}

func TestComputeSizeTruncatesPrecision(t *testing.T) {
	s := New(staticStats(domain.NeutralStatistics()), staticPrice(3),
		WithSymbolPrecision("btcusdt", 0))

	// 10000 x 2% / 3 = 66.66..; zero decimals truncates toward zero.
	got := s.ComputeSize("BTCUSDT", 1.0, 10000, 1.0)
	if got.Quantity != 66 {
		t.Errorf("Expected truncation to 66, got %f", got.Quantity)
	}

	// Default precision keeps three decimals.
	dflt := New(staticStats(domain.NeutralStatistics()), staticPrice(3))
	if q := dflt.ComputeSize("ETHUSDT", 1.0, 10000, 1.0).Quantity; !almostEqual(q, 66.666) {
		t.Errorf("Expected 66.666 at default precision, got %f", q)
	}
}

func TestComputeSizeConfidenceScales(t *testing.T) {
	s := New(staticStats(domain.NeutralStatistics()), staticPrice(100))

	full := s.ComputeSize("BTCUSDT", 1.0, 10000, 1.0)
	half := s.ComputeSize("BTCUSDT", 0.0, 10000, 1.0)

	if !almostEqual(half.RiskPct, full.RiskPct*0.5) {
		t.Errorf("Expected zero confidence to halve risk: %f vs %f", half.RiskPct, full.RiskPct)
	}
}
