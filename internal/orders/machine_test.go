package orders

import (
	"errors"
	"testing"
	"time"

	"signal-engine/internal/domain"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func longSignal(symbol string, entry, stop, target float64) *domain.Signal {
	return &domain.Signal{
		Symbol:        symbol,
		Side:          domain.SideLong,
		EntryPrice:    entry,
		StopLoss:      stop,
		TargetPrice:   target,
		SourceChannel: "alpha",
		ReceivedAt:    baseTime,
	}
}

func shortSignal(symbol string, entry, stop, target float64) *domain.Signal {
	return &domain.Signal{
		Symbol:        symbol,
		Side:          domain.SideShort,
		EntryPrice:    entry,
		StopLoss:      stop,
		TargetPrice:   target,
		SourceChannel: "alpha",
		ReceivedAt:    baseTime,
	}
}

// fixedPrice serves one mid price for every symbol.
func fixedPrice(mid float64) PriceLookup {
	return func(symbol string) (domain.Quote, bool) {
		return domain.NewQuote(symbol, mid, mid, mid, baseTime), true
	}
}

// noPrice reports every symbol unavailable.
func noPrice(string) (domain.Quote, bool) {
	return domain.Quote{}, false
}

func TestAdmitCreatesPendingOrder(t *testing.T) {
	m := New()

	o, err := m.Admit(longSignal("btcusdt", 100, 90, 120), 0.5, baseTime)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	if o.ID != 1 {
		t.Errorf("Expected first order id 1, got %d", o.ID)
	}
	if o.Symbol != "BTCUSDT" {
		t.Errorf("Expected uppercased symbol BTCUSDT, got %s", o.Symbol)
	}
	if o.Status != domain.StatusPending {
		t.Errorf("Expected PENDING, got %s", o.Status)
	}
	if o.Quantity != 0.5 {
		t.Errorf("Expected quantity 0.5, got %f", o.Quantity)
	}
	if o.ExitReason != domain.ExitReasonNone || o.ExitAt != nil || o.ExitPrice != 0 {
		t.Error("Exit fields must be zero before completion")
	}

	active, completed := m.Counts()
	if active != 1 || completed != 0 {
		t.Errorf("Expected counts 1/0, got %d/%d", active, completed)
	}
}

func TestAdmitAssignsMonotonicIDs(t *testing.T) {
	m := New()

	first, _ := m.Admit(longSignal("BTCUSDT", 100, 90, 120), 1, baseTime)
	second, _ := m.Admit(longSignal("ETHUSDT", 2000, 1900, 2200), 1, baseTime)

	if second.ID != first.ID+1 {
		t.Errorf("Expected sequential ids, got %d then %d", first.ID, second.ID)
	}
}

func TestAdmitRejectsInvalidSignal(t *testing.T) {
	m := New()

	// Long with stop above entry violates the ordering invariant.
	_, err := m.Admit(longSignal("BTCUSDT", 100, 110, 120), 1, baseTime)
	if !errors.Is(err, domain.ErrInvalidSignal) {
		t.Fatalf("Expected ErrInvalidSignal, got %v", err)
	}

	active, _ := m.Counts()
	if active != 0 {
		t.Errorf("Rejected signal must not create an order, got %d active", active)
	}
}

func TestAdmitRejectsNonPositiveQuantity(t *testing.T) {
	m := New()

	_, err := m.Admit(longSignal("BTCUSDT", 100, 90, 120), 0, baseTime)
	if !errors.Is(err, domain.ErrInvalidSignal) {
		t.Fatalf("Expected ErrInvalidSignal for zero quantity, got %v", err)
	}
}

func TestAdmitRejectsDuplicateLevel(t *testing.T) {
	m := New()

	if _, err := m.Admit(longSignal("BTCUSDT", 100, 90, 120), 1, baseTime); err != nil {
		t.Fatalf("first Admit failed: %v", err)
	}

	// Entry within 0.1% of the existing order on the same symbol/side.
	_, err := m.Admit(longSignal("BTCUSDT", 100.05, 90, 120), 1, baseTime)
	if !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("Expected ErrDuplicateOrder, got %v", err)
	}

	// Opposite side on the same level is a different trade.
	if _, err := m.Admit(shortSignal("BTCUSDT", 100.05, 110, 80), 1, baseTime); err != nil {
		t.Errorf("Short on the same level rejected: %v", err)
	}

	// Same side outside the tolerance is allowed.
	if _, err := m.Admit(longSignal("BTCUSDT", 101, 90, 120), 1, baseTime); err != nil {
		t.Errorf("Long 1%% away rejected: %v", err)
	}
}

func TestAdmitAllowsLevelAgainAfterCompletion(t *testing.T) {
	m := New()

	if _, err := m.Admit(longSignal("BTCUSDT", 100, 90, 120), 1, baseTime); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	// Enter at 100, stop out at 89.
	m.Advance(baseTime.Add(time.Minute), fixedPrice(100))
	m.Advance(baseTime.Add(2*time.Minute), fixedPrice(89))

	if _, completed := m.Counts(); completed != 1 {
		t.Fatal("test sanity: expected the order to complete")
	}

	// Completed orders no longer hold the level.
	if _, err := m.Admit(longSignal("BTCUSDT", 100, 90, 120), 1, baseTime.Add(3*time.Minute)); err != nil {
		t.Errorf("Level blocked by a completed order: %v", err)
	}
}

func TestAdvanceLongLifecycle(t *testing.T) {
	m := New()
	if _, err := m.Admit(longSignal("BTCUSDT", 100, 90, 120), 1, baseTime); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	// First reading at 95: the long retraces to entry and enters.
	ts := m.Advance(baseTime.Add(time.Minute), fixedPrice(95))
	if len(ts) != 2 {
		t.Fatalf("Expected PENDING->ACTIVE->ENTERED on first tick, got %d transitions", len(ts))
	}
	if ts[0].From != domain.StatusPending || ts[0].To != domain.StatusActive {
		t.Errorf("First transition: got %s->%s", ts[0].From, ts[0].To)
	}
	if ts[1].From != domain.StatusActive || ts[1].To != domain.StatusEntered {
		t.Errorf("Second transition: got %s->%s", ts[1].From, ts[1].To)
	}
	if ts[1].Order.EnteredAt == nil {
		t.Error("EnteredAt not set on entry")
	}

	// Second reading at 89 crosses the stop.
	ts = m.Advance(baseTime.Add(2*time.Minute), fixedPrice(89))
	if len(ts) != 1 {
		t.Fatalf("Expected one completion transition, got %d", len(ts))
	}
	got := ts[0].Order
	if got.Status != domain.StatusCompleted || got.ExitReason != domain.ExitReasonStopLoss {
		t.Errorf("Expected COMPLETED/STOP_LOSS, got %s/%s", got.Status, got.ExitReason)
	}
	if got.ExitPrice != 89 {
		t.Errorf("Expected exit price 89, got %f", got.ExitPrice)
	}
	if got.RealizedPnlPct != -11.0 {
		t.Errorf("Expected pnl -11.0, got %f", got.RealizedPnlPct)
	}
	if got.ExitAt == nil || got.HoldMinutes != 1 {
		t.Errorf("Expected HoldMinutes 1 from entry to exit, got %d", got.HoldMinutes)
	}

	active, completed := m.Counts()
	if active != 0 || completed != 1 {
		t.Errorf("Expected counts 0/1 after completion, got %d/%d", active, completed)
	}
}

func TestAdvanceShortLifecycle(t *testing.T) {
	m := New()
	if _, err := m.Admit(shortSignal("ETHUSDT", 100, 110, 80), 1, baseTime); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	// Price rises to entry: the short enters.
	ts := m.Advance(baseTime.Add(time.Minute), fixedPrice(105))
	if len(ts) != 2 || ts[1].To != domain.StatusEntered {
		t.Fatalf("Expected entry on retrace up, got %+v", ts)
	}

	// Price keeps rising through the stop.
	ts = m.Advance(baseTime.Add(2*time.Minute), fixedPrice(112))
	if len(ts) != 1 {
		t.Fatalf("Expected one completion transition, got %d", len(ts))
	}
	got := ts[0].Order
	if got.ExitReason != domain.ExitReasonStopLoss || got.ExitPrice != 112 {
		t.Errorf("Expected STOP_LOSS at 112, got %s at %f", got.ExitReason, got.ExitPrice)
	}
	if got.RealizedPnlPct != -12.0 {
		t.Errorf("Expected pnl -12.0, got %f", got.RealizedPnlPct)
	}
}

func TestAdvanceTakeProfit(t *testing.T) {
	m := New()
	if _, err := m.Admit(longSignal("BTCUSDT", 100, 90, 120), 1, baseTime); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	m.Advance(baseTime.Add(time.Minute), fixedPrice(100))
	ts := m.Advance(baseTime.Add(3*time.Minute), fixedPrice(121))

	if len(ts) != 1 {
		t.Fatalf("Expected one completion transition, got %d", len(ts))
	}
	got := ts[0].Order
	if got.ExitReason != domain.ExitReasonTakeProfit || got.ExitPrice != 121 {
		t.Errorf("Expected TAKE_PROFIT at 121, got %s at %f", got.ExitReason, got.ExitPrice)
	}
	if got.RealizedPnlPct != 21.0 {
		t.Errorf("Expected pnl 21.0, got %f", got.RealizedPnlPct)
	}
	if got.HoldMinutes != 2 {
		t.Errorf("Expected HoldMinutes 2, got %d", got.HoldMinutes)
	}
}

func TestSettleReasonStopPriority(t *testing.T) {
	// A gapping price that satisfies both thresholds at once must
	// resolve to the stop.
	reason, done := settleReason(domain.SideLong, 100, 100, 100)
	if !done || reason != domain.ExitReasonStopLoss {
		t.Errorf("Long gap: expected STOP_LOSS, got %s (done=%v)", reason, done)
	}

	reason, done = settleReason(domain.SideShort, 100, 100, 100)
	if !done || reason != domain.ExitReasonStopLoss {
		t.Errorf("Short gap: expected STOP_LOSS, got %s (done=%v)", reason, done)
	}

	// Target alone.
	reason, done = settleReason(domain.SideLong, 121, 90, 120)
	if !done || reason != domain.ExitReasonTakeProfit {
		t.Errorf("Expected TAKE_PROFIT, got %s (done=%v)", reason, done)
	}

	// No target configured: only the stop can settle.
	if _, done := settleReason(domain.SideLong, 1000, 90, 0); done {
		t.Error("Order without target settled on a rally")
	}
	reason, done = settleReason(domain.SideLong, 89, 90, 0)
	if !done || reason != domain.ExitReasonStopLoss {
		t.Errorf("Expected STOP_LOSS without target, got %s (done=%v)", reason, done)
	}

	// Between the levels nothing settles.
	if _, done := settleReason(domain.SideLong, 100, 90, 120); done {
		t.Error("Price between stop and target settled the order")
	}
}

func TestAdvanceIdempotentOnUnchangedPrice(t *testing.T) {
	m := New()
	if _, err := m.Admit(longSignal("BTCUSDT", 100, 90, 120), 1, baseTime); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	// Enter at 100; price then sits between stop and target.
	m.Advance(baseTime.Add(time.Minute), fixedPrice(100))

	ts := m.Advance(baseTime.Add(2*time.Minute), fixedPrice(100))
	if len(ts) != 0 {
		t.Fatalf("Expected no transitions on unchanged price, got %d", len(ts))
	}
	ts = m.Advance(baseTime.Add(3*time.Minute), fixedPrice(100))
	if len(ts) != 0 {
		t.Fatalf("Expected repeat advance to stay idle, got %d transitions", len(ts))
	}
}

func TestAdvanceSkipsUnavailablePrice(t *testing.T) {
	m := New()
	if _, err := m.Admit(longSignal("BTCUSDT", 100, 90, 120), 1, baseTime); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if _, err := m.Admit(longSignal("ETHUSDT", 2000, 1900, 2200), 1, baseTime); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	// BTC has no price this tick; ETH must still advance.
	lookup := func(symbol string) (domain.Quote, bool) {
		if symbol == "ETHUSDT" {
			return domain.NewQuote(symbol, 2000, 2000, 2000, baseTime), true
		}
		return domain.Quote{}, false
	}

	ts := m.Advance(baseTime.Add(time.Minute), lookup)
	if len(ts) != 2 {
		t.Fatalf("Expected ETH to enter despite BTC outage, got %d transitions", len(ts))
	}
	for _, tr := range ts {
		if tr.Order.Symbol != "ETHUSDT" {
			t.Errorf("Unexpected transition for %s during outage", tr.Order.Symbol)
		}
	}

	// The skipped order is untouched.
	for _, o := range m.ListActive() {
		if o.Symbol == "BTCUSDT" {
			if o.Status != domain.StatusPending || o.CurrentPrice != 0 {
				t.Errorf("Skipped order mutated: status=%s price=%f", o.Status, o.CurrentPrice)
			}
		}
	}
}

func TestAdvanceExpiresUnenteredOrders(t *testing.T) {
	m := New()
	if _, err := m.Admit(longSignal("BTCUSDT", 100, 90, 120), 1, baseTime); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	// Expiry fires even while the price source is down.
	ts := m.Advance(baseTime.Add(DefaultExpiry), noPrice)
	if len(ts) != 1 {
		t.Fatalf("Expected one expiry transition, got %d", len(ts))
	}
	got := ts[0].Order
	if got.Status != domain.StatusCompleted || got.ExitReason != domain.ExitReasonExpired {
		t.Errorf("Expected COMPLETED/EXPIRED, got %s/%s", got.Status, got.ExitReason)
	}
	if got.ExitPrice != 100 || got.RealizedPnlPct != 0 {
		t.Errorf("Expired order must exit flat at entry, got price %f pnl %f", got.ExitPrice, got.RealizedPnlPct)
	}
	if got.HoldMinutes != int64(DefaultExpiry.Minutes()) {
		t.Errorf("Expected hold %d minutes, got %d", int64(DefaultExpiry.Minutes()), got.HoldMinutes)
	}
}

func TestAdvanceNeverExpiresEnteredOrders(t *testing.T) {
	m := New(WithExpiry(time.Hour))
	if _, err := m.Admit(longSignal("BTCUSDT", 100, 90, 0), 1, baseTime); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	m.Advance(baseTime.Add(time.Minute), fixedPrice(100))

	// Way past expiry, price between levels: the position stays open.
	ts := m.Advance(baseTime.Add(48*time.Hour), fixedPrice(95))
	if len(ts) != 0 {
		t.Fatalf("Entered order expired: %+v", ts)
	}
	if active, _ := m.Counts(); active != 1 {
		t.Errorf("Expected the entered order to stay active, got %d", active)
	}
}

func TestExitFieldsSetTogetherOnCompletion(t *testing.T) {
	m := New()
	if _, err := m.Admit(longSignal("BTCUSDT", 100, 90, 120), 1, baseTime); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	m.Advance(baseTime.Add(time.Minute), fixedPrice(100))
	for _, o := range m.ListActive() {
		if o.ExitPrice != 0 || o.ExitReason != domain.ExitReasonNone || o.ExitAt != nil || o.HoldMinutes != 0 {
			t.Errorf("Exit fields written before completion: %+v", o)
		}
	}

	m.Advance(baseTime.Add(2*time.Minute), fixedPrice(89))
	completed := m.ListCompleted()
	if len(completed) != 1 {
		t.Fatalf("Expected one completed order, got %d", len(completed))
	}
	o := completed[0]
	if o.ExitPrice == 0 || o.ExitReason == domain.ExitReasonNone || o.ExitAt == nil {
		t.Errorf("Exit fields incomplete after completion: %+v", o)
	}
}

func TestListReturnsCopies(t *testing.T) {
	m := New()
	if _, err := m.Admit(longSignal("BTCUSDT", 100, 90, 120), 1, baseTime); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	snapshot := m.ListActive()
	snapshot[0].Status = domain.StatusCompleted
	snapshot[0].ExitPrice = 42

	fresh := m.ListActive()
	if fresh[0].Status != domain.StatusPending || fresh[0].ExitPrice != 0 {
		t.Error("Mutating a snapshot leaked into the machine")
	}
}

func TestHasOpenOrder(t *testing.T) {
	m := New()
	if _, err := m.Admit(longSignal("BTCUSDT", 100, 90, 120), 1, baseTime); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	if !m.HasOpenOrder("btcusdt", domain.SideLong) {
		t.Error("Expected open order for BTCUSDT LONG")
	}
	if m.HasOpenOrder("BTCUSDT", domain.SideShort) {
		t.Error("Unexpected open order for the short side")
	}

	// Complete it; the level frees up.
	m.Advance(baseTime.Add(time.Minute), fixedPrice(100))
	m.Advance(baseTime.Add(2*time.Minute), fixedPrice(89))

	if m.HasOpenOrder("BTCUSDT", domain.SideLong) {
		t.Error("Completed order still reported open")
	}
}

func TestActiveSymbols(t *testing.T) {
	m := New()
	m.Admit(longSignal("ETHUSDT", 2000, 1900, 2200), 1, baseTime)
	m.Admit(longSignal("BTCUSDT", 100, 90, 120), 1, baseTime)
	m.Admit(shortSignal("BTCUSDT", 102, 110, 80), 1, baseTime)

	got := m.ActiveSymbols()
	if len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Errorf("Expected sorted distinct [BTCUSDT ETHUSDT], got %v", got)
	}
}

func TestWithdraw(t *testing.T) {
	m := New()
	o, err := m.Admit(longSignal("BTCUSDT", 100, 90, 120), 1, baseTime)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	if !m.Withdraw(o.ID) {
		t.Fatal("Expected withdraw of an active order to succeed")
	}
	if active, _ := m.Counts(); active != 0 {
		t.Errorf("Expected 0 active after withdraw, got %d", active)
	}

	// The level is free again.
	if _, err := m.Admit(longSignal("BTCUSDT", 100, 90, 120), 1, baseTime); err != nil {
		t.Errorf("Level still held after withdraw: %v", err)
	}

	if m.Withdraw(999) {
		t.Error("Expected withdraw of an unknown id to fail")
	}
}

func TestWithdrawIgnoresCompleted(t *testing.T) {
	m := New()
	o, _ := m.Admit(longSignal("BTCUSDT", 100, 90, 120), 1, baseTime)

	m.Advance(baseTime.Add(time.Minute), fixedPrice(100))
	m.Advance(baseTime.Add(2*time.Minute), fixedPrice(89))

	if m.Withdraw(o.ID) {
		t.Error("Completed order withdrawn")
	}
	if _, completed := m.Counts(); completed != 1 {
		t.Errorf("Completed collection mutated: %d", completed)
	}
}

func TestSeedCompleted(t *testing.T) {
	m := New()
	exit := baseTime.Add(time.Hour)
	m.SeedCompleted([]domain.Order{
		{ID: 7, Symbol: "BTCUSDT", Side: domain.SideLong, Status: domain.StatusCompleted,
			RealizedPnlPct: 3.5, ExitAt: &exit, CreatedAt: baseTime},
		{ID: 3, Symbol: "ETHUSDT", Side: domain.SideLong, Status: domain.StatusActive,
			CreatedAt: baseTime}, // non-completed entries are ignored
	})

	if _, completed := m.Counts(); completed != 1 {
		t.Fatalf("Expected one seeded completed order, got %d", completed)
	}

	// The id counter moves past the highest seeded id.
	o, err := m.Admit(longSignal("SOLUSDT", 50, 45, 60), 1, baseTime)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if o.ID != 8 {
		t.Errorf("Expected next id 8 after seeding id 7, got %d", o.ID)
	}
}
