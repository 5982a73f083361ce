// Package orders owns the order collections and drives every lifecycle
// transition: PENDING -> ACTIVE -> ENTERED -> COMPLETED.
package orders

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"signal-engine/internal/domain"
)

// ErrDuplicateOrder indicates an existing non-completed order already
// occupies the same symbol/side level. Logged at info level by callers;
// not a failure condition.
var ErrDuplicateOrder = errors.New("duplicate order")

const (
	// DefaultExpiry is how long an order may wait for its entry
	// trigger before it is aged out.
	DefaultExpiry = 12 * time.Hour

	// DefaultDuplicateTolerance is the relative entry price distance
	// under which two orders on the same symbol/side count as one.
	DefaultDuplicateTolerance = 0.001
)

// PriceLookup resolves the current quote for a symbol. A false return
// means unavailable: the order is skipped this tick and retried next.
type PriceLookup func(symbol string) (domain.Quote, bool)

// Transition records one state change performed by Advance. Order is a
// copy taken immediately after the change.
type Transition struct {
	OrderID    uint64
	From       domain.OrderStatus
	To         domain.OrderStatus
	ExitReason domain.ExitReason
	Order      domain.Order
}

// Machine is the order state machine. A single mutex serializes admit,
// advance, and snapshot reads so collections never interleave
// mid-mutation.
type Machine struct {
	expiry       time.Duration
	dupTolerance float64
	logger       *log.Logger

	mu        sync.Mutex
	nextID    uint64
	active    []*domain.Order // PENDING, ACTIVE, ENTERED
	completed []*domain.Order
}

// Option configures a Machine.
type Option func(*Machine)

// WithExpiry overrides the no-entry expiry window.
func WithExpiry(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.expiry = d
		}
	}
}

// WithDuplicateTolerance overrides the duplicate entry price tolerance.
func WithDuplicateTolerance(tol float64) Option {
	return func(m *Machine) {
		if tol > 0 {
			m.dupTolerance = tol
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// New creates an empty Machine.
func New(opts ...Option) *Machine {
	m := &Machine{
		expiry:       DefaultExpiry,
		dupTolerance: DefaultDuplicateTolerance,
		logger:       log.Default(),
		nextID:       1,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Admit creates a PENDING order from a validated signal and sized
// quantity. Fails with ErrInvalidSignal when the threshold ordering is
// violated and with ErrDuplicateOrder when a non-completed order on the
// same symbol/side sits within the duplicate tolerance of the entry.
func (m *Machine) Admit(sig *domain.Signal, quantity float64, now time.Time) (domain.Order, error) {
	if err := sig.Validate(); err != nil {
		return domain.Order{}, fmt.Errorf("admit: %w", err)
	}
	if quantity <= 0 {
		return domain.Order{}, fmt.Errorf("admit: %w: quantity must be positive", domain.ErrInvalidSignal)
	}

	symbol := strings.ToUpper(sig.Symbol)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.active {
		if o.Symbol != symbol || o.Side != sig.Side {
			continue
		}
		if math.Abs(o.EntryPrice-sig.EntryPrice) <= sig.EntryPrice*m.dupTolerance {
			return domain.Order{}, fmt.Errorf("admit %s %s at %s: order %d holds the same level: %w",
				symbol, sig.Side, formatLevel(sig.EntryPrice), o.ID, ErrDuplicateOrder)
		}
	}

	o := &domain.Order{
		ID:            m.nextID,
		Symbol:        symbol,
		Side:          sig.Side,
		EntryPrice:    sig.EntryPrice,
		StopLoss:      sig.StopLoss,
		TargetPrice:   sig.TargetPrice,
		Quantity:      quantity,
		Status:        domain.StatusPending,
		SourceChannel: sig.SourceChannel,
		CreatedAt:     now.UTC(),
	}
	m.nextID++
	m.active = append(m.active, o)

	return *o, nil
}

// Advance steps every non-completed order against the current prices
// and returns the transitions performed this tick. An unavailable price
// skips that one order; it never halts the pass.
func (m *Machine) Advance(now time.Time, lookup PriceLookup) []Transition {
	now = now.UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	var transitions []Transition
	remaining := m.active[:0]

	for _, o := range m.active {
		transitions = append(transitions, m.step(o, now, lookup)...)
		if o.Status == domain.StatusCompleted {
			m.completed = append(m.completed, o)
		} else {
			remaining = append(remaining, o)
		}
	}
	m.active = remaining

	return transitions
}

// step advances a single order. Caller holds the lock.
func (m *Machine) step(o *domain.Order, now time.Time, lookup PriceLookup) []Transition {
	var ts []Transition

	// Orders that never entered age out, price feed or not.
	if o.Status != domain.StatusEntered && now.Sub(o.CreatedAt) >= m.expiry {
		from := o.Status
		m.complete(o, o.EntryPrice, domain.ExitReasonExpired, now)
		return append(ts, transitionFrom(o, from))
	}

	q, ok := lookup(o.Symbol)
	if !ok || q.Mid <= 0 {
		return ts
	}
	o.CurrentPrice = q.Mid

	// First reading for a fresh order: the loop now tracks it.
	if o.Status == domain.StatusPending {
		o.Status = domain.StatusActive
		ts = append(ts, transitionFrom(o, domain.StatusPending))
	}

	switch o.Status {
	case domain.StatusActive:
		if entryTriggered(o.Side, q.Mid, o.EntryPrice) {
			o.Status = domain.StatusEntered
			at := now
			o.EnteredAt = &at
			ts = append(ts, transitionFrom(o, domain.StatusActive))
		}
	case domain.StatusEntered:
		if reason, done := settleReason(o.Side, q.Mid, o.StopLoss, o.TargetPrice); done {
			m.complete(o, q.Mid, reason, now)
			ts = append(ts, transitionFrom(o, domain.StatusEntered))
		}
	}

	return ts
}

// settleReason decides whether an entered order completes at the given
// price. Stop-loss is checked first: when a gapping price crosses both
// levels in one tick the conservative exit wins.
func settleReason(side domain.Side, price, stop, target float64) (domain.ExitReason, bool) {
	if stopTriggered(side, price, stop) {
		return domain.ExitReasonStopLoss, true
	}
	if target > 0 && targetTriggered(side, price, target) {
		return domain.ExitReasonTakeProfit, true
	}
	return domain.ExitReasonNone, false
}

// complete finalizes an order. Exit fields are set together so a
// completed order is never observed half-written. Caller holds the lock.
func (m *Machine) complete(o *domain.Order, exitPrice float64, reason domain.ExitReason, now time.Time) {
	o.Status = domain.StatusCompleted
	o.ExitPrice = exitPrice
	o.ExitReason = reason
	at := now
	o.ExitAt = &at

	anchor := o.CreatedAt
	if o.EnteredAt != nil {
		anchor = *o.EnteredAt
	}
	o.HoldMinutes = int64(now.Sub(anchor).Minutes())
	o.RealizedPnlPct = domain.PnlPct(o.Side, o.EntryPrice, exitPrice)
}

// ListActive returns copies of every non-completed order.
func (m *Machine) ListActive() []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Order, len(m.active))
	for i, o := range m.active {
		out[i] = *o
	}
	return out
}

// ListCompleted returns copies of every completed order.
func (m *Machine) ListCompleted() []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Order, len(m.completed))
	for i, o := range m.completed {
		out[i] = *o
	}
	return out
}

// Counts returns the active and completed collection sizes.
func (m *Machine) Counts() (active, completed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active), len(m.completed)
}

// Withdraw removes a non-completed order, reversing its admission. The
// pipeline uses it when venue placement fails after a successful Admit:
// an unfunded order must not keep ticking. Completed orders are history
// and cannot be withdrawn.
func (m *Machine) Withdraw(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, o := range m.active {
		if o.ID == id {
			m.active = append(m.active[:i], m.active[i+1:]...)
			return true
		}
	}
	return false
}

// HasOpenOrder reports whether a non-completed order exists for the
// symbol/side pair. Satisfies the dedup pruning check.
func (m *Machine) HasOpenOrder(symbol string, side domain.Side) bool {
	symbol = strings.ToUpper(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.active {
		if o.Symbol == symbol && o.Side == side {
			return true
		}
	}
	return false
}

// ActiveSymbols returns the distinct symbols of non-completed orders,
// sorted. The monitor uses this to scope price refreshes.
func (m *Machine) ActiveSymbols() []string {
	m.mu.Lock()
	seen := make(map[string]struct{}, len(m.active))
	for _, o := range m.active {
		seen[o.Symbol] = struct{}{}
	}
	m.mu.Unlock()

	symbols := make([]string, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// SeedCompleted preloads completed orders recovered from storage so
// statistics survive a restart. IDs are kept; the counter moves past
// the highest seen.
func (m *Machine) SeedCompleted(orders []domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range orders {
		o := orders[i]
		if o.Status != domain.StatusCompleted {
			continue
		}
		m.completed = append(m.completed, &o)
		if o.ID >= m.nextID {
			m.nextID = o.ID + 1
		}
	}
}

func transitionFrom(o *domain.Order, from domain.OrderStatus) Transition {
	return Transition{
		OrderID:    o.ID,
		From:       from,
		To:         o.Status,
		ExitReason: o.ExitReason,
		Order:      *o,
	}
}

// entryTriggered fires on retrace to the signalled level: longs wait
// for price to come down to entry, shorts for it to rise.
func entryTriggered(side domain.Side, price, entry float64) bool {
	if side == domain.SideShort {
		return price >= entry
	}
	return price <= entry
}

func stopTriggered(side domain.Side, price, stop float64) bool {
	if side == domain.SideShort {
		return price >= stop
	}
	return price <= stop
}

func targetTriggered(side domain.Side, price, target float64) bool {
	if side == domain.SideShort {
		return price <= target
	}
	return price >= target
}

func formatLevel(p float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.8f", p), "0"), ".")
}
