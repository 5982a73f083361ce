// Package publish debounces engine state into snapshots for downstream
// fan-out. A snapshot goes out only when the order set actually changed
// and a minimum interval has passed, so idle periods cost subscribers
// nothing and busy periods are rate-bounded.
package publish

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"signal-engine/internal/domain"
	"signal-engine/internal/observability"
)

const (
	// DefaultMinPushInterval is the minimum spacing between emitted
	// snapshots on the regular (non-forced) path.
	DefaultMinPushInterval = 15 * time.Second

	// fingerprintCap bounds how many orders from each collection feed
	// the fingerprint. Counts always participate, so additions and
	// removals beyond the cap still change the digest.
	fingerprintCap = 5
)

// OrderView is a flattened order for transport. Pointers in the domain
// order become zero times so encoders never chase shared memory.
type OrderView struct {
	ID             uint64    `json:"id"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	Status         string    `json:"status"`
	EntryPrice     float64   `json:"entry_price"`
	StopLoss       float64   `json:"stop_loss"`
	TargetPrice    float64   `json:"target_price,omitempty"`
	Quantity       float64   `json:"quantity"`
	CurrentPrice   float64   `json:"current_price,omitempty"`
	ExitPrice      float64   `json:"exit_price,omitempty"`
	ExitReason     string    `json:"exit_reason,omitempty"`
	RealizedPnlPct float64   `json:"realized_pnl_pct"`
	HoldMinutes    int64     `json:"hold_minutes"`
	SourceChannel  string    `json:"source_channel"`
	CreatedAt      time.Time `json:"created_at"`
	EnteredAt      time.Time `json:"entered_at,omitempty"`
	ExitAt         time.Time `json:"exit_at,omitempty"`
}

// ViewOf flattens a domain order for transport.
func ViewOf(o domain.Order) OrderView {
	v := OrderView{
		ID:             o.ID,
		Symbol:         o.Symbol,
		Side:           string(o.Side),
		Status:         string(o.Status),
		EntryPrice:     o.EntryPrice,
		StopLoss:       o.StopLoss,
		TargetPrice:    o.TargetPrice,
		Quantity:       o.Quantity,
		CurrentPrice:   o.CurrentPrice,
		ExitPrice:      o.ExitPrice,
		ExitReason:     string(o.ExitReason),
		RealizedPnlPct: o.RealizedPnlPct,
		HoldMinutes:    o.HoldMinutes,
		SourceChannel:  o.SourceChannel,
		CreatedAt:      o.CreatedAt,
	}
	if o.EnteredAt != nil {
		v.EnteredAt = *o.EnteredAt
	}
	if o.ExitAt != nil {
		v.ExitAt = *o.ExitAt
	}
	return v
}

// Snapshot is one published view of engine state.
type Snapshot struct {
	ID        uuid.UUID                `json:"id"`
	At        time.Time                `json:"at"`
	Active    []OrderView              `json:"active"`
	Completed []OrderView              `json:"completed"`
	Stats     domain.OutcomeStatistics `json:"stats"`
	Forced    bool                     `json:"forced"`
}

// Sink receives emitted snapshots. Publish is called inline from the
// monitor tick, so implementations either return fast or hand off to
// their own goroutine.
type Sink interface {
	Publish(snap Snapshot)
}

// Publisher gates snapshot emission on content change and elapsed time.
type Publisher struct {
	minInterval time.Duration
	logger      *log.Logger

	mu       sync.Mutex
	lastHash string
	lastPush time.Time
	pushed   bool
	force    bool
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithMinInterval overrides the minimum spacing between snapshots.
func WithMinInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.minInterval = d
		}
	}
}

// WithLogger sets the logger used for suppressed-push diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Publisher with the default interval gate.
func New(opts ...Option) *Publisher {
	p := &Publisher{
		minInterval: DefaultMinPushInterval,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ForceNext arms a one-shot bypass of both the fingerprint and interval
// gates. The monitor loop calls it when a state transition happened, so
// the transition is visible downstream without waiting out the interval.
func (p *Publisher) ForceNext() {
	p.mu.Lock()
	p.force = true
	p.mu.Unlock()
}

// MaybePush returns a snapshot when the gates allow one. The boolean is
// false when the push was suppressed; the Snapshot is then zero.
func (p *Publisher) MaybePush(active, completed []domain.Order, st domain.OutcomeStatistics, now time.Time) (Snapshot, bool) {
	hash := fingerprint(active, completed)

	p.mu.Lock()
	defer p.mu.Unlock()

	forced := p.force
	p.force = false

	if !forced {
		if hash == p.lastHash {
			observability.RecordSnapshotSuppressed("unchanged")
			return Snapshot{}, false
		}
		if p.pushed && now.Sub(p.lastPush) < p.minInterval {
			observability.RecordSnapshotSuppressed("interval")
			return Snapshot{}, false
		}
	}

	p.lastHash = hash
	p.lastPush = now
	p.pushed = true

	snap := Snapshot{
		ID:        uuid.New(),
		At:        now.UTC(),
		Active:    views(active),
		Completed: views(completed),
		Stats:     st,
		Forced:    forced,
	}
	observability.RecordSnapshotPublished(forced)
	return snap, true
}

func views(orders []domain.Order) []OrderView {
	out := make([]OrderView, len(orders))
	for i, o := range orders {
		out[i] = ViewOf(o)
	}
	return out
}

// fingerprint digests a reduced view of both collections: each count plus
// id, status and realized pnl for the first few orders. Cheap to compute
// every tick, yet any transition inside the window changes it.
func fingerprint(active, completed []domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "a=%d;c=%d;", len(active), len(completed))
	writeOrderKeys(&b, active)
	b.WriteByte('|')
	writeOrderKeys(&b, completed)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeOrderKeys(b *strings.Builder, orders []domain.Order) {
	n := len(orders)
	if n > fingerprintCap {
		n = fingerprintCap
	}
	for i := 0; i < n; i++ {
		o := &orders[i]
		fmt.Fprintf(b, "%d:%s:%.4f;", o.ID, o.Status, o.RealizedPnlPct)
	}
}
