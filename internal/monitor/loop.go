// Package monitor drives the periodic engine pass: refresh prices,
// advance the order state machine, persist completions, prune the dedup
// ledger, publish state to subscribers.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"signal-engine/internal/dedup"
	"signal-engine/internal/domain"
	"signal-engine/internal/health"
	"signal-engine/internal/idhash"
	"signal-engine/internal/observability"
	"signal-engine/internal/oracle"
	"signal-engine/internal/orders"
	"signal-engine/internal/publish"
	"signal-engine/internal/stats"
	"signal-engine/internal/storage"
)

// DefaultTickInterval is the spacing between monitor passes.
const DefaultTickInterval = 20 * time.Second

// Dependency names reported to the health tracker.
const (
	depPriceSource = "price_source"
	depOrderStore  = "order_store"
	depQuoteStore  = "quote_archive"
)

// Loop runs the engine tick. One pass at a time: a tick arriving while
// the previous pass is still running is skipped, never queued.
type Loop struct {
	oracle    *oracle.Oracle
	machine   *orders.Machine
	dedup     *dedup.Deduplicator
	publisher *publish.Publisher
	sinks     []publish.Sink

	orderStore   storage.CompletedOrderStore
	quoteArchive storage.QuoteArchive
	health       *health.Tracker

	interval time.Duration
	logger   *log.Logger

	mu   sync.Mutex
	busy bool
}

// Options contains configuration for creating a Loop.
type Options struct {
	// Required engine components
	Oracle    *oracle.Oracle
	Machine   *orders.Machine
	Dedup     *dedup.Deduplicator
	Publisher *publish.Publisher

	// Sinks receive every emitted snapshot, in order.
	Sinks []publish.Sink

	// Optional persistence; nil disables the corresponding step.
	OrderStore   storage.CompletedOrderStore
	QuoteArchive storage.QuoteArchive

	// Health receives per-dependency success/failure reports.
	Health *health.Tracker

	TickInterval time.Duration // Default: 20s
	Logger       *log.Logger
}

// New creates a Loop.
func New(opts Options) (*Loop, error) {
	if opts.Oracle == nil {
		return nil, errors.New("monitor: oracle is required")
	}
	if opts.Machine == nil {
		return nil, errors.New("monitor: machine is required")
	}
	if opts.Dedup == nil {
		return nil, errors.New("monitor: dedup is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("monitor: publisher is required")
	}

	interval := opts.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Loop{
		oracle:       opts.Oracle,
		machine:      opts.Machine,
		dedup:        opts.Dedup,
		publisher:    opts.Publisher,
		sinks:        opts.Sinks,
		orderStore:   opts.OrderStore,
		quoteArchive: opts.QuoteArchive,
		health:       opts.Health,
		interval:     interval,
		logger:       logger,
	}, nil
}

// Run drives ticks until the context is cancelled. The tick body runs
// inline with the select loop, so cancellation waits for the in-flight
// pass to finish before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Printf("monitor: started, tick interval %v", l.interval)

	// First pass immediately so state is fresh before the first interval.
	l.Tick(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			l.logger.Println("monitor: stopping...")
			return ctx.Err()
		case <-ticker.C:
			l.Tick(ctx, time.Now())
		}
	}
}

// Tick runs one monitor pass. Concurrent calls are skipped: a pass that
// outlives the interval must not stack behind itself.
func (l *Loop) Tick(ctx context.Context, now time.Time) {
	l.mu.Lock()
	if l.busy {
		l.mu.Unlock()
		observability.RecordTickSkipped()
		l.logger.Println("monitor: tick skipped, previous pass still running")
		return
	}
	l.busy = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.busy = false
		l.mu.Unlock()
	}()

	started := time.Now()
	clean := true

	if failed := l.refreshPrices(ctx); failed > 0 {
		clean = false
	}

	transitions := l.machine.Advance(now, l.lookup())
	for _, t := range transitions {
		observability.RecordOrderTransition(string(t.To), string(t.ExitReason))
		if t.To == domain.StatusCompleted {
			l.logger.Printf("monitor: order %d %s completed: %s at %g, pnl %.2f%%",
				t.OrderID, t.Order.Symbol, t.ExitReason, t.Order.ExitPrice, t.Order.RealizedPnlPct)
		} else {
			l.logger.Printf("monitor: order %d %s %s -> %s", t.OrderID, t.Order.Symbol, t.From, t.To)
		}
	}

	if !l.persistCompletions(ctx, transitions) {
		clean = false
	}
	if !l.archiveQuotes(ctx) {
		clean = false
	}

	if removed := l.dedup.PruneExpired(ctx, now, l.machine); removed > 0 {
		l.logger.Printf("monitor: pruned %d expired signals from the dedup ledger", removed)
	}

	l.publishState(transitions, now)

	active, completed := l.machine.Counts()
	observability.UpdateOrderCounts(active, completed)

	status := "ok"
	if clean {
		observability.RecordSuccessfulTick(now.Unix())
	} else {
		status = "degraded"
	}
	observability.RecordTick(status, time.Since(started).Seconds())
}

// refreshPrices refreshes quotes for every symbol with a non-completed
// order and reports price-source health. Returns the failure count.
func (l *Loop) refreshPrices(ctx context.Context) int {
	symbols := l.machine.ActiveSymbols()
	if len(symbols) == 0 {
		return 0
	}

	failed := l.oracle.RefreshAll(ctx, symbols)

	if l.health != nil {
		now := time.Now()
		if len(failed) > 0 {
			l.health.ReportFailure(depPriceSource,
				fmt.Errorf("refresh failed for %d of %d symbols", len(failed), len(symbols)), now)
		} else {
			l.health.ReportSuccess(depPriceSource, now)
		}
		observability.UpdatePriceFailureStreak(l.health.Streak(depPriceSource))
	}

	return len(failed)
}

// lookup builds the advance-step price view from the oracle cache.
// Symbols whose refresh failed stay absent, so their orders are skipped
// rather than settled against a stale quote.
func (l *Loop) lookup() orders.PriceLookup {
	cached := l.oracle.Cached()
	bySymbol := make(map[string]domain.Quote, len(cached))
	for _, q := range cached {
		bySymbol[q.Symbol] = q
	}
	return func(symbol string) (domain.Quote, bool) {
		q, ok := bySymbol[symbol]
		return q, ok
	}
}

// persistCompletions appends the settlement record of each order that
// completed this pass. A duplicate record id means the completion was
// already written, which is expected on replays, not an error.
func (l *Loop) persistCompletions(ctx context.Context, transitions []orders.Transition) bool {
	if l.orderStore == nil {
		return true
	}

	clean := true
	for _, t := range transitions {
		if t.To != domain.StatusCompleted {
			continue
		}

		err := l.orderStore.Insert(ctx, completedRecord(t.Order))
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			clean = false
			l.logger.Printf("monitor: persist completed order %d: %v", t.OrderID, err)
			if l.health != nil {
				l.health.ReportFailure(depOrderStore, err, time.Now())
			}
			continue
		}
		if l.health != nil {
			l.health.ReportSuccess(depOrderStore, time.Now())
		}
	}
	return clean
}

// archiveQuotes appends this pass's cached quotes to the archive.
func (l *Loop) archiveQuotes(ctx context.Context) bool {
	if l.quoteArchive == nil {
		return true
	}

	cached := l.oracle.Cached()
	if len(cached) == 0 {
		return true
	}

	quotes := make([]*domain.Quote, len(cached))
	for i := range cached {
		quotes[i] = &cached[i]
	}

	if err := l.quoteArchive.InsertBulk(ctx, quotes); err != nil {
		l.logger.Printf("monitor: archive %d quotes: %v", len(quotes), err)
		if l.health != nil {
			l.health.ReportFailure(depQuoteStore, err, time.Now())
		}
		return false
	}
	if l.health != nil {
		l.health.ReportSuccess(depQuoteStore, time.Now())
	}
	return true
}

// publishState pushes a snapshot through the publisher gates and fans
// it out to the sinks. Any transition this pass forces the push.
func (l *Loop) publishState(transitions []orders.Transition, now time.Time) {
	if len(transitions) > 0 {
		l.publisher.ForceNext()
	}

	active := l.machine.ListActive()
	completed := l.machine.ListCompleted()
	st := stats.Compute(completed)

	snap, ok := l.publisher.MaybePush(active, completed, st, now)
	if !ok {
		return
	}

	for _, sink := range l.sinks {
		sink.Publish(snap)
	}
}

// completedRecord flattens a completed order into its settlement record.
func completedRecord(o domain.Order) *domain.CompletedOrderRecord {
	rec := &domain.CompletedOrderRecord{
		RecordID:       idhash.ComputeRecordID(o.Symbol, o.EntryPrice, o.CreatedAt),
		OrderID:        o.ID,
		Symbol:         o.Symbol,
		Side:           o.Side,
		EntryPrice:     o.EntryPrice,
		StopLoss:       o.StopLoss,
		TargetPrice:    o.TargetPrice,
		ExitPrice:      o.ExitPrice,
		ExitReason:     o.ExitReason,
		HoldMinutes:    o.HoldMinutes,
		RealizedPnlPct: o.RealizedPnlPct,
		SourceChannel:  o.SourceChannel,
		CreatedAt:      o.CreatedAt,
	}
	if o.ExitAt != nil {
		rec.ExitAt = *o.ExitAt
	}
	return rec
}
