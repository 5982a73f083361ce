package replay

import (
	"context"
	"log"
	"sync"
	"time"

	"signal-engine/internal/dedup"
	"signal-engine/internal/domain"
	"signal-engine/internal/exchange"
	"signal-engine/internal/ingest"
	"signal-engine/internal/monitor"
	"signal-engine/internal/oracle"
	"signal-engine/internal/orders"
	"signal-engine/internal/publish"
	"signal-engine/internal/sizing"
	"signal-engine/internal/stats"
	"signal-engine/internal/storage"
	"signal-engine/internal/storage/memory"
)

// DefaultBalance is the account balance sized against when Options
// leaves it zero.
const DefaultBalance = 10000

// Options configures a replay run. Zero values choose the component
// defaults; stores default to fresh in-memory implementations so a run
// never touches live data.
type Options struct {
	// Events is the script, typically LoadScript output. The runner
	// sorts its own copy, so callers may hand events in any order.
	Events []*Event

	// Engine tuning, zero = component default.
	Cooldown        time.Duration
	OrderExpiry     time.Duration
	MinPushInterval time.Duration
	Balance         float64
	BaseRiskPct     float64

	// Venue receives placements; nil selects the paper venue.
	Venue exchange.OrderPlacer

	// OrderStore receives completion records; nil selects in-memory.
	OrderStore storage.CompletedOrderStore

	// QuoteArchive receives per-pass quote samples; nil selects in-memory.
	QuoteArchive storage.QuoteArchive

	// Sinks receive every published snapshot, in order.
	Sinks []publish.Sink

	Logger *log.Logger
}

// Runner owns a deterministic engine instance and walks a script
// through it: all events at an instant are applied, then one monitor
// pass runs at that instant.
type Runner struct {
	events []*Event

	clk       *clock
	quotes    *quoteTable
	oracle    *oracle.Oracle
	machine   *orders.Machine
	intake    *ingest.Service
	loop      *monitor.Loop
	snapshots *snapshotCounter
	logger    *log.Logger
}

// Summary is the outcome of one replay run.
type Summary struct {
	Events            int       `json:"events"`
	TickEvents        int       `json:"tick_events"`
	SignalEvents      int       `json:"signal_events"`
	SignalsAccepted   int       `json:"signals_accepted"`
	SignalsRejected   int       `json:"signals_rejected"`
	PlacementFailures int       `json:"placement_failures"`
	EnginePasses      int       `json:"engine_passes"`
	Snapshots         int       `json:"snapshots"`
	ActiveOrders      int       `json:"active_orders"`
	CompletedOrders   int       `json:"completed_orders"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`

	Stats domain.OutcomeStatistics `json:"stats"`
}

// NewRunner assembles a fresh engine around the script.
func NewRunner(opts Options) (*Runner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	balance := opts.Balance
	if balance <= 0 {
		balance = DefaultBalance
	}

	clk := newClock(time.Time{})
	quotes := newQuoteTable(clk)
	orc := oracle.New(quotes, oracle.WithClock(clk.Now), oracle.WithLogger(logger))

	var machineOpts []orders.Option
	if opts.OrderExpiry > 0 {
		machineOpts = append(machineOpts, orders.WithExpiry(opts.OrderExpiry))
	}
	machineOpts = append(machineOpts, orders.WithLogger(logger))
	machine := orders.New(machineOpts...)

	dedupOpts := []dedup.Option{
		dedup.WithStore(memory.NewExecutedSignalStore()),
		dedup.WithLogger(logger),
	}
	if opts.Cooldown > 0 {
		dedupOpts = append(dedupOpts, dedup.WithCooldown(opts.Cooldown))
	}
	dd := dedup.New(dedupOpts...)

	sizerOpts := []sizing.Option{sizing.WithLogger(logger)}
	if opts.BaseRiskPct > 0 {
		sizerOpts = append(sizerOpts, sizing.WithBaseRiskPct(opts.BaseRiskPct))
	}
	sizer := sizing.New(
		sizing.StatsFunc(func() domain.OutcomeStatistics {
			return stats.Compute(machine.ListCompleted())
		}),
		quotes.Mid,
		sizerOpts...,
	)

	venue := opts.Venue
	if venue == nil {
		venue = exchange.NewPaperVenue(logger)
	}

	intake, err := ingest.New(ingest.Options{
		Dedup:   dd,
		Machine: machine,
		Sizer:   sizer,
		Venue:   venue,
		Balance: balance,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	pubOpts := []publish.Option{publish.WithLogger(logger)}
	if opts.MinPushInterval > 0 {
		pubOpts = append(pubOpts, publish.WithMinInterval(opts.MinPushInterval))
	}
	publisher := publish.New(pubOpts...)

	orderStore := opts.OrderStore
	if orderStore == nil {
		orderStore = memory.NewCompletedOrderStore()
	}
	archive := opts.QuoteArchive
	if archive == nil {
		archive = memory.NewQuoteArchive()
	}

	counter := &snapshotCounter{}
	sinks := make([]publish.Sink, 0, len(opts.Sinks)+1)
	sinks = append(sinks, opts.Sinks...)
	sinks = append(sinks, counter)

	loop, err := monitor.New(monitor.Options{
		Oracle:       orc,
		Machine:      machine,
		Dedup:        dd,
		Publisher:    publisher,
		Sinks:        sinks,
		OrderStore:   orderStore,
		QuoteArchive: archive,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	events := make([]*Event, len(opts.Events))
	copy(events, opts.Events)
	SortEvents(events)

	return &Runner{
		events:    events,
		clk:       clk,
		quotes:    quotes,
		oracle:    orc,
		machine:   machine,
		intake:    intake,
		loop:      loop,
		snapshots: counter,
		logger:    logger,
	}, nil
}

// Machine exposes the order state machine for post-run inspection.
func (r *Runner) Machine() *orders.Machine {
	return r.machine
}

// Run replays the script. The context aborts between instants; the
// summary reflects everything applied up to the stop.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	if len(r.events) == 0 {
		return summary, nil
	}

	summary.Start = r.events[0].At
	summary.End = r.events[len(r.events)-1].At

	i := 0
	for i < len(r.events) {
		if err := ctx.Err(); err != nil {
			r.finish(summary)
			return summary, err
		}

		at := r.events[i].At
		r.clk.Set(at)

		for i < len(r.events) && r.events[i].At.Equal(at) {
			r.apply(ctx, r.events[i], summary)
			summary.Events++
			i++
		}

		r.loop.Tick(ctx, at)
		summary.EnginePasses++
	}

	r.finish(summary)
	return summary, nil
}

// apply feeds one event into the engine.
func (r *Runner) apply(ctx context.Context, e *Event, summary *Summary) {
	switch e.Type {
	case EventTypeTick:
		summary.TickEvents++
		r.quotes.Set(*e.Tick)
		// Eager push mirrors the live websocket feed; the monitor pass
		// re-pulls tracked symbols through the same table.
		r.oracle.Put(domain.NewQuote(e.Tick.Symbol, e.Tick.Bid, e.Tick.Ask, e.Tick.Last, e.At))

	case EventTypeSignal:
		summary.SignalEvents++
		res, err := r.intake.Submit(ctx, e.Signal, e.At)
		if err != nil {
			summary.PlacementFailures++
			r.logger.Printf("replay: signal %s %s placement failed: %v",
				e.Signal.Symbol, e.Signal.Side, err)
			return
		}
		if res.Accepted {
			summary.SignalsAccepted++
			r.logger.Printf("replay: signal %s %s accepted as order %d (qty %g)",
				e.Signal.Symbol, e.Signal.Side, res.Order.ID, res.Order.Quantity)
		} else {
			summary.SignalsRejected++
			r.logger.Printf("replay: signal %s %s rejected: %s",
				e.Signal.Symbol, e.Signal.Side, res.Reason)
		}
	}
}

func (r *Runner) finish(summary *Summary) {
	summary.Snapshots = r.snapshots.count()
	summary.ActiveOrders, summary.CompletedOrders = r.machine.Counts()
	summary.Stats = stats.Compute(r.machine.ListCompleted())
}

// snapshotCounter counts snapshots the publisher emitted during a run.
type snapshotCounter struct {
	mu sync.Mutex
	n  int
}

func (c *snapshotCounter) Publish(publish.Snapshot) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *snapshotCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

var _ publish.Sink = (*snapshotCounter)(nil)
