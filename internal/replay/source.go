package replay

import (
	"context"
	"fmt"
	"sync"

	"signal-engine/internal/domain"
)

// quoteTable is the replay price source: it serves the latest scripted
// tick per symbol, stamped with the virtual clock so oracle freshness
// follows script time. It stands in for the HTTP ticker source.
type quoteTable struct {
	clock *clock

	mu    sync.RWMutex
	ticks map[string]Tick
}

func newQuoteTable(clk *clock) *quoteTable {
	return &quoteTable{
		clock: clk,
		ticks: make(map[string]Tick),
	}
}

// Set records the latest tick for its symbol.
func (t *quoteTable) Set(tick Tick) {
	t.mu.Lock()
	t.ticks[tick.Symbol] = tick
	t.mu.Unlock()
}

// Quote implements oracle.Source over the scripted ticks.
func (t *quoteTable) Quote(_ context.Context, symbol string) (domain.Quote, error) {
	t.mu.RLock()
	tick, ok := t.ticks[symbol]
	t.mu.RUnlock()

	if !ok {
		return domain.Quote{}, fmt.Errorf("no scripted tick for %s", symbol)
	}
	return domain.NewQuote(tick.Symbol, tick.Bid, tick.Ask, tick.Last, t.clock.Now()), nil
}

// Mid returns the mid price of the latest tick for symbol. Used as the
// sizing price lookup: the script's latest tick is the market.
func (t *quoteTable) Mid(symbol string) (float64, bool) {
	t.mu.RLock()
	tick, ok := t.ticks[symbol]
	t.mu.RUnlock()

	if !ok {
		return 0, false
	}
	q := domain.NewQuote(tick.Symbol, tick.Bid, tick.Ask, tick.Last, t.clock.Now())
	return q.Mid, q.Mid > 0
}
