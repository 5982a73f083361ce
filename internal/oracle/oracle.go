// Package oracle caches instrument quotes and fetches them on demand
// from a pluggable price source.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"signal-engine/internal/domain"
	"signal-engine/internal/observability"
)

// ErrPriceUnavailable indicates no fresh quote could be produced for a
// symbol. Callers skip the affected order and move on.
var ErrPriceUnavailable = errors.New("price unavailable")

// DefaultTTL is how long a cached quote is served before the source is
// consulted again.
const DefaultTTL = 5 * time.Second

// Source fetches a fresh quote for one symbol from an upstream venue.
type Source interface {
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
}

// Oracle serves quotes out of a TTL cache, falling through to its
// source on misses. Feeds may push quotes in via Put.
type Oracle struct {
	source Source
	ttl    time.Duration
	logger *log.Logger
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]domain.Quote
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithTTL overrides the cache freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(o *Oracle) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *Oracle) {
		o.logger = logger
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(o *Oracle) {
		o.now = now
	}
}

// New creates an Oracle over the given source. A nil source is allowed;
// the oracle then serves only pushed quotes.
func New(source Source, opts ...Option) *Oracle {
	o := &Oracle{
		source: source,
		ttl:    DefaultTTL,
		logger: log.Default(),
		now:    time.Now,
		cache:  make(map[string]domain.Quote),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Price returns a quote for symbol, serving from cache while fresh and
// consulting the source otherwise. Returns ErrPriceUnavailable when the
// source fails or no source is configured.
func (o *Oracle) Price(ctx context.Context, symbol string) (domain.Quote, error) {
	symbol = strings.ToUpper(symbol)

	if q, ok := o.cached(symbol); ok {
		observability.RecordCacheHit()
		return q, nil
	}
	observability.RecordCacheMiss()

	return o.refresh(ctx, symbol)
}

// RefreshAll fetches fresh quotes for every symbol, bypassing the cache,
// and returns the symbols that could not be refreshed. Symbols are
// deduplicated; failures are logged and do not stop the pass.
func (o *Oracle) RefreshAll(ctx context.Context, symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	var failed []string

	for _, symbol := range symbols {
		symbol = strings.ToUpper(symbol)
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}

		if _, err := o.refresh(ctx, symbol); err != nil {
			o.logger.Printf("[WARN] oracle: refresh %s: %v", symbol, err)
			failed = append(failed, symbol)
		}
	}

	return failed
}

// Put stores a quote pushed by a feed. Quotes without a timestamp are
// stamped with the current time.
func (o *Oracle) Put(q domain.Quote) {
	q.Symbol = strings.ToUpper(q.Symbol)
	if q.Symbol == "" {
		return
	}
	if q.At.IsZero() {
		q.At = o.now().UTC()
	}

	o.mu.Lock()
	o.cache[q.Symbol] = q
	o.mu.Unlock()
}

// Cached returns all quotes still within the freshness window, sorted
// by symbol.
func (o *Oracle) Cached() []domain.Quote {
	now := o.now()

	o.mu.RLock()
	quotes := make([]domain.Quote, 0, len(o.cache))
	for _, q := range o.cache {
		if now.Sub(q.At) <= o.ttl {
			quotes = append(quotes, q)
		}
	}
	o.mu.RUnlock()

	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].Symbol < quotes[j].Symbol
	})

	return quotes
}

func (o *Oracle) cached(symbol string) (domain.Quote, bool) {
	o.mu.RLock()
	q, ok := o.cache[symbol]
	o.mu.RUnlock()

	if !ok || o.now().Sub(q.At) > o.ttl {
		return domain.Quote{}, false
	}

	return q, true
}

func (o *Oracle) refresh(ctx context.Context, symbol string) (domain.Quote, error) {
	if o.source == nil {
		return domain.Quote{}, fmt.Errorf("%s: %w", symbol, ErrPriceUnavailable)
	}

	start := time.Now()
	q, err := o.source.Quote(ctx, symbol)
	observability.RecordPriceFetch(time.Since(start).Seconds(), err)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%s: %w: %w", symbol, ErrPriceUnavailable, err)
	}

	q.Symbol = strings.ToUpper(q.Symbol)
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	if q.At.IsZero() {
		q.At = o.now().UTC()
	}

	o.mu.Lock()
	o.cache[q.Symbol] = q
	o.mu.Unlock()

	return q, nil
}
