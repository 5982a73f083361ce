// Package dedup tracks recently executed signals so repeats within the
// cooldown window are rejected before any order is opened.
package dedup

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"signal-engine/internal/domain"
	"signal-engine/internal/storage"
)

// DefaultCooldown is how long an executed signal blocks repeats of
// itself and of near-identical variants.
const DefaultCooldown = 4 * time.Hour

// OpenOrderChecker reports whether a non-completed order exists for a
// symbol/side pair. Ledger entries backing open orders survive pruning.
type OpenOrderChecker interface {
	HasOpenOrder(symbol string, side domain.Side) bool
}

// Deduplicator is the cooldown ledger. Accept is a pure read; only
// MarkExecuted writes, and callers invoke it strictly after the venue
// accepted the order.
type Deduplicator struct {
	cooldown time.Duration
	store    storage.ExecutedSignalStore
	logger   *log.Logger

	mu sync.RWMutex
	// ledger indexes each record under both its full and base key
	ledger map[string]domain.ExecutedSignalRecord
}

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithCooldown overrides the cooldown window.
func WithCooldown(d time.Duration) Option {
	return func(dd *Deduplicator) {
		if d > 0 {
			dd.cooldown = d
		}
	}
}

// WithStore attaches a backing store so the ledger survives restarts.
func WithStore(store storage.ExecutedSignalStore) Option {
	return func(dd *Deduplicator) {
		dd.store = store
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *log.Logger) Option {
	return func(dd *Deduplicator) {
		dd.logger = logger
	}
}

// New creates a Deduplicator. Without a store the ledger is in-memory
// only.
func New(opts ...Option) *Deduplicator {
	d := &Deduplicator{
		cooldown: DefaultCooldown,
		logger:   log.Default(),
		ledger:   make(map[string]domain.ExecutedSignalRecord),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Load restores ledger entries still inside the cooldown window from
// the backing store. Older entries are irrelevant here: re-admission of
// a symbol/side still open is caught by the order duplicate guard.
func (d *Deduplicator) Load(ctx context.Context, now time.Time) error {
	if d.store == nil {
		return nil
	}

	records, err := d.store.GetSince(ctx, now.Add(-d.cooldown))
	if err != nil {
		return fmt.Errorf("load executed signals: %w", err)
	}

	d.mu.Lock()
	for _, r := range records {
		d.ledger[r.Key] = *r
		if r.BaseKey != "" {
			d.ledger[r.BaseKey] = *r
		}
	}
	d.mu.Unlock()

	d.logger.Printf("[INFO] dedup: restored %d executed signals", len(records))
	return nil
}

// Accept reports whether a signal with this key may proceed. It never
// writes: a signal that later fails validation, risk, or the venue must
// not poison the ledger for its successors.
func (d *Deduplicator) Accept(key domain.SignalKey, now time.Time) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if rec, ok := d.ledger[key.Full]; ok && now.Sub(rec.ExecutedAt) < d.cooldown {
		return false
	}
	if rec, ok := d.ledger[key.Base]; ok && now.Sub(rec.ExecutedAt) < d.cooldown {
		return false
	}
	return true
}

// MarkExecuted records a successful execution under both the full and
// base key and persists the entry when a store is attached.
func (d *Deduplicator) MarkExecuted(ctx context.Context, key domain.SignalKey, sig *domain.Signal, now time.Time) {
	rec := domain.ExecutedSignalRecord{
		Key:        key.Full,
		BaseKey:    key.Base,
		Symbol:     sig.Symbol,
		Side:       sig.Side,
		EntryPrice: sig.EntryPrice,
		ExecutedAt: now.UTC(),
	}

	d.mu.Lock()
	d.ledger[key.Full] = rec
	d.ledger[key.Base] = rec
	d.mu.Unlock()

	if d.store != nil {
		if err := d.store.Upsert(ctx, &rec); err != nil {
			d.logger.Printf("[WARN] dedup: persist executed signal: %v", err)
		}
	}
}

// PruneExpired drops ledger entries past the cooldown unless an open
// order still references their symbol/side. Returns the number of
// signals removed. The store cutoff is held back to the oldest retained
// entry so retained rows survive in storage too.
func (d *Deduplicator) PruneExpired(ctx context.Context, now time.Time, open OpenOrderChecker) int {
	cutoff := now.Add(-d.cooldown)

	d.mu.Lock()
	removed := 0
	storeCutoff := cutoff
	seen := make(map[string]struct{})
	for k, rec := range d.ledger {
		if !rec.ExecutedAt.Before(cutoff) {
			continue
		}
		if open != nil && open.HasOpenOrder(rec.Symbol, rec.Side) {
			if rec.ExecutedAt.Before(storeCutoff) {
				storeCutoff = rec.ExecutedAt
			}
			continue
		}
		delete(d.ledger, k)
		if _, dup := seen[rec.Key]; !dup {
			seen[rec.Key] = struct{}{}
			removed++
		}
	}
	d.mu.Unlock()

	if d.store != nil && removed > 0 {
		if _, err := d.store.DeleteBefore(ctx, storeCutoff); err != nil {
			d.logger.Printf("[WARN] dedup: prune executed signals: %v", err)
		}
	}

	return removed
}

// Size returns the number of ledger index entries.
func (d *Deduplicator) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.ledger)
}
