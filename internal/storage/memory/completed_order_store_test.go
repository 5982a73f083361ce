package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"signal-engine/internal/domain"
	"signal-engine/internal/storage"
)

var completedBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func completedRecord(id string, symbol string, exitOffset time.Duration) *domain.CompletedOrderRecord {
	return &domain.CompletedOrderRecord{
		RecordID:       id,
		OrderID:        1,
		Symbol:         symbol,
		Side:           domain.SideLong,
		EntryPrice:     100,
		StopLoss:       90,
		TargetPrice:    120,
		ExitPrice:      120,
		ExitReason:     domain.ExitReasonTakeProfit,
		RealizedPnlPct: 20,
		SourceChannel:  "alpha",
		CreatedAt:      completedBase,
		ExitAt:         completedBase.Add(exitOffset),
	}
}

func TestCompletedOrderStore_InsertAndGet(t *testing.T) {
	store := NewCompletedOrderStore()
	ctx := context.Background()

	rec := completedRecord("r1", "BTCUSDT", time.Hour)
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "r1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.RealizedPnlPct != 20 {
		t.Errorf("RealizedPnlPct mismatch: got %f, want %f", got.RealizedPnlPct, 20.0)
	}
}

func TestCompletedOrderStore_DuplicateKey(t *testing.T) {
	store := NewCompletedOrderStore()
	ctx := context.Background()

	rec := completedRecord("r1", "BTCUSDT", time.Hour)
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, rec)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestCompletedOrderStore_NotFound(t *testing.T) {
	store := NewCompletedOrderStore()
	ctx := context.Background()

	_, err := store.GetByID(ctx, "nonexistent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCompletedOrderStore_GetBySymbolOrdered(t *testing.T) {
	store := NewCompletedOrderStore()
	ctx := context.Background()

	records := []*domain.CompletedOrderRecord{
		completedRecord("r1", "BTCUSDT", 3*time.Hour),
		completedRecord("r2", "BTCUSDT", time.Hour),
		completedRecord("r3", "ETHUSDT", 2*time.Hour),
	}
	if err := store.InsertBulk(ctx, records); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetBySymbol(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("GetBySymbol failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(result))
	}
	if result[0].RecordID != "r2" || result[1].RecordID != "r1" {
		t.Errorf("Results not ordered by exit time ASC: %s, %s",
			result[0].RecordID, result[1].RecordID)
	}
}

func TestCompletedOrderStore_GetRecentNewestFirst(t *testing.T) {
	store := NewCompletedOrderStore()
	ctx := context.Background()

	records := []*domain.CompletedOrderRecord{
		completedRecord("r1", "BTCUSDT", time.Hour),
		completedRecord("r2", "BTCUSDT", 3*time.Hour),
		completedRecord("r3", "ETHUSDT", 2*time.Hour),
	}
	if err := store.InsertBulk(ctx, records); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetRecent(ctx, 2)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(result))
	}
	if result[0].RecordID != "r2" || result[1].RecordID != "r3" {
		t.Errorf("Expected newest first [r2 r3], got [%s %s]",
			result[0].RecordID, result[1].RecordID)
	}
}

func TestCompletedOrderStore_InsertBulkPartialDuplicate(t *testing.T) {
	store := NewCompletedOrderStore()
	ctx := context.Background()

	if err := store.Insert(ctx, completedRecord("r1", "BTCUSDT", time.Hour)); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	records := []*domain.CompletedOrderRecord{
		completedRecord("r2", "BTCUSDT", 2*time.Hour),
		completedRecord("r1", "BTCUSDT", time.Hour), // duplicate
	}

	err := store.InsertBulk(ctx, records)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Verify all-or-nothing
	all, _ := store.GetAll(ctx)
	if len(all) != 1 {
		t.Errorf("Expected 1 record (no partial insert), got %d", len(all))
	}
}

func TestCompletedOrderStore_InvalidInput(t *testing.T) {
	store := NewCompletedOrderStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Insert(ctx, &domain.CompletedOrderRecord{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty record id, got %v", err)
	}
	if _, err := store.GetRecent(ctx, 0); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero limit, got %v", err)
	}
}
