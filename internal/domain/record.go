package domain

import "time"

// CompletedOrderRecord is the flat settlement record handed to the
// persistence layer when an order completes. RecordID is a deterministic
// hash of (symbol, entry price, created at) so replays of the same
// completion never append twice.
type CompletedOrderRecord struct {
	RecordID       string // deterministic hash, primary key
	OrderID        uint64 // engine-assigned order id
	Symbol         string
	Side           Side
	EntryPrice     float64
	StopLoss       float64
	TargetPrice    float64 // 0 when the signal carried no target
	ExitPrice      float64
	ExitReason     ExitReason
	HoldMinutes    int64
	RealizedPnlPct float64
	SourceChannel  string
	CreatedAt      time.Time
	ExitAt         time.Time
}

// Order reconstructs the completed order this record was flattened
// from. Used when restoring engine state from the archive.
func (r *CompletedOrderRecord) Order() Order {
	exitAt := r.ExitAt
	return Order{
		ID:             r.OrderID,
		Symbol:         r.Symbol,
		Side:           r.Side,
		EntryPrice:     r.EntryPrice,
		StopLoss:       r.StopLoss,
		TargetPrice:    r.TargetPrice,
		Status:         StatusCompleted,
		ExitPrice:      r.ExitPrice,
		ExitReason:     r.ExitReason,
		ExitAt:         &exitAt,
		HoldMinutes:    r.HoldMinutes,
		RealizedPnlPct: r.RealizedPnlPct,
		SourceChannel:  r.SourceChannel,
		CreatedAt:      r.CreatedAt,
	}
}

// ExecutedSignalRecord is one entry of the dedup cooldown ledger.
type ExecutedSignalRecord struct {
	Key        string // full signal key (with time bucket)
	BaseKey    string // key without the time bucket
	Symbol     string
	Side       Side
	EntryPrice float64
	ExecutedAt time.Time
}
