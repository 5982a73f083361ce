package domain

import "time"

// OrderStatus represents the lifecycle state of a tracked order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusActive    OrderStatus = "ACTIVE"
	StatusEntered   OrderStatus = "ENTERED"
	StatusCompleted OrderStatus = "COMPLETED"
)

// String returns the string representation of OrderStatus.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusEntered, StatusCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted
}

// ExitReason explains why an order reached COMPLETED.
type ExitReason string

const (
	ExitReasonNone       ExitReason = ""
	ExitReasonTakeProfit ExitReason = "TAKE_PROFIT"
	ExitReasonStopLoss   ExitReason = "STOP_LOSS"
	ExitReasonExpired    ExitReason = "EXPIRED"
)

// String returns the string representation of ExitReason.
func (r ExitReason) String() string {
	return string(r)
}

// Order is an admitted signal moving through the settlement lifecycle.
// Mutable fields are owned exclusively by the order state machine; exit
// fields stay zero until the order is COMPLETED, then are all set together.
type Order struct {
	ID             uint64  // opaque, monotonically assigned
	Symbol         string  // instrument
	Side           Side    // LONG | SHORT
	EntryPrice     float64 // entry trigger level
	StopLoss       float64 // stop settlement level
	TargetPrice    float64 // take-profit settlement level, 0 when absent
	Quantity       float64 // sized quantity in base units
	CurrentPrice   float64 // latest mid, 0 until first refresh
	Status         OrderStatus
	EnteredAt      *time.Time // nil until the entry trigger fires
	ExitPrice      float64
	ExitReason     ExitReason
	ExitAt         *time.Time
	HoldMinutes    int64
	RealizedPnlPct float64 // percentage return realized at exit
	SourceChannel  string
	CreatedAt      time.Time
}

// PnlPct computes the direction-aware percentage return for an exit at
// the given price: LONG (exit-entry)/entry*100, SHORT mirrored.
func PnlPct(side Side, entry, exit float64) float64 {
	if entry == 0 {
		return 0
	}
	if side == SideShort {
		return (entry - exit) / entry * 100
	}
	return (exit - entry) / entry * 100
}
