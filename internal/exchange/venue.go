// Package exchange talks to the execution venue. The engine places an
// order exactly once per admitted signal; everything after that is
// price-driven bookkeeping, so the surface here is deliberately small.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signal-engine/internal/domain"
)

// ErrVenueRejected marks a venue-level rejection (bad symbol, size below
// lot minimum, insufficient margin). Rejections are not retried.
var ErrVenueRejected = errors.New("venue rejected order")

// OrderType is the venue order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

// OrderRequest is a placement instruction for the venue.
type OrderRequest struct {
	Symbol   string
	Side     domain.Side
	Type     OrderType
	Quantity float64
	Price    float64 // required for limit orders, ignored for market
}

// Validate rejects requests the venue would bounce anyway.
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("order request: missing symbol")
	}
	if !r.Side.IsValid() {
		return fmt.Errorf("order request: unknown side %q", string(r.Side))
	}
	if r.Type != OrderTypeMarket && r.Type != OrderTypeLimit {
		return fmt.Errorf("order request: unknown type %q", string(r.Type))
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("order request: quantity must be positive")
	}
	if r.Type == OrderTypeLimit && r.Price <= 0 {
		return fmt.Errorf("order request: limit order needs a price")
	}
	return nil
}

// OrderReceipt is the venue's acknowledgment of a placed order.
type OrderReceipt struct {
	VenueOrderID string
	Symbol       string
	Side         domain.Side
	Quantity     float64
	Price        float64
	PlacedAt     time.Time
}

// OrderPlacer is the single contract the admission pipeline needs from a
// venue.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderReceipt, error)
}

// venueSide maps the engine's direction onto the venue's order side.
func venueSide(side domain.Side) string {
	if side == domain.SideShort {
		return "Sell"
	}
	return "Buy"
}
