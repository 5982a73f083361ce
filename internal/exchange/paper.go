package exchange

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// PaperVenue acknowledges every valid order without touching a real
// venue. The server runs against it unless live credentials are
// configured, so the whole lifecycle is exercisable with zero capital.
type PaperVenue struct {
	logger *log.Logger

	mu     sync.Mutex
	seq    uint64
	placed []OrderReceipt
}

// NewPaperVenue creates a paper venue.
func NewPaperVenue(logger *log.Logger) *PaperVenue {
	if logger == nil {
		logger = log.Default()
	}
	return &PaperVenue{logger: logger}
}

var _ OrderPlacer = (*PaperVenue)(nil)

// PlaceOrder validates and records the order, returning a synthetic
// receipt immediately.
func (p *PaperVenue) PlaceOrder(ctx context.Context, req OrderRequest) (OrderReceipt, error) {
	if err := req.Validate(); err != nil {
		return OrderReceipt{}, err
	}
	if err := ctx.Err(); err != nil {
		return OrderReceipt{}, err
	}

	p.mu.Lock()
	p.seq++
	receipt := OrderReceipt{
		VenueOrderID: fmt.Sprintf("paper-%d", p.seq),
		Symbol:       req.Symbol,
		Side:         req.Side,
		Quantity:     req.Quantity,
		Price:        req.Price,
		PlacedAt:     time.Now().UTC(),
	}
	p.placed = append(p.placed, receipt)
	p.mu.Unlock()

	p.logger.Printf("paper venue: %s %s %s qty=%f", receipt.VenueOrderID, venueSide(req.Side), req.Symbol, req.Quantity)
	return receipt, nil
}

// Placed returns copies of every receipt issued so far.
func (p *PaperVenue) Placed() []OrderReceipt {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]OrderReceipt, len(p.placed))
	copy(out, p.placed)
	return out
}
