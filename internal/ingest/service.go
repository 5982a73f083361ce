// Package ingest is the admission pipeline. One inbound signal runs the
// gauntlet in strict order: validation, dedup, channel risk limits,
// sizing, state machine admission, venue placement. Only after the venue
// accepted the order is the signal marked executed, so a venue outage
// leaves the signal eligible for its next occurrence.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"signal-engine/internal/dedup"
	"signal-engine/internal/domain"
	"signal-engine/internal/exchange"
	"signal-engine/internal/observability"
	"signal-engine/internal/orders"
	"signal-engine/internal/risk"
	"signal-engine/internal/sizing"
)

// Reject reasons reported in admission results.
const (
	ReasonInvalidSignal  = "invalid_signal"
	ReasonDuplicate      = "duplicate_signal"
	ReasonDuplicateOrder = "duplicate_order"
	ReasonNoSize         = "no_size"
	ReasonRiskCap        = "risk_above_channel_limit"
)

// RiskGate is the channel limits check.
type RiskGate interface {
	Evaluate(in risk.Input) risk.Decision
}

// QuantitySizer computes position quantities.
type QuantitySizer interface {
	ComputeSize(symbol string, confidence, balance, leverage float64) sizing.Result
}

// Result reports one admission attempt. Rejections are normal operation:
// the caller gets a reason, not an error. Errors are reserved for venue
// failures, which the upstream may retry on the signal's next occurrence.
type Result struct {
	Accepted bool
	Reason   string
	Order    domain.Order
	Receipt  exchange.OrderReceipt
	RiskPct  float64
}

// Service wires the admission pipeline together.
type Service struct {
	dedup   *dedup.Deduplicator
	machine *orders.Machine
	gate    RiskGate
	sizer   QuantitySizer
	venue   exchange.OrderPlacer
	balance float64
	logger  *log.Logger
}

// Options for creating a Service.
type Options struct {
	Dedup   *dedup.Deduplicator
	Machine *orders.Machine
	Gate    RiskGate
	Sizer   QuantitySizer
	Venue   exchange.OrderPlacer

	// Balance is the account balance handed to the sizer.
	Balance float64

	Logger *log.Logger
}

// New creates a Service. Dedup, machine, sizer and venue are required;
// a nil gate disables channel limits.
func New(opts Options) (*Service, error) {
	if opts.Dedup == nil {
		return nil, errors.New("ingest: dedup is required")
	}
	if opts.Machine == nil {
		return nil, errors.New("ingest: machine is required")
	}
	if opts.Sizer == nil {
		return nil, errors.New("ingest: sizer is required")
	}
	if opts.Venue == nil {
		return nil, errors.New("ingest: venue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		dedup:   opts.Dedup,
		machine: opts.Machine,
		gate:    opts.Gate,
		sizer:   opts.Sizer,
		venue:   opts.Venue,
		balance: opts.Balance,
		logger:  logger,
	}, nil
}

// Submit runs one signal through the pipeline. The returned error is
// non-nil only for venue placement failures; every in-engine rejection
// comes back as a Result with Accepted=false and a reason.
func (s *Service) Submit(ctx context.Context, sig *domain.Signal, now time.Time) (Result, error) {
	observability.RecordSignalReceived()

	if err := sig.Validate(); err != nil {
		observability.RecordSignalRejected(ReasonInvalidSignal)
		s.logger.Printf("ingest: rejected invalid signal: %v", err)
		return Result{Reason: ReasonInvalidSignal}, nil
	}

	key := domain.NewSignalKey(sig)
	if !s.dedup.Accept(key, now) {
		observability.RecordSignalRejected(ReasonDuplicate)
		s.logger.Printf("ingest: duplicate signal %s %s from %s within cooldown",
			sig.Symbol, sig.Side, sig.SourceChannel)
		return Result{Reason: ReasonDuplicate}, nil
	}

	if s.gate != nil {
		decision := s.gate.Evaluate(risk.Input{
			Channel:    sig.SourceChannel,
			Leverage:   sig.Leverage,
			Confidence: sig.Confidence,
			OpenOrders: s.openOrdersFor(sig.SourceChannel),
		})
		if !decision.Allowed {
			observability.RecordSignalRejected(decision.DenyReason)
			s.logger.Printf("ingest: risk gate denied %s from %s: %s",
				sig.Symbol, sig.SourceChannel, decision.DenyReason)
			return Result{Reason: decision.DenyReason}, nil
		}
		return s.admit(ctx, sig, key, decision.MaxRiskPct, now)
	}

	return s.admit(ctx, sig, key, 0, now)
}

// admit sizes, admits and places the order. riskCap > 0 bounds the
// channel's risk percentage post-sizing.
func (s *Service) admit(ctx context.Context, sig *domain.Signal, key domain.SignalKey, riskCap float64, now time.Time) (Result, error) {
	size := s.sizer.ComputeSize(sig.Symbol, sig.Confidence, s.balance, sig.Leverage)
	if size.Quantity <= 0 {
		observability.RecordSignalRejected(ReasonNoSize)
		s.logger.Printf("ingest: no size for %s (balance or price unavailable)", sig.Symbol)
		return Result{Reason: ReasonNoSize}, nil
	}
	if riskCap > 0 && size.RiskPct > riskCap {
		observability.RecordSignalRejected(ReasonRiskCap)
		s.logger.Printf("ingest: %s risk %.2f%% above channel cap %.2f%%",
			sig.Symbol, size.RiskPct, riskCap)
		return Result{Reason: ReasonRiskCap}, nil
	}

	order, err := s.machine.Admit(sig, size.Quantity, now)
	if err != nil {
		reason := ReasonInvalidSignal
		if errors.Is(err, orders.ErrDuplicateOrder) {
			reason = ReasonDuplicateOrder
		}
		observability.RecordSignalRejected(reason)
		s.logger.Printf("ingest: admission rejected: %v", err)
		return Result{Reason: reason}, nil
	}

	receipt, err := s.venue.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:   order.Symbol,
		Side:     order.Side,
		Type:     exchange.OrderTypeLimit,
		Quantity: order.Quantity,
		Price:    order.EntryPrice,
	})
	if err != nil {
		// The unfunded order must not keep ticking, and the signal
		// stays unmarked so its next occurrence can retry.
		s.machine.Withdraw(order.ID)
		s.logger.Printf("ingest: venue placement failed for %s, admission rolled back: %v", order.Symbol, err)
		return Result{}, fmt.Errorf("place order %s: %w", order.Symbol, err)
	}

	s.dedup.MarkExecuted(ctx, key, sig, now)
	observability.RecordOrderAdmitted()

	active, completed := s.machine.Counts()
	observability.UpdateOrderCounts(active, completed)

	s.logger.Printf("ingest: admitted order %d %s %s entry=%g qty=%g risk=%.2f%% venue=%s",
		order.ID, order.Side, order.Symbol, order.EntryPrice, order.Quantity, size.RiskPct, receipt.VenueOrderID)

	return Result{
		Accepted: true,
		Order:    order,
		Receipt:  receipt,
		RiskPct:  size.RiskPct,
	}, nil
}

// openOrdersFor counts non-completed orders attributed to a channel.
func (s *Service) openOrdersFor(channel string) int {
	n := 0
	for _, o := range s.machine.ListActive() {
		if o.SourceChannel == channel {
			n++
		}
	}
	return n
}
