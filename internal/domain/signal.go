package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSignal indicates a signal that fails structural validation
// (missing fields or threshold ordering violated for its side). Such a
// signal is rejected before admission and never retried.
var ErrInvalidSignal = errors.New("invalid signal")

// Side represents the direction of a signal or order.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// String returns the string representation of Side.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the side is a valid value.
func (s Side) IsValid() bool {
	return s == SideLong || s == SideShort
}

// Signal is an externally-sourced trade proposal, immutable once received.
type Signal struct {
	Symbol        string    // instrument, e.g. "BTCUSDT"
	Side          Side      // LONG | SHORT
	EntryPrice    float64   // desired entry level
	StopLoss      float64   // protective stop level
	TargetPrice   float64   // take-profit level, 0 when absent
	SourceChannel string    // originating channel identifier
	Confidence    float64   // extraction confidence in [0,1]
	Leverage      float64   // requested leverage, 0 means 1x
	ReceivedAt    time.Time // when the signal arrived
}

// HasTarget reports whether the signal carries a take-profit level.
func (s *Signal) HasTarget() bool {
	return s.TargetPrice > 0
}

// Validate checks structural validity and the threshold ordering invariant:
// for LONG, stop < entry < target (when target present); inverted for SHORT.
// All violations wrap ErrInvalidSignal.
func (s *Signal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidSignal)
	}
	if s.SourceChannel == "" {
		return fmt.Errorf("%w: missing source channel", ErrInvalidSignal)
	}
	if !s.Side.IsValid() {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidSignal, string(s.Side))
	}
	if s.EntryPrice <= 0 {
		return fmt.Errorf("%w: missing entry price", ErrInvalidSignal)
	}
	if s.StopLoss <= 0 {
		return fmt.Errorf("%w: missing stop loss", ErrInvalidSignal)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.4f outside [0,1]", ErrInvalidSignal, s.Confidence)
	}

	switch s.Side {
	case SideLong:
		if s.StopLoss >= s.EntryPrice {
			return fmt.Errorf("%w: long stop %.8f must be below entry %.8f", ErrInvalidSignal, s.StopLoss, s.EntryPrice)
		}
		if s.HasTarget() && s.TargetPrice <= s.EntryPrice {
			return fmt.Errorf("%w: long target %.8f must be above entry %.8f", ErrInvalidSignal, s.TargetPrice, s.EntryPrice)
		}
	case SideShort:
		if s.StopLoss <= s.EntryPrice {
			return fmt.Errorf("%w: short stop %.8f must be above entry %.8f", ErrInvalidSignal, s.StopLoss, s.EntryPrice)
		}
		if s.HasTarget() && s.TargetPrice >= s.EntryPrice {
			return fmt.Errorf("%w: short target %.8f must be below entry %.8f", ErrInvalidSignal, s.TargetPrice, s.EntryPrice)
		}
	}

	return nil
}
