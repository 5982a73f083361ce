// Package sizing computes risk-adjusted position quantities from rolling
// outcome statistics. The base risk percentage is scaled by multiplicative
// factors (win rate, profit factor, loss streak, signal quality) and
// clamped, so one component's extreme reading can never blow up the size.
package sizing

import (
	"log"
	"math"
	"strings"

	"signal-engine/internal/domain"
)

const (
	// DefaultBaseRiskPct is the unadjusted fraction of the account
	// risked per trade, in percent.
	DefaultBaseRiskPct = 2.0

	// MinRiskPct and MaxRiskPct bound the adjusted risk percentage.
	MinRiskPct = 0.1
	MaxRiskPct = 5.0

	// DefaultPrecision is the quantity decimal count used when no
	// per-symbol override is configured.
	DefaultPrecision = 3
)

// PriceLookup returns the current mid price for a symbol. The second
// return is false when no fresh price is available.
type PriceLookup func(symbol string) (float64, bool)

// StatsProvider supplies the outcome statistics the sizer scales with.
type StatsProvider interface {
	Statistics() domain.OutcomeStatistics
}

// StatsFunc adapts a plain function to StatsProvider.
type StatsFunc func() domain.OutcomeStatistics

func (f StatsFunc) Statistics() domain.OutcomeStatistics { return f() }

// Result is a computed position. A zero Quantity means "do not place":
// callers must never treat it as a valid zero-risk trade.
type Result struct {
	Quantity float64
	RiskPct  float64
	Price    float64
}

// Sizer converts account balance, leverage and signal confidence into an
// order quantity.
type Sizer struct {
	baseRiskPct float64
	precision   int
	symbolPrec  map[string]int
	stats       StatsProvider
	price       PriceLookup
	logger      *log.Logger
}

// Option configures a Sizer.
type Option func(*Sizer)

// WithBaseRiskPct overrides the unadjusted per-trade risk percentage.
func WithBaseRiskPct(pct float64) Option {
	return func(s *Sizer) {
		if pct > 0 {
			s.baseRiskPct = pct
		}
	}
}

// WithPrecision sets the default quantity decimal count.
func WithPrecision(decimals int) Option {
	return func(s *Sizer) {
		if decimals >= 0 {
			s.precision = decimals
		}
	}
}

// WithSymbolPrecision overrides the quantity decimal count for one symbol.
func WithSymbolPrecision(symbol string, decimals int) Option {
	return func(s *Sizer) {
		if decimals >= 0 {
			s.symbolPrec[strings.ToUpper(symbol)] = decimals
		}
	}
}

// WithLogger sets the logger used for sizing decisions.
func WithLogger(logger *log.Logger) Option {
	return func(s *Sizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Sizer. stats may be nil, in which case every computation
// uses neutral statistics (all adjustment factors 1.0).
func New(stats StatsProvider, price PriceLookup, opts ...Option) *Sizer {
	s := &Sizer{
		baseRiskPct: DefaultBaseRiskPct,
		precision:   DefaultPrecision,
		symbolPrec:  make(map[string]int),
		stats:       stats,
		price:       price,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ComputeSize returns the quantity to order for the given account state.
// The zero Result is the "no size" sentinel: it is returned when the
// balance is not positive or no price is available for the symbol.
func (s *Sizer) ComputeSize(symbol string, confidence, balance, leverage float64) Result {
	if balance <= 0 {
		return Result{}
	}

	symbol = strings.ToUpper(symbol)
	price, ok := s.price(symbol)
	if !ok || price <= 0 {
		s.logger.Printf("sizing: no price for %s, returning no size", symbol)
		return Result{}
	}

	st := domain.NeutralStatistics()
	if s.stats != nil {
		st = s.stats.Statistics()
	}
	if leverage <= 0 {
		leverage = 1.0
	}

	pct := AdjustedRiskPct(s.baseRiskPct, st, confidence)
	quantity := truncateTo(balance*(pct/100)*leverage/price, s.precisionFor(symbol))

	return Result{Quantity: quantity, RiskPct: pct, Price: price}
}

func (s *Sizer) precisionFor(symbol string) int {
	if p, ok := s.symbolPrec[symbol]; ok {
		return p
	}
	return s.precision
}

// AdjustedRiskPct applies the multiplicative adjustment factors to the
// base risk percentage and clamps the product to [MinRiskPct, MaxRiskPct].
func AdjustedRiskPct(base float64, st domain.OutcomeStatistics, confidence float64) float64 {
	pct := base *
		winRateFactor(st.RecentWinRate) *
		profitFactorAdjustment(st.ProfitFactor) *
		consecutiveLossFactor(st.MaxConsecutiveLosses) *
		qualityFactor(confidence)

	return math.Min(math.Max(pct, MinRiskPct), MaxRiskPct)
}

// winRateFactor scales risk up on a hot streak and down on a cold one.
func winRateFactor(recent float64) float64 {
	switch {
	case recent > 0.6:
		return 1.2
	case recent < 0.4:
		return 0.7
	default:
		return 1.0
	}
}

func profitFactorAdjustment(pf float64) float64 {
	switch {
	case pf > 1.5:
		return 1.1
	case pf < 0.8:
		return 0.8
	default:
		return 1.0
	}
}

// consecutiveLossFactor throttles risk after sustained losing runs.
func consecutiveLossFactor(losses int) float64 {
	switch {
	case losses > 5:
		return 0.6
	case losses > 3:
		return 0.8
	default:
		return 1.0
	}
}

// qualityFactor maps confidence in [0,1] onto [0.5, 1.0].
func qualityFactor(confidence float64) float64 {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return 0.5 + 0.5*confidence
}

// truncateTo cuts a quantity toward zero at the given decimal count,
// matching venue lot-size behavior (never round up past what the balance
// supports).
func truncateTo(q float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Trunc(q*scale) / scale
}
